package ledger

// Ledger clock object id, passed to time-dependent entry functions.
const clockObjectID = "0x6"

// Contracts builds typed call descriptors for the deployed package. The
// object identifiers come from configuration and are validated at startup.
type Contracts struct {
	PackageID           string
	TreasuryCapID       string
	TrackSupplyRegistry string
	VaultRegistry       string
	YieldProtocolID     string
}

// CreateVault builds the vault creation call for a track.
func (c Contracts) CreateVault(trackID []byte, creatorAddress string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "vault",
		Function: "create_vault",
		Args: []Arg{
			ObjectArg(c.VaultRegistry),
			BytesArg(trackID),
			ValueArg(creatorAddress),
		},
	}
}

// MintContentTokens builds the fungible token mint call.
func (c Contracts) MintContentTokens(toAddress string, amount int64, creatorAddress string, trackID []byte) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "content_token",
		Function: "mint_content_tokens",
		Args: []Arg{
			ObjectArg(c.TrackSupplyRegistry),
			ObjectArg(c.TreasuryCapID),
			ValueArg(toAddress),
			ValueArg(amount),
			ValueArg(creatorAddress),
			BytesArg(trackID),
		},
	}
}

// TransferTokens builds the token transfer call used by purchases.
func (c Contracts) TransferTokens(buyerAddress string, quantity int64, creatorAddress string, trackID []byte) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "content_token",
		Function: "transfer_tokens",
		Args: []Arg{
			ObjectArg(c.TrackSupplyRegistry),
			ValueArg(buyerAddress),
			ValueArg(quantity),
			ValueArg(creatorAddress),
			BytesArg(trackID),
		},
	}
}

// InitializeCurve builds the bonding curve initialization call. Slope and
// base price are expressed in integer price units. The call is not
// idempotent on the ledger: submitting it twice creates two curves.
func (c Contracts) InitializeCurve(slopeUnits, basePriceUnits int64, vaultID string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "curve",
		Function: "initialize",
		Args: []Arg{
			ValueArg(slopeUnits),
			ValueArg(basePriceUnits),
			ObjectArg(vaultID),
		},
	}
}

// GetCurvePrice builds the read-only curve evaluation call.
func (c Contracts) GetCurvePrice(curveID string, quantity int64) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "curve",
		Function: "get_curve_price",
		Args: []Arg{
			ObjectArg(curveID),
			ValueArg(quantity),
		},
	}
}

// UpdateCurveParams builds the governance parameter update. Authorization is
// enforced by the ledger module, not locally.
func (c Contracts) UpdateCurveParams(governanceID string, trackID []byte, basePriceUnits, slopeUnits int64, curveType string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "curve_governance",
		Function: "update_curve_params",
		Args: []Arg{
			ObjectArg(governanceID),
			BytesArg(trackID),
			ValueArg(basePriceUnits),
			ValueArg(slopeUnits),
			ValueArg(curveType),
		},
	}
}

// Stake builds the yield protocol stake call for a vault.
func (c Contracts) Stake(vaultID string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "yield_protocol",
		Function: "stake",
		Args: []Arg{
			ObjectArg(c.YieldProtocolID),
			ObjectArg(vaultID),
			ObjectArg(clockObjectID),
		},
	}
}

// Unstake builds the yield protocol unstake call for a vault.
func (c Contracts) Unstake(vaultID string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "yield_protocol",
		Function: "unstake",
		Args: []Arg{
			ObjectArg(c.YieldProtocolID),
			ObjectArg(vaultID),
			ObjectArg(clockObjectID),
		},
	}
}

// GetYieldStats builds the read-only yield stats call for a vault.
func (c Contracts) GetYieldStats(vaultID string) *MoveCall {
	return &MoveCall{
		Package:  c.PackageID,
		Module:   "yield_protocol",
		Function: "get_yield_stats",
		Args: []Arg{
			ObjectArg(c.YieldProtocolID),
			ObjectArg(vaultID),
		},
	}
}

// Package httpapi exposes the service layer over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tunevault/service_layer/internal/apperr"
	"github.com/tunevault/service_layer/internal/domain/vault"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/internal/services/listeners"
	"github.com/tunevault/service_layer/internal/services/purchase"
	"github.com/tunevault/service_layer/internal/services/tokenize"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Tokenizer runs the track tokenization flow.
type Tokenizer interface {
	Tokenize(ctx context.Context, req tokenize.Request) (tokenize.Result, error)
}

// Purchaser executes token purchases.
type Purchaser interface {
	Buy(ctx context.Context, req purchase.Request) (purchase.Receipt, error)
}

// Pricer serves curve quotes and governance updates.
type Pricer interface {
	QuotePrice(ctx context.Context, curveID string, quantity int64) (float64, error)
	UpdateParams(ctx context.Context, governanceID, trackIDHex string, basePrice, slope float64, curveType string) (*ledger.TxResult, error)
}

// Staker stakes and unstakes vaults on a user's behalf.
type Staker interface {
	Stake(ctx context.Context, userID, vaultID, walletAddress string) (*ledger.TxResult, error)
	Unstake(ctx context.Context, userID, vaultID, walletAddress string) (*ledger.TxResult, error)
	Rewards(ctx context.Context, userID string) ([]vault.ClaimableReward, error)
}

type handler struct {
	tokenizer Tokenizer
	purchaser Purchaser
	pricer    Pricer
	staker    Staker
	listeners *listeners.Service
	log       *logger.Logger
}

// Deps carries the services the router exposes.
type Deps struct {
	Tokenizer Tokenizer
	Purchaser Purchaser
	Pricer    Pricer
	Staker    Staker
	Listeners *listeners.Service
	Log       *logger.Logger
}

// NewHandler returns a router exposing the REST API.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		tokenizer: deps.Tokenizer,
		purchaser: deps.Purchaser,
		pricer:    deps.Pricer,
		staker:    deps.Staker,
		listeners: deps.Listeners,
		log:       log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/creator/{creatorId}/tokenise", h.tokenise).Methods(http.MethodPost)
	r.HandleFunc("/creator/buy", h.buy).Methods(http.MethodPost)
	r.HandleFunc("/curve/{curveId}/price/{amount}", h.curvePrice).Methods(http.MethodGet)
	r.HandleFunc("/curve/governance/update", h.curveGovernance).Methods(http.MethodPost)
	r.HandleFunc("/vaults/stake", h.stake).Methods(http.MethodPost)
	r.HandleFunc("/vaults/unstake", h.unstake).Methods(http.MethodPost)
	r.HandleFunc("/listener/{userId}/rewards", h.rewards).Methods(http.MethodGet)
	r.HandleFunc("/listener/{userId}/profile", h.profile).Methods(http.MethodGet)
	r.HandleFunc("/listener/{userId}/export", h.export).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) tokenise(w http.ResponseWriter, r *http.Request) {
	creator := mux.Vars(r)["creatorId"]

	var payload struct {
		ToAddress  string  `json:"toAddress"`
		Amount     int64   `json:"amount"`
		TrackID    string  `json:"trackId"`
		TokenPrice float64 `json:"tokenPrice"`
		Slope      float64 `json:"slope"`
		BasePrice  float64 `json:"basePrice"`
		Title      string  `json:"title"`
		Artist     string  `json:"artist"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.tokenizer.Tokenize(r.Context(), tokenize.Request{
		ToAddress:      payload.ToAddress,
		Amount:         payload.Amount,
		CreatorAddress: creator,
		TrackIDHex:     payload.TrackID,
		TokenPrice:     payload.TokenPrice,
		Slope:          payload.Slope,
		BasePrice:      payload.BasePrice,
		Title:          payload.Title,
		Artist:         payload.Artist,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"vaultTransaction": result.VaultTx,
		"curveTransaction": result.CurveTx,
		"mintTransaction":  result.MintTx,
		"vaultId":          result.VaultID,
		"curveId":          result.CurveID,
		"staked":           result.Staked,
	})
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SongID         string `json:"songId"`
		Quantity       int64  `json:"quantity"`
		BuyerAddress   string `json:"buyerAddress"`
		CreatorAddress string `json:"creatorAddress"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.purchaser.Buy(r.Context(), purchase.Request{
		SongID:         payload.SongID,
		Quantity:       payload.Quantity,
		BuyerAddress:   payload.BuyerAddress,
		CreatorAddress: payload.CreatorAddress,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"transactionId": receipt.TransactionID,
		"tokenPrice":    receipt.TokenPrice,
		"total":         receipt.Total,
	})
}

func (h *handler) curvePrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	curveID := vars["curveId"]
	amount, err := strconv.ParseInt(vars["amount"], 10, 64)
	if err != nil || amount < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be a non-negative integer"))
		return
	}

	price, err := h.pricer.QuotePrice(r.Context(), curveID, amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"curveId": curveID,
		"amount":  amount,
		"price":   price,
	})
}

func (h *handler) curveGovernance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		GovernanceID string  `json:"governanceId"`
		TrackID      string  `json:"trackId"`
		BasePrice    float64 `json:"basePrice"`
		Slope        float64 `json:"slope"`
		CurveType    string  `json:"curveType"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.pricer.UpdateParams(r.Context(), payload.GovernanceID, payload.TrackID,
		payload.BasePrice, payload.Slope, payload.CurveType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"transaction": result.Digest,
	})
}

func (h *handler) stake(w http.ResponseWriter, r *http.Request) {
	h.stakeOp(w, r, h.staker.Stake)
}

func (h *handler) unstake(w http.ResponseWriter, r *http.Request) {
	h.stakeOp(w, r, h.staker.Unstake)
}

func (h *handler) stakeOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID, vaultID, walletAddress string) (*ledger.TxResult, error)) {
	var payload struct {
		UserID        string `json:"userId"`
		VaultID       string `json:"vaultId"`
		WalletAddress string `json:"walletAddress"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := op(r.Context(), payload.UserID, payload.VaultID, payload.WalletAddress)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"transactionId": result.Digest,
	})
}

func (h *handler) rewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.staker.Rewards(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"rewards": rewards,
	})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.listeners.Profile(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	export, err := h.listeners.Export(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-export.json", userID))
	writeJSON(w, http.StatusOK, export)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps domain errors onto HTTP status codes.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case apperr.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

package ledger

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is the error payload of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Arg is one typed argument of a call descriptor: an object reference, a
// scalar value or a raw byte sequence.
type Arg struct {
	object string
	value  interface{}
	bytes  []byte
	kind   argKind
}

type argKind int

const (
	argObject argKind = iota
	argValue
	argBytes
)

// ObjectArg references an on-ledger object by id.
func ObjectArg(id string) Arg { return Arg{kind: argObject, object: id} }

// ValueArg passes a scalar value.
func ValueArg(v interface{}) Arg { return Arg{kind: argValue, value: v} }

// BytesArg passes a raw byte sequence.
func BytesArg(b []byte) Arg { return Arg{kind: argBytes, bytes: b} }

// MarshalJSON renders the wire shape {Object: id} | {Pure: value} | {Pure: [bytes]}.
func (a Arg) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case argObject:
		return json.Marshal(map[string]interface{}{"Object": a.object})
	case argBytes:
		ints := make([]int, len(a.bytes))
		for i, b := range a.bytes {
			ints[i] = int(b)
		}
		return json.Marshal(map[string]interface{}{"Pure": ints})
	default:
		return json.Marshal(map[string]interface{}{"Pure": a.value})
	}
}

// MoveCall describes one contract call: target package, module, function and
// typed arguments.
type MoveCall struct {
	Package  string `json:"package"`
	Module   string `json:"module"`
	Function string `json:"function"`
	Args     []Arg  `json:"arguments"`
}

// Target renders module::function for logs and errors.
func (c *MoveCall) Target() string {
	return fmt.Sprintf("%s::%s", c.Module, c.Function)
}

// envelope is the serialized transaction form submitted for signing.
type envelope struct {
	Kind         string     `json:"kind"`
	Transactions []moveCall `json:"transactions"`
}

type moveCall struct {
	MoveCall callBody `json:"MoveCall"`
}

type callBody struct {
	Package   string `json:"package"`
	Module    string `json:"module"`
	Function  string `json:"function"`
	Arguments []Arg  `json:"arguments"`
}

// encodeCall serializes a call into the programmable-transaction envelope.
func encodeCall(call *MoveCall) ([]byte, error) {
	env := envelope{
		Kind: "ProgrammableTransaction",
		Transactions: []moveCall{{
			MoveCall: callBody{
				Package:   call.Package,
				Module:    call.Module,
				Function:  call.Function,
				Arguments: call.Args,
			},
		}},
	}
	return json.Marshal(env)
}

// TxResult is the outcome of an executed transaction. Callers either get a
// complete result or an error; no partial result is ever exposed.
type TxResult struct {
	Digest         string
	Status         string
	CreatedObjects []string
	RawEffects     json.RawMessage
	RawEvents      json.RawMessage
}

// Succeeded reports whether the transaction committed successfully.
func (r *TxResult) Succeeded() bool { return r.Status == "success" }

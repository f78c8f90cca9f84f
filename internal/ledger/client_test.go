package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunevault/service_layer/internal/apperr"
)

func rpcServer(t *testing.T, handler func(req RPCRequest) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		result, rpcErr := handler(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientCall(t *testing.T) {
	srv := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		if req.Method != "sui_getObject" {
			t.Errorf("method %q", req.Method)
		}
		return map[string]string{"status": "ok"}, nil
	})
	defer srv.Close()

	client, err := NewClient(ClientConfig{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	raw, err := client.Call(context.Background(), "sui_getObject", []interface{}{"0x1"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["status"] != "ok" {
		t.Fatalf("result %v", out)
	}
}

func TestClientCallRPCErrorIsTerminal(t *testing.T) {
	srv := rpcServer(t, func(RPCRequest) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "insufficient gas"}
	})
	defer srv.Close()

	client, _ := NewClient(ClientConfig{RPCURL: srv.URL})
	_, err := client.Call(context.Background(), "sui_executeTransactionBlock", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperr.IsLedger(err) {
		t.Fatalf("expected ledger error, got %T", err)
	}
	if apperr.IsRetryable(err) {
		t.Fatal("rpc error payload must not be retryable")
	}
}

func TestClientCallServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := NewClient(ClientConfig{RPCURL: srv.URL})
	_, err := client.Call(context.Background(), "suix_queryEvents", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("5xx must be retryable, got %v", err)
	}
}

func TestClientCallTransportErrorIsTransient(t *testing.T) {
	client, _ := NewClient(ClientConfig{RPCURL: "http://127.0.0.1:1"})
	_, err := client.Call(context.Background(), "sui_getObject", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("transport failure must be retryable, got %v", err)
	}
}

func TestExecuteSignedParsesResult(t *testing.T) {
	srv := rpcServer(t, func(req RPCRequest) (interface{}, *RPCError) {
		return map[string]interface{}{
			"digest": "8fJ9digest",
			"effects": map[string]interface{}{
				"status": map[string]string{"status": "success"},
				"created": []map[string]interface{}{
					{"reference": map[string]string{"objectId": "0xvault1"}},
					{"reference": map[string]string{"objectId": "0xcoin2"}},
				},
			},
		}, nil
	})
	defer srv.Close()

	client, _ := NewClient(ClientConfig{RPCURL: srv.URL})
	result, err := client.ExecuteSigned(context.Background(), []byte("tx"), []byte("sig"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if result.Digest != "8fJ9digest" {
		t.Fatalf("digest %q", result.Digest)
	}
	if !result.Succeeded() {
		t.Fatalf("status %q", result.Status)
	}
	if len(result.CreatedObjects) != 2 || result.CreatedObjects[0] != "0xvault1" {
		t.Fatalf("created %v", result.CreatedObjects)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected config error")
	}
}

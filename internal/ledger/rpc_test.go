package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcHandler dispatches JSON-RPC methods to scripted result payloads and
// records the requests it saw.
type rpcHandler struct {
	t *testing.T

	// results maps method name to the raw JSON of the "result" field.
	results map[string]string

	// requests collects the decoded params per method.
	requests map[string][]json.RawMessage
}

func newRPCHandler(t *testing.T) *rpcHandler {
	return &rpcHandler{
		t:        t,
		results:  make(map[string]string),
		requests: make(map[string][]json.RawMessage),
	}
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))
	h.requests[req.Method] = append(h.requests[req.Method], req.Params)

	result, ok := h.results[req.Method]
	if !ok {
		h.t.Fatalf("unexpected rpc method %s", req.Method)
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
}

func newTestRPCClient(t *testing.T, endpoint string) *RPCClient {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keypair, err := NewKeypairFromPrivateKey(private)
	require.NoError(t, err)

	mint := testPublicKey(3)
	client, err := NewRPCClient(endpoint, keypair, mint.String(), 9, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestSubmitTransfer(t *testing.T) {
	t.Run("PostsSignedTransaction", func(t *testing.T) {
		handler := newRPCHandler(t)
		blockhash := testPublicKey(9)
		handler.results["getLatestBlockhash"] =
			fmt.Sprintf(`{"value":{"blockhash":"%s"}}`, blockhash.String())
		handler.results["sendTransaction"] = `"echoed-signature"`

		server := httptest.NewServer(handler)
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		recipient := testKeypair(t).PublicKey()

		handle, err := client.SubmitTransfer(context.Background(), recipient.String(),
			decimal.RequireFromString("0.356"))
		require.NoError(t, err)
		assert.Equal(t, "echoed-signature", handle)

		// The posted transaction is base64 wire form carrying one valid
		// signature over the message.
		require.Len(t, handler.requests["sendTransaction"], 1)
		var params []json.RawMessage
		require.NoError(t, json.Unmarshal(handler.requests["sendTransaction"][0], &params))
		var encoded string
		require.NoError(t, json.Unmarshal(params[0], &encoded))
		wire, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		require.Greater(t, len(wire), 1+signatureLength)
		assert.Equal(t, byte(1), wire[0])
		owner := client.keypair.PublicKey()
		assert.True(t, ed25519.Verify(ed25519.PublicKey(owner[:]),
			wire[1+signatureLength:], wire[1:1+signatureLength]))
	})

	t.Run("FallsBackToLocalSignature", func(t *testing.T) {
		handler := newRPCHandler(t)
		handler.results["getLatestBlockhash"] =
			fmt.Sprintf(`{"value":{"blockhash":"%s"}}`, testPublicKey(9).String())
		handler.results["sendTransaction"] = `""`

		server := httptest.NewServer(handler)
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		handle, err := client.SubmitTransfer(context.Background(),
			testKeypair(t).PublicKey().String(), decimal.RequireFromString("1"))
		require.NoError(t, err)

		// The handle is the locally computed signature, decodable as 64
		// base58 bytes.
		decoded, err := base58.Decode(handle)
		require.NoError(t, err)
		assert.Len(t, decoded, signatureLength)
	})

	t.Run("WrapsNodeError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Node is behind by 150 slots"}}`)
		}))
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		recipient := testKeypair(t).PublicKey().String()
		_, err := client.SubmitTransfer(context.Background(), recipient,
			decimal.RequireFromString("1"))
		require.Error(t, err)

		var submissionErr *SubmissionError
		require.ErrorAs(t, err, &submissionErr)
		assert.Equal(t, recipient, submissionErr.Recipient)

		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, -32002, rpcErr.Code)
		assert.Contains(t, err.Error(), "Node is behind by")
	})
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   Status
	}{
		{"UnknownSignature", `{"value":[null]}`, StatusPending},
		{"EmptyValue", `{"value":[]}`, StatusPending},
		{"Processed", `{"value":[{"confirmationStatus":"processed","err":null}]}`, StatusPending},
		{"Confirmed", `{"value":[{"confirmationStatus":"confirmed","err":null}]}`, StatusPending},
		{"Finalized", `{"value":[{"confirmationStatus":"finalized","err":null}]}`, StatusFinalized},
		{"LandedButFailed", `{"value":[{"confirmationStatus":"finalized","err":{"InstructionError":[0,"Custom"]}}]}`, StatusDropped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newRPCHandler(t)
			handler.results["getSignatureStatuses"] = tt.result
			server := httptest.NewServer(handler)
			defer server.Close()

			client := newTestRPCClient(t, server.URL)
			status, err := client.GetStatus(context.Background(), "some-signature")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}

	t.Run("TransportError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		_, err := client.GetStatus(context.Background(), "some-signature")
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, "getSignatureStatuses", rpcErr.Method)
	})
}

func TestGetBalance(t *testing.T) {
	t.Run("SumsTokenAccounts", func(t *testing.T) {
		handler := newRPCHandler(t)
		handler.results["getTokenAccountsByOwner"] = `{"value":[
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"uiAmountString":"1250.5"}}}}}},
			{"account":{"data":{"parsed":{"info":{"tokenAmount":{"uiAmountString":"0.25"}}}}}}
		]}`
		server := httptest.NewServer(handler)
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		balance, err := client.GetBalance(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "1250.75", balance.String())

		// An empty address queries the sender wallet.
		var params []json.RawMessage
		require.NoError(t, json.Unmarshal(handler.requests["getTokenAccountsByOwner"][0], &params))
		var owner string
		require.NoError(t, json.Unmarshal(params[0], &owner))
		assert.Equal(t, client.keypair.Address, owner)
	})

	t.Run("NoAccounts", func(t *testing.T) {
		handler := newRPCHandler(t)
		handler.results["getTokenAccountsByOwner"] = `{"value":[]}`
		server := httptest.NewServer(handler)
		defer server.Close()

		client := newTestRPCClient(t, server.URL)
		balance, err := client.GetBalance(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})
}

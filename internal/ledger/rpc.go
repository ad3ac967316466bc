package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultHTTPTimeout bounds a single JSON-RPC round trip.
const defaultHTTPTimeout = 30 * time.Second

// RPCClient implements Client against a Solana JSON-RPC endpoint. The sender
// keypair and token mint are fixed at construction; transfer commands only
// supply recipients and amounts.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
	keypair    *Keypair
	mint       PublicKey
	decimals   int
	logger     zerolog.Logger
}

// NewRPCClient builds an RPCClient for one environment.
func NewRPCClient(endpoint string, keypair *Keypair, mint string, decimals int, logger zerolog.Logger) (*RPCClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc endpoint cannot be empty")
	}
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}
	return &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		keypair:    keypair,
		mint:       mintKey,
		decimals:   decimals,
		logger:     logger,
	}, nil
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RPCError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RPCError{Method: method, Err: fmt.Errorf("unexpected HTTP status %s", resp.Status)}
	}

	var envelope rpcResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr != nil {
		return &RPCError{Method: method, Err: decodeErr}
	}
	if envelope.Error != nil {
		return &RPCError{
			Method: method,
			Code:   envelope.Error.Code,
			Err:    fmt.Errorf("%s", envelope.Error.Message),
		}
	}
	if out != nil {
		if decodeErr := json.Unmarshal(envelope.Result, out); decodeErr != nil {
			return &RPCError{Method: method, Err: decodeErr}
		}
	}
	return nil
}

// latestBlockhash fetches the recent blockhash new transactions must
// reference.
func (c *RPCClient) latestBlockhash(ctx context.Context) (PublicKey, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []any{map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return PublicKey{}, err
	}
	return ParsePublicKey(result.Value.Blockhash)
}

// SubmitTransfer builds, signs and submits one checked token transfer.
// The returned signature is the handle later passed to GetStatus.
func (c *RPCClient) SubmitTransfer(ctx context.Context, recipient string, amount decimal.Decimal) (string, error) {
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", &SubmissionError{Recipient: recipient, Err: err}
	}

	wire, signature, err := BuildTransfer(c.keypair, c.mint, c.decimals, recipient, amount, blockhash)
	if err != nil {
		return "", &SubmissionError{Recipient: recipient, Err: err}
	}

	params := []any{
		base64.StdEncoding.EncodeToString(wire),
		map[string]any{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	var returned string
	if callErr := c.call(ctx, "sendTransaction", params, &returned); callErr != nil {
		return "", &SubmissionError{Recipient: recipient, Err: callErr}
	}
	// The node echoes the first signature back; trust the local one if the
	// response is empty.
	if returned == "" {
		returned = signature
	}

	c.logger.Debug().
		Str("recipient", recipient).
		Str("amount", amount.String()).
		Str("signature", returned).
		Msg("transfer submitted")
	return returned, nil
}

// signatureStatus mirrors one entry of the getSignatureStatuses result.
type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// GetStatus polls the signature status of a submitted transaction once.
// A transaction the node cannot see yet reports StatusPending; a transaction
// that landed but failed reports StatusDropped.
func (c *RPCClient) GetStatus(ctx context.Context, handle string) (Status, error) {
	var result struct {
		Value []*signatureStatus `json:"value"`
	}
	params := []any{
		[]string{handle},
		map[string]any{"searchTransactionHistory": true},
	}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return StatusPending, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return StatusPending, nil
	}

	entry := result.Value[0]
	if len(entry.Err) > 0 && string(entry.Err) != "null" {
		return StatusDropped, nil
	}
	if entry.ConfirmationStatus == "finalized" {
		return StatusFinalized, nil
	}
	return StatusPending, nil
}

// tokenAccountsResult mirrors getTokenAccountsByOwner with jsonParsed
// encoding, flattened to the balance fields the client needs.
type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							UIAmountString string `json:"uiAmountString"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// GetBalance returns the token balance held by address, or by the sender
// wallet when address is empty. Balances across all of the owner's token
// accounts for the mint are summed.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	owner := address
	if owner == "" {
		owner = c.keypair.Address
	}

	var result tokenAccountsResult
	params := []any{
		owner,
		map[string]any{"mint": c.mint.String()},
		map[string]any{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, entry := range result.Value {
		raw := entry.Account.Data.Parsed.Info.TokenAmount.UIAmountString
		if raw == "" {
			continue
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, &RPCError{Method: "getTokenAccountsByOwner",
				Err: fmt.Errorf("unparseable balance %q: %w", raw, err)}
		}
		total = total.Add(amount)
	}
	return total, nil
}

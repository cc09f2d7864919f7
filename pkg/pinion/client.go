// Package pinion is a client for the PinionOS skill marketplace. Every call
// is a metered x402 micropayment; the caller records the charge as an expense
// in the agent ledger.
package pinion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/autonome-labs/autonome/internal/resilience"
)

const (
	defaultBaseURL = "https://skills.pinionfun.com"
	defaultNetwork = "base-sepolia"
)

// Client performs metered skill calls against the marketplace.
type Client interface {
	Balance(ctx context.Context, address string) (Balances, error)
	Price(ctx context.Context, symbol string) (float64, error)
	Fund(ctx context.Context, address string) (*FundStatus, error)
	Chat(ctx context.Context, prompt string) (string, error)
	Trade(ctx context.Context, source, target, amount string) (*TradeQuote, error)
	Broadcast(ctx context.Context, tx json.RawMessage) (*BroadcastResult, error)
	Enrich(ctx context.Context, address string) (json.RawMessage, error)
}

// Balances holds wallet balances as decimal strings.
type Balances struct {
	ETH  string `json:"ETH"`
	USDC string `json:"USDC"`
}

// FundStatus describes whether and how a wallet needs funding.
type FundStatus struct {
	Funded bool `json:"funded"`
	Funding struct {
		Steps []string `json:"steps"`
	} `json:"funding"`
}

// NeedsFunding reports whether the marketplace listed any funding steps.
func (f *FundStatus) NeedsFunding() bool {
	return f != nil && len(f.Funding.Steps) > 0
}

// TradeQuote is a prepared swap. Approve is present only when the source
// asset needs an allowance transaction broadcast before the swap.
type TradeQuote struct {
	Swap    json.RawMessage `json:"swap"`
	Approve json.RawMessage `json:"approve,omitempty"`
}

// BroadcastResult reports the transaction hash of a broadcast.
type BroadcastResult struct {
	Hash string `json:"hash"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default marketplace base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithNetwork selects the settlement network (base or base-sepolia).
func WithNetwork(network string) Option {
	return func(c *httpClient) { c.network = network }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	network string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a marketplace client. Calls time out after 60 seconds and
// transient failures (429, 5xx, network flakes) are retried with backoff.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		network: defaultNetwork,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Balance(ctx context.Context, address string) (Balances, error) {
	var resp struct {
		Balances Balances `json:"balances"`
	}
	if err := c.get(ctx, "/api/v1/balance/"+address, &resp); err != nil {
		return Balances{}, err
	}
	return resp.Balances, nil
}

func (c *httpClient) Price(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		USD float64 `json:"usd"`
	}
	if err := c.get(ctx, "/api/v1/price/"+symbol, &resp); err != nil {
		return 0, err
	}
	return resp.USD, nil
}

func (c *httpClient) Fund(ctx context.Context, address string) (*FundStatus, error) {
	var resp FundStatus
	if err := c.get(ctx, "/api/v1/fund/"+address, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) Chat(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	err := c.post(ctx, "/api/v1/chat", map[string]string{"prompt": prompt}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *httpClient) Trade(ctx context.Context, source, target, amount string) (*TradeQuote, error) {
	var resp TradeQuote
	err := c.post(ctx, "/api/v1/trade", map[string]string{
		"from":   source,
		"to":     target,
		"amount": amount,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Swap) == 0 {
		return nil, eris.New("pinion: trade returned no swap data")
	}
	return &resp, nil
}

func (c *httpClient) Broadcast(ctx context.Context, tx json.RawMessage) (*BroadcastResult, error) {
	var resp BroadcastResult
	err := c.post(ctx, "/api/v1/broadcast", map[string]json.RawMessage{"tx": tx}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) Enrich(ctx context.Context, address string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.get(ctx, "/api/v1/enrich/"+address, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *httpClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return eris.Wrapf(err, "pinion: marshal %s request", path)
		}
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("pinion", method+" "+path)
	}
	respBody, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "pinion: unmarshal %s response", path)
	}
	return nil
}

func (c *httpClient) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "pinion: create %s request", path)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Pinion-Network", c.network)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "pinion: send %s request", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "pinion: read %s response", path)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("pinion: %s unexpected status %d: %s", path, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return respBody, nil
}

// ExplorerTxURL returns the block-explorer URL for a transaction on the given
// network.
func ExplorerTxURL(txHash, network string) string {
	base := "https://sepolia.basescan.org"
	if network == "base" {
		base = "https://basescan.org"
	}
	return fmt.Sprintf("%s/tx/%s", base, txHash)
}

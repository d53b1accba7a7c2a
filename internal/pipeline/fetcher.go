package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/util"
	"github.com/ppiankov/txlens/internal/worker"
)

var (
	// ErrInvalidOrUnavailable is the single fetch failure kind. A malformed
	// id, an unreachable provider and an unknown transaction are not told apart.
	ErrInvalidOrUnavailable = errors.New("pipeline: invalid txid or transaction unavailable")

	// ErrMalformedTransaction indicates the provider answered with a body that
	// does not have the expected transaction shape.
	ErrMalformedTransaction = errors.New("pipeline: malformed transaction record")
)

const (
	txidHexLen          = 2 * chainhash.HashSize
	defaultMaxBodyBytes = 5_000_000
)

// Waiter blocks until a request to key may proceed
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Fetcher retrieves transaction records from an Esplora-compatible API
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	host       string
	userAgent  string
	maxBytes   int64
	limiter    Waiter
}

// NewFetcher creates a new Fetcher. A zero timeout keeps the http.Client
// default. limiter may be nil.
func NewFetcher(baseURL string, timeout time.Duration, userAgent string, maxBytes int64, limiter Waiter, httpProxy, httpsProxy, noProxy string) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}

	host := baseURL
	if h, err := worker.HostKey(baseURL); err == nil && h != "" {
		host = h
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		host:      host,
		userAgent: userAgent,
		maxBytes:  maxBytes,
		limiter:   limiter,
	}
}

// BaseURL returns the provider API root
func (f *Fetcher) BaseURL() string {
	return f.baseURL
}

// Fetch retrieves the transaction with the given id. It makes exactly one
// attempt; every failure before a usable body is ErrInvalidOrUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, txid string) (*model.Transaction, error) {
	canonical, err := NormalizeTxID(txid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrUnavailable, err)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.host); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %w", ErrInvalidOrUnavailable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/tx/"+canonical, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInvalidOrUnavailable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", ErrInvalidOrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status: %d", ErrInvalidOrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrInvalidOrUnavailable, err)
	}

	tx, err := decodeTransaction(body)
	if err != nil {
		return nil, err
	}
	if tx.TxID == "" {
		tx.TxID = canonical
	}
	return tx, nil
}

// NormalizeTxID validates free-text input as a 32-byte hex transaction id and
// returns it lower-cased.
func NormalizeTxID(txid string) (string, error) {
	txid = strings.TrimSpace(txid)
	if len(txid) != txidHexLen {
		return "", fmt.Errorf("txid must be %d hex characters, got %d", txidHexLen, len(txid))
	}
	hash, err := chainhash.NewHashFromHex(txid)
	if err != nil {
		return "", fmt.Errorf("parse txid: %w", err)
	}
	return hash.String(), nil
}

// esploraTx mirrors the subset of the Esplora /tx/{txid} document we read.
// Pointers distinguish absent fields from zero values.
type esploraTx struct {
	TxID   string        `json:"txid"`
	Vin    *[]esploraVin `json:"vin"`
	Vout   *[]esploraOut `json:"vout"`
	Fee    int64         `json:"fee"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

type esploraVin struct {
	TxID       string      `json:"txid"`
	Vout       int         `json:"vout"`
	IsCoinbase bool        `json:"is_coinbase"`
	Prevout    *esploraOut `json:"prevout"`
}

type esploraOut struct {
	ScriptPubKeyType    string `json:"scriptpubkey_type"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               *int64 `json:"value"`
}

// decodeTransaction validates the document shape and converts it to the model
func decodeTransaction(body []byte) (*model.Transaction, error) {
	var raw esploraTx
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrMalformedTransaction, err)
	}
	if raw.Vin == nil {
		return nil, fmt.Errorf("%w: missing vin", ErrMalformedTransaction)
	}
	if raw.Vout == nil {
		return nil, fmt.Errorf("%w: missing vout", ErrMalformedTransaction)
	}

	tx := &model.Transaction{
		TxID:      strings.ToLower(raw.TxID),
		Fee:       raw.Fee,
		Confirmed: raw.Status.Confirmed,
		Height:    raw.Status.BlockHeight,
		Inputs:    make([]model.Input, 0, len(*raw.Vin)),
		Outputs:   make([]model.Output, 0, len(*raw.Vout)),
	}

	for _, vin := range *raw.Vin {
		in := model.Input{
			PrevTxID: vin.TxID,
			PrevVout: vin.Vout,
			Coinbase: vin.IsCoinbase,
		}
		if vin.Prevout != nil {
			in.Address = vin.Prevout.ScriptPubKeyAddress
			if vin.Prevout.Value != nil {
				in.Value = *vin.Prevout.Value
			}
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	for i, vout := range *raw.Vout {
		if vout.Value == nil {
			return nil, fmt.Errorf("%w: vout %d has no value", ErrMalformedTransaction, i)
		}
		tx.Outputs = append(tx.Outputs, model.Output{
			Address: vout.ScriptPubKeyAddress,
			Value:   *vout.Value,
			Type:    vout.ScriptPubKeyType,
		})
	}

	return tx, nil
}

// Package bank is a signed JSON-RPC client for the bank's nominal account
// platform.
package bank

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"charitypay/internal/signer"
)

const (
	HeaderSignSystem     = "sign-system"
	HeaderSignThumbprint = "sign-thumbprint"
	HeaderSignData       = "sign-data"

	contentTypeJSON = "application/json"
	maxResponseSize = 10 << 20
)

type Config struct {
	Endpoint          string
	DocumentsEndpoint string
	TendersEndpoint   string
	SignSystem        string
	SignThumbprint    string
	Timeout           time.Duration
}

// RawResponse is an undecoded bank reply.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client signs every request body it sends. It holds no per-call state.
type Client struct {
	cfg    Config
	signer signer.Signer
	client *http.Client
	newID  func() string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// WithIDGenerator replaces the uuid v4 request id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

func NewClient(cfg Config, s signer.Signer, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		signer: s,
		client: &http.Client{Timeout: timeout},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsTesting reports whether the client talks to the bank's pre-production
// environment.
func (c *Client) IsTesting() bool {
	return strings.Contains(c.cfg.Endpoint, "pre.tochka.com")
}

// Call sends method with params to the JSON-RPC endpoint and decodes the
// result into result. A bank-reported failure comes back as *Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	return c.call(ctx, c.cfg.Endpoint, method, params, result)
}

// CallTenders is Call against the tender helpers endpoint.
func (c *Client) CallTenders(ctx context.Context, method string, params, result any) error {
	return c.call(ctx, c.cfg.TendersEndpoint, method, params, result)
}

func (c *Client) call(ctx context.Context, endpoint, method string, params, result any) error {
	body, id, err := c.encode(method, params)
	if err != nil {
		return err
	}

	slog.Debug("sending bank request", "method", method, "id", id)

	resp, err := c.SendRaw(ctx, endpoint, nil, contentTypeJSON, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	env, err := DecodeResponse(resp.Body)
	if err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s: %w: status %d", method, ErrTransport, resp.StatusCode)
		}
		return fmt.Errorf("%s: status %d: %w", method, resp.StatusCode, err)
	}
	if env.ID != id {
		slog.Warn("bank response id mismatch", "method", method, "sent", id, "got", env.ID)
	}
	if env.Error != nil {
		return env.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("%s: %w: result: %v", method, ErrDecode, err)
	}
	return nil
}

func (c *Client) encode(method string, params any) ([]byte, string, error) {
	if params == nil {
		params = struct{}{}
	}
	req := Request{
		JSONRPC: jsonRPCVersion,
		ID:      c.newID(),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrSerialization, method, err)
	}
	return body, req.ID, nil
}

// SendRaw signs body exactly as given and posts it to endpoint. Callers use
// it directly when the signed bytes are not a JSON-RPC envelope.
func (c *Client) SendRaw(ctx context.Context, endpoint string, query url.Values, contentType string, body []byte) (*RawResponse, error) {
	sig, err := c.signer.Sign(ctx, body)
	if err != nil {
		return nil, err
	}

	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set(HeaderSignSystem, c.cfg.SignSystem)
	req.Header.Set(HeaderSignThumbprint, c.cfg.SignThumbprint)
	req.Header.Set(HeaderSignData, base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

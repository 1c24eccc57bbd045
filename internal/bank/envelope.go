package bank

import (
	"encoding/json"
	"errors"
	"fmt"
)

const jsonRPCVersion = "2.0"

var (
	ErrSerialization = errors.New("serialize request")
	ErrTransport     = errors.New("bank transport")
	ErrDecode        = errors.New("decode bank response")
)

// Request is the outgoing JSON-RPC envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Error is a business error reported by the bank.
type Error struct {
	Code    uint64          `json:"code"`
	Message string          `json:"message"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("bank error %d: %s", e.Code, e.Message)
}

// Response is the decoded inbound envelope. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string
	ID      string
	Result  json.RawMessage
	Error   *Error
}

func (r *Response) IsError() bool {
	return r.Error != nil
}

// DecodeResponse parses an inbound envelope. A body carrying both "result"
// and "error", or neither, is rejected with ErrDecode instead of picking one.
func DecodeResponse(body []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var resp Response
	if raw, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(raw, &resp.JSONRPC); err != nil {
			return nil, fmt.Errorf("%w: jsonrpc: %v", ErrDecode, err)
		}
	}
	if resp.JSONRPC != jsonRPCVersion {
		return nil, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrDecode, resp.JSONRPC)
	}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &resp.ID); err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrDecode, err)
		}
	}

	result, hasResult := fields["result"]
	errRaw, hasError := fields["error"]
	switch {
	case hasResult && hasError:
		return nil, fmt.Errorf("%w: envelope has both result and error", ErrDecode)
	case !hasResult && !hasError:
		return nil, fmt.Errorf("%w: envelope has neither result nor error", ErrDecode)
	case hasError:
		var bankErr *Error
		if err := json.Unmarshal(errRaw, &bankErr); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrDecode, err)
		}
		if bankErr == nil {
			return nil, fmt.Errorf("%w: error is null", ErrDecode)
		}
		resp.Error = bankErr
	default:
		resp.Result = result
	}

	return &resp, nil
}

// IsRetryable reports failures that may clear up on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrDecode)
}

// AsError extracts a bank business error from err.
func AsError(err error) (*Error, bool) {
	var bankErr *Error
	if errors.As(err, &bankErr) {
		return bankErr, true
	}
	return nil, false
}

package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultKMSEndpoint = "https://kms.yandex/kms/v1"

// KMSSigner delegates signing to a remote asymmetric-key service. The key
// must be an RSA-2048 key configured for PKCS#1 v1.5 with SHA-256, so the
// signatures match what RSASigner produces locally.
type KMSSigner struct {
	endpoint string
	keyID    string
	token    string
	client   *http.Client
}

func NewKMSSigner(endpoint, keyID, token string, timeout time.Duration) *KMSSigner {
	if endpoint == "" {
		endpoint = DefaultKMSEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KMSSigner{
		endpoint: strings.TrimRight(endpoint, "/"),
		keyID:    keyID,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type kmsSignRequest struct {
	Message string `json:"message"`
}

type kmsSignResponse struct {
	KeyID     string `json:"keyId"`
	Signature string `json:"signature"`
}

func (s *KMSSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := json.Marshal(kmsSignRequest{Message: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return nil, fmt.Errorf("%w: encode kms request: %v", ErrSigning, err)
	}

	url := fmt.Sprintf("%s/asymmetricSignatureKeys/%s:sign", s.endpoint, s.keyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create kms request: %v", ErrSigning, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: kms request: %v", ErrSigning, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: kms status %d: %s", ErrSigning, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out kmsSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode kms response: %v", ErrSigning, err)
	}
	if out.KeyID != s.keyID {
		return nil, fmt.Errorf("%w: kms signed with key %q, want %q", ErrSigning, out.KeyID, s.keyID)
	}
	sig, err := base64.StdEncoding.DecodeString(out.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: kms signature is not base64: %v", ErrSigning, err)
	}
	return sig, nil
}

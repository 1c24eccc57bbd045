package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DocumentTypeContractOffer    = "contract_offer"
	DocumentTypeServiceAgreement = "service_agreement"
)

var ErrMissingDocument = errors.New("document is empty")

type UploadDocumentParams struct {
	BeneficiaryID  string
	DealID         string
	DocumentType   string
	DocumentNumber string
	DocumentDate   string
	ContentType    string
	Document       []byte
}

type UploadDocumentResult struct {
	DocumentID string `json:"document_id"`
}

// UploadBeneficiaryDocument sends a beneficiary document. The signature
// covers the document bytes, not a JSON-RPC envelope.
func (c *Client) UploadBeneficiaryDocument(ctx context.Context, p UploadDocumentParams) (*UploadDocumentResult, error) {
	if p.DocumentType == "" {
		p.DocumentType = DocumentTypeContractOffer
	}
	q := url.Values{}
	q.Set("beneficiary_id", p.BeneficiaryID)
	q.Set("document_type", p.DocumentType)
	q.Set("document_number", p.DocumentNumber)
	q.Set("document_date", p.DocumentDate)

	return c.uploadDocument(ctx, "beneficiary", q, p)
}

func (c *Client) UploadDealDocument(ctx context.Context, p UploadDocumentParams) (*UploadDocumentResult, error) {
	if p.DocumentType == "" {
		p.DocumentType = DocumentTypeServiceAgreement
	}
	q := url.Values{}
	q.Set("beneficiary_id", p.BeneficiaryID)
	q.Set("deal_id", p.DealID)
	q.Set("document_type", p.DocumentType)
	q.Set("document_number", p.DocumentNumber)
	q.Set("document_date", p.DocumentDate)

	return c.uploadDocument(ctx, "deal", q, p)
}

func (c *Client) uploadDocument(ctx context.Context, kind string, q url.Values, p UploadDocumentParams) (*UploadDocumentResult, error) {
	if len(p.Document) == 0 {
		return nil, ErrMissingDocument
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}

	endpoint := strings.TrimRight(c.cfg.DocumentsEndpoint, "/") + "/" + kind
	resp, err := c.SendRaw(ctx, endpoint, q, contentType, p.Document)
	if err != nil {
		return nil, fmt.Errorf("upload %s document: %w", kind, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		var out UploadDocumentResult
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return nil, fmt.Errorf("upload %s document: %w: %v", kind, ErrDecode, err)
		}
		return &out, nil
	}

	if env, err := DecodeResponse(resp.Body); err == nil && env.Error != nil {
		return nil, env.Error
	}
	return nil, fmt.Errorf("upload %s document: %w: status %d", kind, ErrTransport, resp.StatusCode)
}

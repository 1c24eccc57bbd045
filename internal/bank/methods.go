package bank

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	MethodCreateBeneficiaryUL   = "create_beneficiary_ul"
	MethodGetBeneficiary        = "get_beneficiary"
	MethodListBeneficiary       = "list_beneficiary"
	MethodCreateVirtualAccount  = "create_virtual_account"
	MethodGetVirtualAccount     = "get_virtual_account"
	MethodListVirtualAccount    = "list_virtual_account"
	MethodGenerateSBPQRCode     = "generate_sbp_qrcode"
	MethodListPayments          = "list_payments"
	MethodGetPayment            = "get_payment"
	MethodIdentificationPayment = "identification_payment"
)

type BeneficiaryData struct {
	Name     string  `json:"name"`
	KPP      string  `json:"kpp"`
	OGRN     *string `json:"ogrn,omitempty"`
	IsBranch *bool   `json:"is_branch,omitempty"`
}

type CreateBeneficiaryULRequest struct {
	INN                string          `json:"inn"`
	NominalAccountCode string          `json:"nominal_account_code"`
	NominalAccountBIC  string          `json:"nominal_account_bic"`
	BeneficiaryData    BeneficiaryData `json:"beneficiary_data"`
}

type CreatedBeneficiary struct {
	ID                 string `json:"id"`
	INN                string `json:"inn"`
	NominalAccountCode string `json:"nominal_account_code"`
	NominalAccountBIC  string `json:"nominal_account_bic"`
}

func (c *Client) CreateBeneficiaryUL(ctx context.Context, req CreateBeneficiaryULRequest) (*CreatedBeneficiary, error) {
	var out struct {
		Beneficiary CreatedBeneficiary `json:"beneficiary"`
	}
	if err := c.Call(ctx, MethodCreateBeneficiaryUL, req, &out); err != nil {
		return nil, err
	}
	return &out.Beneficiary, nil
}

type BeneficiaryInfo struct {
	ID              string          `json:"id"`
	INN             string          `json:"inn"`
	IsActive        bool            `json:"is_active"`
	LegalType       string          `json:"legal_type"`
	OGRN            *string         `json:"ogrn"`
	BeneficiaryData BeneficiaryData `json:"beneficiary_data"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type NominalAccount struct {
	Code        string `json:"code"`
	BIC         string `json:"bic"`
	IsAddedToMS *bool  `json:"is_added_to_ms"`
}

type GetBeneficiaryResponse struct {
	Beneficiary           BeneficiaryInfo `json:"beneficiary"`
	NominalAccount        NominalAccount  `json:"nominal_account"`
	LastContractOffer     json.RawMessage `json:"last_contract_offer,omitempty"`
	Permission            bool            `json:"permission"`
	PermissionDescription *string         `json:"permission_description"`
}

// AddedToSettlement reports whether the bank finished onboarding the
// beneficiary's nominal account.
func (r *GetBeneficiaryResponse) AddedToSettlement() bool {
	return r.NominalAccount.IsAddedToMS != nil && *r.NominalAccount.IsAddedToMS
}

func (c *Client) GetBeneficiary(ctx context.Context, beneficiaryID string) (*GetBeneficiaryResponse, error) {
	params := struct {
		BeneficiaryID string `json:"beneficiary_id"`
	}{beneficiaryID}

	var out GetBeneficiaryResponse
	if err := c.Call(ctx, MethodGetBeneficiary, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ListBeneficiaryFilters struct {
	INN                *string `json:"inn,omitempty"`
	NominalAccountCode *string `json:"nominal_account_code,omitempty"`
	NominalAccountBIC  *string `json:"nominal_account_bic,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
	LegalType          string  `json:"legal_type,omitempty"`
}

type BeneficiarySummary struct {
	ID                 string `json:"id"`
	INN                string `json:"inn"`
	NominalAccountCode string `json:"nominal_account_code"`
	NominalAccountBIC  string `json:"nominal_account_bic"`
	IsActive           bool   `json:"is_active"`
	LegalType          string `json:"legal_type"`
}

func (c *Client) ListBeneficiary(ctx context.Context, filters ListBeneficiaryFilters) ([]BeneficiarySummary, error) {
	params := struct {
		Filters ListBeneficiaryFilters `json:"filters"`
	}{filters}

	var out struct {
		Beneficiaries []BeneficiarySummary `json:"beneficiaries"`
	}
	if err := c.Call(ctx, MethodListBeneficiary, params, &out); err != nil {
		return nil, err
	}
	return out.Beneficiaries, nil
}

type CreateVirtualAccountRequest struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Type          string `json:"virtual_account_type,omitempty"`
}

// CreateVirtualAccount allocates a virtual account and returns its code.
func (c *Client) CreateVirtualAccount(ctx context.Context, req CreateVirtualAccountRequest) (string, error) {
	var out struct {
		VirtualAccount string `json:"virtual_account"`
	}
	if err := c.Call(ctx, MethodCreateVirtualAccount, req, &out); err != nil {
		return "", err
	}
	return out.VirtualAccount, nil
}

type VirtualAccount struct {
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Cash           decimal.Decimal `json:"cash"`
	BlockedCash    decimal.Decimal `json:"blocked_cash"`
	BeneficiaryID  string          `json:"beneficiary_id"`
	BeneficiaryINN string          `json:"beneficiary_inn"`
}

func (c *Client) GetVirtualAccount(ctx context.Context, code string) (*VirtualAccount, error) {
	params := struct {
		VirtualAccount string `json:"virtual_account"`
	}{code}

	var out struct {
		VirtualAccount VirtualAccount `json:"virtual_account"`
	}
	if err := c.Call(ctx, MethodGetVirtualAccount, params, &out); err != nil {
		return nil, err
	}
	return &out.VirtualAccount, nil
}

type VirtualAccountFilter struct {
	BeneficiaryID string `json:"id,omitempty"`
	IsActive      *bool  `json:"is_active,omitempty"`
	LegalType     string `json:"legal_type,omitempty"`
	INN           string `json:"inn,omitempty"`
}

func (c *Client) ListVirtualAccount(ctx context.Context, filter VirtualAccountFilter) ([]string, error) {
	params := map[string]any{
		"filters": map[string]any{"beneficiary": filter},
	}

	var out struct {
		VirtualAccounts []string `json:"virtual_accounts"`
	}
	if err := c.Call(ctx, MethodListVirtualAccount, params, &out); err != nil {
		return nil, err
	}
	return out.VirtualAccounts, nil
}

type GenerateSBPQRCodeRequest struct {
	Amount             uint64 `json:"amount"`
	Purpose            string `json:"purpose"`
	NominalAccountCode string `json:"nominal_account_code"`
	NominalAccountBIC  string `json:"nominal_account_bic"`
	Width              uint32 `json:"width"`
	Height             uint32 `json:"height"`
}

type QRCodeImage struct {
	MediaType     string `json:"media_type"`
	ContentBase64 string `json:"content_base64"`
	Width         uint32 `json:"width"`
	Height        uint32 `json:"height"`
}

type QRCode struct {
	ID    string      `json:"id"`
	URL   string      `json:"url"`
	Image QRCodeImage `json:"image"`
}

func (c *Client) GenerateSBPQRCode(ctx context.Context, req GenerateSBPQRCodeRequest) (*QRCode, error) {
	var out struct {
		QRCode QRCode `json:"qrcode"`
	}
	if err := c.Call(ctx, MethodGenerateSBPQRCode, req, &out); err != nil {
		return nil, err
	}
	return &out.QRCode, nil
}

type ListPaymentsFilters struct {
	QRCodeID *string `json:"c2b_qr_code_id,omitempty"`
	Identify *bool   `json:"identify,omitempty"`
	Incoming *bool   `json:"incoming,omitempty"`
	Type     string  `json:"type,omitempty"`
	Account  string  `json:"account,omitempty"`
	BIC      string  `json:"bic,omitempty"`
}

// ListPayments returns the ids of payments matching filters.
func (c *Client) ListPayments(ctx context.Context, filters ListPaymentsFilters) ([]string, error) {
	params := struct {
		Filters ListPaymentsFilters `json:"filters"`
	}{filters}

	var out struct {
		Payments []string `json:"payments"`
	}
	if err := c.Call(ctx, MethodListPayments, params, &out); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

type PaymentParticipant struct {
	Account                  string  `json:"account"`
	BankCode                 string  `json:"bank_code"`
	BankName                 string  `json:"bank_name"`
	Name                     string  `json:"name"`
	TaxCode                  string  `json:"tax_code"`
	TaxReasonCode            *string `json:"tax_reason_code"`
	BankCorrespondentAccount *string `json:"bank_correspondent_account"`
}

type Payment struct {
	ID             string             `json:"id"`
	Amount         decimal.Decimal    `json:"amount"`
	DocumentNumber string             `json:"document_number"`
	DealID         *string            `json:"deal_id"`
	DocumentDate   string             `json:"document_date"`
	Status         string             `json:"status"`
	Type           string             `json:"type"`
	Purpose        string             `json:"purpose"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
	Incoming       bool               `json:"incoming"`
	Identify       bool               `json:"identify"`
	QRCodeID       *string            `json:"qrcode_id"`
	Payer          PaymentParticipant `json:"payer"`
	Recipient      PaymentParticipant `json:"recipient"`
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	params := struct {
		PaymentID string `json:"payment_id"`
	}{paymentID}

	var out struct {
		Payment Payment `json:"payment"`
	}
	if err := c.Call(ctx, MethodGetPayment, params, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

type PaymentOwner struct {
	VirtualAccount string `json:"virtual_account"`
	Amount         uint64 `json:"amount"`
}

type IdentifyPaymentRequest struct {
	PaymentID string         `json:"payment_id"`
	Owners    []PaymentOwner `json:"owners"`
}

type VirtualAccountBalance struct {
	Code string          `json:"code"`
	Cash decimal.Decimal `json:"cash"`
}

// IdentifyPayment attributes an unidentified incoming payment to virtual
// accounts.
func (c *Client) IdentifyPayment(ctx context.Context, req IdentifyPaymentRequest) ([]VirtualAccountBalance, error) {
	var out struct {
		VirtualAccounts []VirtualAccountBalance `json:"virtual_accounts"`
	}
	if err := c.Call(ctx, MethodIdentificationPayment, req, &out); err != nil {
		return nil, err
	}
	return out.VirtualAccounts, nil
}

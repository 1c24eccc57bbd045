package service

import (
	"context"

	"charitypay/internal/bank"
)

// Bank is the part of the bank client the route services use.
type Bank interface {
	CreateBeneficiaryUL(ctx context.Context, req bank.CreateBeneficiaryULRequest) (*bank.CreatedBeneficiary, error)
	GetBeneficiary(ctx context.Context, beneficiaryID string) (*bank.GetBeneficiaryResponse, error)
	ListBeneficiary(ctx context.Context, filters bank.ListBeneficiaryFilters) ([]bank.BeneficiarySummary, error)
	UploadBeneficiaryDocument(ctx context.Context, p bank.UploadDocumentParams) (*bank.UploadDocumentResult, error)
	CreateVirtualAccount(ctx context.Context, req bank.CreateVirtualAccountRequest) (string, error)
	GetVirtualAccount(ctx context.Context, code string) (*bank.VirtualAccount, error)
	GenerateSBPQRCode(ctx context.Context, req bank.GenerateSBPQRCodeRequest) (*bank.QRCode, error)
}

// Scheduler hands long-running follow-ups to the background pool. Both
// methods report false when the job was not queued; the sweeper retries it
// later.
type Scheduler interface {
	ReconcileDonation(qrCodeID string) bool
	WatchSettlement(beneficiaryID string) bool
}

// NominalAccount is the platform's own account that beneficiaries and QR
// codes are bound to.
type NominalAccount struct {
	Code string
	BIC  string
}

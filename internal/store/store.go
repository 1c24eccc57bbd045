// Package store owns beneficiaries, charity projects, pending donations and
// beneficiary documents. Every other package refers to them by id.
package store

import (
	"context"
	"errors"

	"charitypay/internal/model"
)

var (
	ErrDuplicateID     = errors.New("duplicate id")
	ErrDuplicateName   = errors.New("project name already used by beneficiary")
	ErrNotFound        = errors.New("not found")
	ErrProjectMismatch = errors.New("donation belongs to another project")
	ErrDonationClosed  = errors.New("donation already in a terminal state")
	ErrAmountRange     = errors.New("amount out of range")
)

type Store interface {
	CreateBeneficiary(ctx context.Context, b model.Beneficiary) error
	// MarkAddedToSettlement is idempotent.
	MarkAddedToSettlement(ctx context.Context, id string) error
	GetBeneficiary(ctx context.Context, id string) (*model.Beneficiary, error)
	ListBeneficiaries(ctx context.Context) ([]model.Beneficiary, error)

	ProjectNameTaken(ctx context.Context, beneficiaryID, name string) (bool, error)
	CreateCharityProject(ctx context.Context, p model.CharityProject) error
	GetCharityProject(ctx context.Context, id string) (*model.CharityProject, error)
	ListCharityProjects(ctx context.Context) ([]model.CharityProject, error)
	ListBeneficiaryProjects(ctx context.Context, beneficiaryID string) ([]model.CharityProject, error)

	// CreditProject adds amount to the project once per qrCodeID and marks
	// the donation credited. It reports false when the donation was already
	// credited.
	CreditProject(ctx context.Context, qrCodeID, projectID string, amount uint64) (bool, error)

	RecordPendingDonation(ctx context.Context, d model.PendingDonation) error
	// ResolvePendingDonation keeps returning the record after it is credited.
	ResolvePendingDonation(ctx context.Context, qrCodeID string) (*model.PendingDonation, error)
	// SetDonationState fails with ErrDonationClosed once the donation is
	// terminal. An empty paymentID leaves the stored one untouched.
	SetDonationState(ctx context.Context, qrCodeID string, state model.DonationState, paymentID, reason string) error
	ListOpenDonations(ctx context.Context) ([]model.PendingDonation, error)

	StoreBeneficiaryDocument(ctx context.Context, d model.Document) error
	ListBeneficiaryDocuments(ctx context.Context, beneficiaryID string) ([]model.Document, error)
}

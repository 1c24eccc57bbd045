package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"charitypay/internal/bank"
	"charitypay/internal/model"
	"charitypay/internal/store"
)

const (
	qrCodeSize = 300

	// MaxAmount is the largest amount the bank accepts for a QR code or a
	// payment identification.
	MaxAmount = math.MaxUint32
)

var (
	ErrInvalidAmount = errors.New("amount must be between 1 and 4294967295")
	ErrCapExceeded   = errors.New("donation exceeds project cap")
)

type DonationService struct {
	bank      Bank
	store     store.Store
	scheduler Scheduler
	nominal   NominalAccount
}

func NewDonationService(b Bank, s store.Store, sch Scheduler, nominal NominalAccount) *DonationService {
	return &DonationService{bank: b, store: s, scheduler: sch, nominal: nominal}
}

type CreateDonationInput struct {
	ProjectID string
	Amount    uint64
	Purpose   string
}

// DonationQR is what a donor needs to pay: the QR code and its payment link.
type DonationQR struct {
	QRCodeID  string              `json:"qr_code_id"`
	ProjectID string              `json:"project_id"`
	Amount    uint64              `json:"amount"`
	State     model.DonationState `json:"state"`
	URL       string              `json:"url"`
	Image     bank.QRCodeImage    `json:"image"`
}

// Create issues an SBP QR code for amount, records the donation intent and
// hands the donation to the reconciliation pool.
func (s *DonationService) Create(ctx context.Context, in CreateDonationInput) (*DonationQR, error) {
	if in.Amount == 0 || in.Amount > MaxAmount {
		return nil, ErrInvalidAmount
	}

	p, err := s.store.GetCharityProject(ctx, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p.Cap > 0 && (p.Collected >= p.Cap || in.Amount > p.Cap-p.Collected) {
		return nil, fmt.Errorf("project %s collected %d of %d: %w", p.ID, p.Collected, p.Cap, ErrCapExceeded)
	}

	purpose := in.Purpose
	if purpose == "" {
		purpose = fmt.Sprintf("Donation to %s", p.Name)
	}
	qr, err := s.bank.GenerateSBPQRCode(ctx, bank.GenerateSBPQRCodeRequest{
		Amount:             in.Amount,
		Purpose:            purpose,
		NominalAccountCode: s.nominal.Code,
		NominalAccountBIC:  s.nominal.BIC,
		Width:              qrCodeSize,
		Height:             qrCodeSize,
	})
	if err != nil {
		return nil, fmt.Errorf("generate qr code: %w", err)
	}

	err = s.store.RecordPendingDonation(ctx, model.PendingDonation{
		QRCodeID:  qr.ID,
		ProjectID: p.ID,
		Amount:    in.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("record donation: %w", err)
	}
	slog.Info("donation awaiting payment", "qr_code_id", qr.ID, "project_id", p.ID, "amount", in.Amount)

	if !s.scheduler.ReconcileDonation(qr.ID) {
		slog.Warn("reconciliation not scheduled", "qr_code_id", qr.ID)
	}

	return &DonationQR{
		QRCodeID:  qr.ID,
		ProjectID: p.ID,
		Amount:    in.Amount,
		State:     model.DonationAwaitingPayment,
		URL:       qr.URL,
		Image:     qr.Image,
	}, nil
}

func (s *DonationService) Status(ctx context.Context, qrCodeID string) (*model.PendingDonation, error) {
	d, err := s.store.ResolvePendingDonation(ctx, qrCodeID)
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"charitypay/internal/bank"
	"charitypay/internal/model"
	"charitypay/internal/store"
)

var ErrNotSettled = errors.New("beneficiary is not added to settlement yet")

type BeneficiaryService struct {
	bank      Bank
	store     store.Store
	scheduler Scheduler
	nominal   NominalAccount
}

func NewBeneficiaryService(b Bank, s store.Store, sch Scheduler, nominal NominalAccount) *BeneficiaryService {
	return &BeneficiaryService{bank: b, store: s, scheduler: sch, nominal: nominal}
}

type CreateBeneficiaryInput struct {
	INN  string
	Data model.BeneficiaryData
}

// Create registers a legal entity with the bank, keeps the bank-assigned id
// locally and starts watching for settlement onboarding.
func (s *BeneficiaryService) Create(ctx context.Context, in CreateBeneficiaryInput) (*model.Beneficiary, error) {
	created, err := s.bank.CreateBeneficiaryUL(ctx, bank.CreateBeneficiaryULRequest{
		INN:                in.INN,
		NominalAccountCode: s.nominal.Code,
		NominalAccountBIC:  s.nominal.BIC,
		BeneficiaryData: bank.BeneficiaryData{
			Name:     in.Data.Name,
			KPP:      in.Data.KPP,
			OGRN:     in.Data.OGRN,
			IsBranch: in.Data.IsBranch,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create beneficiary in bank: %w", err)
	}

	b := model.Beneficiary{
		ID:   created.ID,
		INN:  in.INN,
		Data: in.Data,
	}
	if err := s.store.CreateBeneficiary(ctx, b); err != nil {
		return nil, fmt.Errorf("store beneficiary: %w", err)
	}
	slog.Info("beneficiary created", "beneficiary_id", b.ID, "inn", b.INN)

	if !s.scheduler.WatchSettlement(b.ID) {
		slog.Warn("settlement watch not scheduled", "beneficiary_id", b.ID)
	}

	return s.store.GetBeneficiary(ctx, b.ID)
}

// BeneficiaryView is the local record plus the bank's current view of it.
type BeneficiaryView struct {
	model.Beneficiary
	Bank *bank.GetBeneficiaryResponse `json:"bank,omitempty"`
}

// Get returns the local record. The bank's view is attached when the bank
// answers; a failed lookup only costs that part of the response.
func (s *BeneficiaryService) Get(ctx context.Context, id string) (*BeneficiaryView, error) {
	b, err := s.store.GetBeneficiary(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}
	view := &BeneficiaryView{Beneficiary: *b}

	info, err := s.bank.GetBeneficiary(ctx, id)
	if err != nil {
		slog.Warn("bank beneficiary lookup failed", "beneficiary_id", id, "error", err)
		return view, nil
	}
	view.Bank = info

	if info.AddedToSettlement() && !b.AddedToSettlement {
		if err := s.store.MarkAddedToSettlement(ctx, id); err != nil {
			slog.Warn("mark added to settlement failed", "beneficiary_id", id, "error", err)
		} else {
			view.AddedToSettlement = true
		}
	}

	return view, nil
}

// List asks the bank for the beneficiaries registered on the nominal account.
func (s *BeneficiaryService) List(ctx context.Context, inn string) ([]bank.BeneficiarySummary, error) {
	filters := bank.ListBeneficiaryFilters{
		NominalAccountCode: &s.nominal.Code,
		NominalAccountBIC:  &s.nominal.BIC,
	}
	if inn != "" {
		filters.INN = &inn
	}

	list, err := s.bank.ListBeneficiary(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries in bank: %w", err)
	}
	if list == nil {
		list = []bank.BeneficiarySummary{}
	}
	return list, nil
}

func (s *BeneficiaryService) Projects(ctx context.Context, id string) ([]model.CharityProject, error) {
	projects, err := s.store.ListBeneficiaryProjects(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list beneficiary projects: %w", err)
	}
	return projects, nil
}

type UploadDocumentInput struct {
	BeneficiaryID string
	Type          string
	Number        string
	Date          string
	ContentType   string
	Content       []byte
}

// UploadDocument sends a document for a beneficiary the bank has finished
// onboarding and remembers the bank's document id.
func (s *BeneficiaryService) UploadDocument(ctx context.Context, in UploadDocumentInput) (*model.Document, error) {
	b, err := s.store.GetBeneficiary(ctx, in.BeneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}
	if !b.AddedToSettlement {
		return nil, ErrNotSettled
	}

	if in.Type == "" {
		in.Type = bank.DocumentTypeContractOffer
	}
	res, err := s.bank.UploadBeneficiaryDocument(ctx, bank.UploadDocumentParams{
		BeneficiaryID:  in.BeneficiaryID,
		DocumentType:   in.Type,
		DocumentNumber: in.Number,
		DocumentDate:   in.Date,
		ContentType:    in.ContentType,
		Document:       in.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("upload beneficiary document: %w", err)
	}

	doc := model.Document{
		ID:            res.DocumentID,
		BeneficiaryID: in.BeneficiaryID,
		Type:          in.Type,
		Number:        in.Number,
		Date:          in.Date,
		ContentType:   in.ContentType,
		UploadedAt:    time.Now().UTC(),
	}
	if err := s.store.StoreBeneficiaryDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	slog.Info("beneficiary document uploaded", "beneficiary_id", in.BeneficiaryID, "document_id", doc.ID)

	return &doc, nil
}

func (s *BeneficiaryService) Documents(ctx context.Context, id string) ([]model.Document, error) {
	docs, err := s.store.ListBeneficiaryDocuments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list beneficiary documents: %w", err)
	}
	return docs, nil
}

package service

import (
	"context"
	"fmt"
	"sync"

	"charitypay/internal/bank"
)

var testNominal = NominalAccount{Code: "40702810000000000001", BIC: "044525104"}

// fakeBank keeps just enough bank state for the route services.
type fakeBank struct {
	mu sync.Mutex

	beneficiaries map[string]bank.CreateBeneficiaryULRequest // by id
	byINN         map[string]string
	settled       map[string]bool
	accounts      map[string]string // code -> beneficiary id
	nextID        int

	// reuseIDs makes a repeated create_beneficiary_ul answer with the
	// existing id instead of a bank error.
	reuseIDs bool
	failWith error

	qrRequests []bank.GenerateSBPQRCodeRequest
	uploads    []bank.UploadDocumentParams
	listCalls  []bank.ListBeneficiaryFilters
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		beneficiaries: map[string]bank.CreateBeneficiaryULRequest{},
		byINN:         map[string]string{},
		settled:       map[string]bool{},
		accounts:      map[string]string{},
	}
}

func (f *fakeBank) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBank) CreateBeneficiaryUL(_ context.Context, req bank.CreateBeneficiaryULRequest) (*bank.CreatedBeneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	if id, ok := f.byINN[req.INN]; ok {
		if !f.reuseIDs {
			return nil, &bank.Error{Code: 4409, Message: "beneficiary with this inn already exists"}
		}
		return &bank.CreatedBeneficiary{ID: id, INN: req.INN}, nil
	}
	id := f.id("ben")
	f.byINN[req.INN] = id
	f.beneficiaries[id] = req
	return &bank.CreatedBeneficiary{
		ID:                 id,
		INN:                req.INN,
		NominalAccountCode: req.NominalAccountCode,
		NominalAccountBIC:  req.NominalAccountBIC,
	}, nil
}

func (f *fakeBank) GetBeneficiary(_ context.Context, id string) (*bank.GetBeneficiaryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	req, ok := f.beneficiaries[id]
	if !ok {
		return nil, &bank.Error{Code: 4404, Message: "beneficiary not found"}
	}
	settled := f.settled[id]
	return &bank.GetBeneficiaryResponse{
		Beneficiary: bank.BeneficiaryInfo{
			ID:              id,
			INN:             req.INN,
			IsActive:        true,
			LegalType:       "J",
			BeneficiaryData: req.BeneficiaryData,
		},
		NominalAccount: bank.NominalAccount{
			Code:        req.NominalAccountCode,
			BIC:         req.NominalAccountBIC,
			IsAddedToMS: &settled,
		},
	}, nil
}

func (f *fakeBank) ListBeneficiary(_ context.Context, filters bank.ListBeneficiaryFilters) ([]bank.BeneficiarySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, filters)
	var out []bank.BeneficiarySummary
	for id, req := range f.beneficiaries {
		if filters.INN != nil && *filters.INN != req.INN {
			continue
		}
		out = append(out, bank.BeneficiarySummary{ID: id, INN: req.INN, IsActive: true, LegalType: "J"})
	}
	return out, nil
}

func (f *fakeBank) UploadBeneficiaryDocument(_ context.Context, p bank.UploadDocumentParams) (*bank.UploadDocumentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	f.uploads = append(f.uploads, p)
	return &bank.UploadDocumentResult{DocumentID: f.id("doc")}, nil
}

func (f *fakeBank) CreateVirtualAccount(_ context.Context, req bank.CreateVirtualAccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return "", f.failWith
	}
	code := f.id("va")
	f.accounts[code] = req.BeneficiaryID
	return code, nil
}

func (f *fakeBank) GetVirtualAccount(_ context.Context, code string) (*bank.VirtualAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	owner, ok := f.accounts[code]
	if !ok {
		return nil, &bank.Error{Code: 4404, Message: "virtual account not found"}
	}
	return &bank.VirtualAccount{Code: code, Type: "standard", BeneficiaryID: owner}, nil
}

func (f *fakeBank) GenerateSBPQRCode(_ context.Context, req bank.GenerateSBPQRCodeRequest) (*bank.QRCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	f.qrRequests = append(f.qrRequests, req)
	id := f.id("QR")
	return &bank.QRCode{
		ID:  id,
		URL: "https://qr.nspk.ru/" + id,
		Image: bank.QRCodeImage{
			MediaType:     "image/png",
			ContentBase64: "iVBORw0KGgo=",
			Width:         req.Width,
			Height:        req.Height,
		},
	}, nil
}

type recordingScheduler struct {
	mu          sync.Mutex
	donations   []string
	settlements []string
	refuse      bool
}

func (s *recordingScheduler) ReconcileDonation(qrCodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donations = append(s.donations, qrCodeID)
	return !s.refuse
}

func (s *recordingScheduler) WatchSettlement(beneficiaryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, beneficiaryID)
	return !s.refuse
}

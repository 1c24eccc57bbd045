package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"charitypay/internal/model"
)

// MemoryStore keeps everything in process behind one RWMutex. No method
// holds the lock while calling out.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	beneficiaries    map[string]model.Beneficiary
	beneficiaryOrder []string
	projects         map[string]model.CharityProject
	projectOrder     []string
	donations        map[string]model.PendingDonation
	donationOrder    []string
	documents        map[string][]model.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		beneficiaries: map[string]model.Beneficiary{},
		projects:      map[string]model.CharityProject{},
		donations:     map[string]model.PendingDonation{},
		documents:     map[string][]model.Document{},
	}
}

func (s *MemoryStore) CreateBeneficiary(_ context.Context, b model.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.beneficiaries[b.ID]; ok {
		return fmt.Errorf("beneficiary %s: %w", b.ID, ErrDuplicateID)
	}
	b.AddedToSettlement = false
	b.ProjectIDs = nil
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.beneficiaries[b.ID] = b
	s.beneficiaryOrder = append(s.beneficiaryOrder, b.ID)
	return nil
}

func (s *MemoryStore) MarkAddedToSettlement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.beneficiaries[id]
	if !ok {
		return fmt.Errorf("beneficiary %s: %w", id, ErrNotFound)
	}
	b.AddedToSettlement = true
	s.beneficiaries[id] = b
	return nil
}

func (s *MemoryStore) GetBeneficiary(_ context.Context, id string) (*model.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.beneficiaries[id]
	if !ok {
		return nil, fmt.Errorf("beneficiary %s: %w", id, ErrNotFound)
	}
	out := cloneBeneficiary(b)
	return &out, nil
}

func (s *MemoryStore) ListBeneficiaries(_ context.Context) ([]model.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Beneficiary, 0, len(s.beneficiaryOrder))
	for _, id := range s.beneficiaryOrder {
		out = append(out, cloneBeneficiary(s.beneficiaries[id]))
	}
	return out, nil
}

func (s *MemoryStore) ProjectNameTaken(_ context.Context, beneficiaryID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nameTakenLocked(beneficiaryID, name), nil
}

func (s *MemoryStore) nameTakenLocked(beneficiaryID, name string) bool {
	for _, id := range s.beneficiaries[beneficiaryID].ProjectIDs {
		if s.projects[id].Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateCharityProject(_ context.Context, p model.CharityProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrDuplicateID)
	}
	b, ok := s.beneficiaries[p.BeneficiaryID]
	if !ok {
		return fmt.Errorf("beneficiary %s: %w", p.BeneficiaryID, ErrNotFound)
	}
	if s.nameTakenLocked(p.BeneficiaryID, p.Name) {
		return fmt.Errorf("project %q: %w", p.Name, ErrDuplicateName)
	}

	p.Collected = 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.projects[p.ID] = p
	s.projectOrder = append(s.projectOrder, p.ID)

	b.ProjectIDs = append(append([]string(nil), b.ProjectIDs...), p.ID)
	s.beneficiaries[b.ID] = b
	return nil
}

func (s *MemoryStore) GetCharityProject(_ context.Context, id string) (*model.CharityProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) ListCharityProjects(_ context.Context) ([]model.CharityProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CharityProject, 0, len(s.projectOrder))
	for _, id := range s.projectOrder {
		out = append(out, s.projects[id])
	}
	return out, nil
}

func (s *MemoryStore) ListBeneficiaryProjects(_ context.Context, beneficiaryID string) ([]model.CharityProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, ErrNotFound)
	}
	out := make([]model.CharityProject, 0, len(b.ProjectIDs))
	for _, id := range b.ProjectIDs {
		out = append(out, s.projects[id])
	}
	return out, nil
}

func (s *MemoryStore) CreditProject(_ context.Context, qrCodeID, projectID string, amount uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.donations[qrCodeID]
	if !ok {
		return false, fmt.Errorf("donation %s: %w", qrCodeID, ErrNotFound)
	}
	if d.ProjectID != projectID {
		return false, fmt.Errorf("donation %s, project %s: %w", qrCodeID, projectID, ErrProjectMismatch)
	}
	p, ok := s.projects[projectID]
	if !ok {
		return false, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if d.Credited {
		return false, nil
	}

	p.Collected += amount
	s.projects[projectID] = p

	d.Credited = true
	d.State = model.DonationCredited
	d.Reason = ""
	d.UpdatedAt = s.now()
	s.donations[qrCodeID] = d
	return true, nil
}

func (s *MemoryStore) RecordPendingDonation(_ context.Context, d model.PendingDonation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donations[d.QRCodeID]; ok {
		return fmt.Errorf("donation %s: %w", d.QRCodeID, ErrDuplicateID)
	}
	if _, ok := s.projects[d.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", d.ProjectID, ErrNotFound)
	}

	now := s.now()
	d.State = model.DonationAwaitingPayment
	d.Credited = false
	d.PaymentID = ""
	d.Reason = ""
	d.CreatedAt = now
	d.UpdatedAt = now
	s.donations[d.QRCodeID] = d
	s.donationOrder = append(s.donationOrder, d.QRCodeID)
	return nil
}

func (s *MemoryStore) ResolvePendingDonation(_ context.Context, qrCodeID string) (*model.PendingDonation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donations[qrCodeID]
	if !ok {
		return nil, fmt.Errorf("donation %s: %w", qrCodeID, ErrNotFound)
	}
	return &d, nil
}

func (s *MemoryStore) SetDonationState(_ context.Context, qrCodeID string, state model.DonationState, paymentID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.donations[qrCodeID]
	if !ok {
		return fmt.Errorf("donation %s: %w", qrCodeID, ErrNotFound)
	}
	if d.State.Terminal() {
		return fmt.Errorf("donation %s is %s: %w", qrCodeID, d.State, ErrDonationClosed)
	}

	d.State = state
	if paymentID != "" {
		d.PaymentID = paymentID
	}
	d.Reason = reason
	d.UpdatedAt = s.now()
	s.donations[qrCodeID] = d
	return nil
}

func (s *MemoryStore) ListOpenDonations(_ context.Context) ([]model.PendingDonation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PendingDonation
	for _, id := range s.donationOrder {
		if d := s.donations[id]; !d.State.Terminal() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) StoreBeneficiaryDocument(_ context.Context, d model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.beneficiaries[d.BeneficiaryID]; !ok {
		return fmt.Errorf("beneficiary %s: %w", d.BeneficiaryID, ErrNotFound)
	}
	for _, existing := range s.documents[d.BeneficiaryID] {
		if existing.ID == d.ID {
			return fmt.Errorf("document %s: %w", d.ID, ErrDuplicateID)
		}
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = s.now()
	}
	s.documents[d.BeneficiaryID] = append(s.documents[d.BeneficiaryID], d)
	return nil
}

func (s *MemoryStore) ListBeneficiaryDocuments(_ context.Context, beneficiaryID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.beneficiaries[beneficiaryID]; !ok {
		return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, ErrNotFound)
	}
	return append([]model.Document(nil), s.documents[beneficiaryID]...), nil
}

func cloneBeneficiary(b model.Beneficiary) model.Beneficiary {
	b.ProjectIDs = append(make([]string, 0, len(b.ProjectIDs)), b.ProjectIDs...)
	return b
}

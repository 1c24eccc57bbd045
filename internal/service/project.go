package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"charitypay/internal/bank"
	"charitypay/internal/model"
	"charitypay/internal/store"
)

type ProjectService struct {
	bank  Bank
	store store.Store
}

func NewProjectService(b Bank, s store.Store) *ProjectService {
	return &ProjectService{bank: b, store: s}
}

type CreateProjectInput struct {
	BeneficiaryID string
	Name          string
	Description   string
	Cap           uint64
}

// Create allocates a virtual account for the project. The name is checked
// before the allocation because the bank does not know project names.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*model.CharityProject, error) {
	if _, err := s.store.GetBeneficiary(ctx, in.BeneficiaryID); err != nil {
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}

	taken, err := s.store.ProjectNameTaken(ctx, in.BeneficiaryID, in.Name)
	if err != nil {
		return nil, fmt.Errorf("check project name: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("project %q: %w", in.Name, store.ErrDuplicateName)
	}

	code, err := s.bank.CreateVirtualAccount(ctx, bank.CreateVirtualAccountRequest{BeneficiaryID: in.BeneficiaryID})
	if err != nil {
		return nil, fmt.Errorf("create virtual account: %w", err)
	}

	p := model.CharityProject{
		ID:            code,
		BeneficiaryID: in.BeneficiaryID,
		Name:          in.Name,
		Description:   in.Description,
		Cap:           in.Cap,
	}
	if err := s.store.CreateCharityProject(ctx, p); err != nil {
		// The account stays allocated in the bank; nothing here can free it.
		slog.Warn("virtual account allocated but project not stored",
			"virtual_account", code, "beneficiary_id", in.BeneficiaryID, "error", err)
		return nil, fmt.Errorf("store project: %w", err)
	}
	slog.Info("charity project created", "project_id", code, "beneficiary_id", in.BeneficiaryID, "name", in.Name)

	return s.store.GetCharityProject(ctx, code)
}

// Get returns a locally tracked project. On a miss the bank is asked about
// the account so an untracked virtual account shows up in the logs; the
// caller still gets ErrNotFound.
func (s *ProjectService) Get(ctx context.Context, id string) (*model.CharityProject, error) {
	p, err := s.store.GetCharityProject(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get project: %w", err)
	}

	if acc, bankErr := s.bank.GetVirtualAccount(ctx, id); bankErr == nil {
		slog.Warn("virtual account known to bank but not tracked locally",
			"virtual_account", id, "beneficiary_id", acc.BeneficiaryID)
	}
	return nil, fmt.Errorf("get project: %w", err)
}

func (s *ProjectService) List(ctx context.Context) ([]model.CharityProject, error) {
	projects, err := s.store.ListCharityProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

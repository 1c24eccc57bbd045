package store

import (
	"context"
	"errors"
	"testing"

	"charitypay/internal/model"
)

func testBeneficiary(id, name string) model.Beneficiary {
	return model.Beneficiary{
		ID:   id,
		INN:  "7707083893",
		Data: model.BeneficiaryData{Name: name, KPP: "770701001"},
	}
}

func testProject(id, beneficiaryID, name string) model.CharityProject {
	return model.CharityProject{ID: id, BeneficiaryID: beneficiaryID, Name: name, Description: "d", Cap: 100000}
}

// runStoreSuite checks the Store contract. newStore must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("beneficiary uniqueness", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateBeneficiary(ctx, testBeneficiary("B1", "Test Org")); err != nil {
			t.Fatalf("CreateBeneficiary: %v", err)
		}
		err := s.CreateBeneficiary(ctx, testBeneficiary("B1", "Other Org"))
		if !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}

		b, err := s.GetBeneficiary(ctx, "B1")
		if err != nil {
			t.Fatalf("GetBeneficiary: %v", err)
		}
		if b.Data.Name != "Test Org" || b.Data.KPP != "770701001" || b.AddedToSettlement {
			t.Fatalf("unexpected beneficiary after failed duplicate: %+v", b)
		}
		list, err := s.ListBeneficiaries(ctx)
		if err != nil || len(list) != 1 {
			t.Fatalf("unexpected beneficiaries: %v %v", list, err)
		}
		if _, err := s.GetBeneficiary(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("mark added to settlement", func(t *testing.T) {
		s := newStore(t)
		if err := s.MarkAddedToSettlement(ctx, "B1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.CreateBeneficiary(ctx, testBeneficiary("B1", "Test Org")); err != nil {
			t.Fatalf("CreateBeneficiary: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.MarkAddedToSettlement(ctx, "B1"); err != nil {
				t.Fatalf("MarkAddedToSettlement #%d: %v", i, err)
			}
		}
		b, _ := s.GetBeneficiary(ctx, "B1")
		if !b.AddedToSettlement {
			t.Fatalf("expected flag to be set")
		}
	})

	t.Run("projects", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"B1", "B2"} {
			if err := s.CreateBeneficiary(ctx, testBeneficiary(id, "Org "+id)); err != nil {
				t.Fatalf("CreateBeneficiary: %v", err)
			}
		}
		if err := s.CreateCharityProject(ctx, testProject("P1", "B1", "Food")); err != nil {
			t.Fatalf("CreateCharityProject: %v", err)
		}

		if taken, _ := s.ProjectNameTaken(ctx, "B1", "Food"); !taken {
			t.Fatalf("expected name to be taken for B1")
		}
		if taken, _ := s.ProjectNameTaken(ctx, "B2", "Food"); taken {
			t.Fatalf("name must be scoped to the beneficiary")
		}
		if err := s.CreateCharityProject(ctx, testProject("P2", "B1", "Food")); !errors.Is(err, ErrDuplicateName) {
			t.Fatalf("expected ErrDuplicateName, got %v", err)
		}
		if err := s.CreateCharityProject(ctx, testProject("P1", "B2", "Water")); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		if err := s.CreateCharityProject(ctx, testProject("P3", "nobody", "Water")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.CreateCharityProject(ctx, testProject("P4", "B2", "Food")); err != nil {
			t.Fatalf("CreateCharityProject for B2: %v", err)
		}

		b1, _ := s.GetBeneficiary(ctx, "B1")
		if len(b1.ProjectIDs) != 1 || b1.ProjectIDs[0] != "P1" {
			t.Fatalf("unexpected project ids: %v", b1.ProjectIDs)
		}
		own, err := s.ListBeneficiaryProjects(ctx, "B2")
		if err != nil || len(own) != 1 || own[0].ID != "P4" {
			t.Fatalf("unexpected B2 projects: %v %v", own, err)
		}
		if _, err := s.ListBeneficiaryProjects(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		all, _ := s.ListCharityProjects(ctx)
		if len(all) != 2 {
			t.Fatalf("expected 2 projects, got %d", len(all))
		}
		p, err := s.GetCharityProject(ctx, "P1")
		if err != nil || p.Collected != 0 || p.Cap != 100000 || p.Name != "Food" {
			t.Fatalf("unexpected project: %+v %v", p, err)
		}
	})

	t.Run("idempotent credit", func(t *testing.T) {
		s := newStore(t)
		seedProject(t, s)
		if err := s.RecordPendingDonation(ctx, model.PendingDonation{QRCodeID: "QR1", ProjectID: "P1", Amount: 1000}); err != nil {
			t.Fatalf("RecordPendingDonation: %v", err)
		}

		applied, err := s.CreditProject(ctx, "QR1", "P1", 1000)
		if err != nil || !applied {
			t.Fatalf("first credit: applied=%v err=%v", applied, err)
		}
		applied, err = s.CreditProject(ctx, "QR1", "P1", 1000)
		if err != nil || applied {
			t.Fatalf("second credit: applied=%v err=%v", applied, err)
		}

		p, _ := s.GetCharityProject(ctx, "P1")
		if p.Collected != 1000 {
			t.Fatalf("expected collected 1000, got %d", p.Collected)
		}

		d, err := s.ResolvePendingDonation(ctx, "QR1")
		if err != nil {
			t.Fatalf("ResolvePendingDonation after credit: %v", err)
		}
		if d.ProjectID != "P1" || d.Amount != 1000 || d.State != model.DonationCredited || !d.Credited {
			t.Fatalf("unexpected donation: %+v", d)
		}
		if err := s.SetDonationState(ctx, "QR1", model.DonationAbandoned, "", "late"); !errors.Is(err, ErrDonationClosed) {
			t.Fatalf("expected ErrDonationClosed, got %v", err)
		}
		open, _ := s.ListOpenDonations(ctx)
		if len(open) != 0 {
			t.Fatalf("credited donation must not be open: %v", open)
		}
	})

	t.Run("credit errors", func(t *testing.T) {
		s := newStore(t)
		seedProject(t, s)
		if _, err := s.CreditProject(ctx, "QR404", "P1", 1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.RecordPendingDonation(ctx, model.PendingDonation{QRCodeID: "QR1", ProjectID: "P1", Amount: 10}); err != nil {
			t.Fatalf("RecordPendingDonation: %v", err)
		}
		if _, err := s.CreditProject(ctx, "QR1", "P2", 10); !errors.Is(err, ErrProjectMismatch) {
			t.Fatalf("expected ErrProjectMismatch, got %v", err)
		}
		p, _ := s.GetCharityProject(ctx, "P1")
		if p.Collected != 0 {
			t.Fatalf("failed credit must not change collected, got %d", p.Collected)
		}
	})

	t.Run("donation states", func(t *testing.T) {
		s := newStore(t)
		seedProject(t, s)
		d := model.PendingDonation{QRCodeID: "QR1", ProjectID: "P1", Amount: 500}
		if err := s.RecordPendingDonation(ctx, d); err != nil {
			t.Fatalf("RecordPendingDonation: %v", err)
		}
		if err := s.RecordPendingDonation(ctx, d); !errors.Is(err, ErrDuplicateID) {
			t.Fatalf("expected ErrDuplicateID, got %v", err)
		}
		if err := s.RecordPendingDonation(ctx, model.PendingDonation{QRCodeID: "QR2", ProjectID: "nope", Amount: 1}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		got, _ := s.ResolvePendingDonation(ctx, "QR1")
		if got.State != model.DonationAwaitingPayment {
			t.Fatalf("unexpected initial state: %s", got.State)
		}

		if err := s.SetDonationState(ctx, "QR1", model.DonationIdentifying, "PAY1", ""); err != nil {
			t.Fatalf("SetDonationState: %v", err)
		}
		open, _ := s.ListOpenDonations(ctx)
		if len(open) != 1 || open[0].PaymentID != "PAY1" || open[0].State != model.DonationIdentifying {
			t.Fatalf("unexpected open donations: %+v", open)
		}

		if err := s.SetDonationState(ctx, "QR1", model.DonationAbandoned, "", "bank error 1: no"); err != nil {
			t.Fatalf("SetDonationState: %v", err)
		}
		got, _ = s.ResolvePendingDonation(ctx, "QR1")
		if got.PaymentID != "PAY1" || got.Reason != "bank error 1: no" || got.Credited {
			t.Fatalf("unexpected abandoned donation: %+v", got)
		}
		if err := s.SetDonationState(ctx, "missing", model.DonationIdentifying, "", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("documents", func(t *testing.T) {
		s := newStore(t)
		doc := model.Document{ID: "DOC1", BeneficiaryID: "B1", Type: "contract_offer", Number: "1", Date: "2024-05-01", ContentType: "application/pdf"}
		if err := s.StoreBeneficiaryDocument(ctx, doc); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.CreateBeneficiary(ctx, testBeneficiary("B1", "Test Org")); err != nil {
			t.Fatalf("CreateBeneficiary: %v", err)
		}
		if err := s.StoreBeneficiaryDocument(ctx, doc); err != nil {
			t.Fatalf("StoreBeneficiaryDocument: %v", err)
		}
		docs, err := s.ListBeneficiaryDocuments(ctx, "B1")
		if err != nil || len(docs) != 1 || docs[0].ID != "DOC1" {
			t.Fatalf("unexpected documents: %v %v", docs, err)
		}
	})
}

func seedProject(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateBeneficiary(ctx, testBeneficiary("B1", "Test Org")); err != nil {
		t.Fatalf("CreateBeneficiary: %v", err)
	}
	if err := s.CreateCharityProject(ctx, testProject("P1", "B1", "Food")); err != nil {
		t.Fatalf("CreateCharityProject: %v", err)
	}
	if err := s.CreateCharityProject(ctx, testProject("P2", "B1", "Water")); err != nil {
		t.Fatalf("CreateCharityProject: %v", err)
	}
}

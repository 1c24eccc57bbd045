package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"charitypay/internal/bank"
	"charitypay/internal/model"
	"charitypay/internal/store"
)

type listResult struct {
	ids []string
	err error
}

type fakeBank struct {
	mu sync.Mutex

	// list is consumed in order; the last entry repeats.
	list        []listResult
	listCalls   int
	listFilters []bank.ListPaymentsFilters

	payments    map[string]*bank.Payment
	getErr      error
	getCalls    int
	identifyErr []error
	// identifyMarks makes a failing identify call still identify the
	// payment, like a response lost after the bank applied it.
	identifyMarks bool
	identified    []bank.IdentifyPaymentRequest
}

func newFakeBank() *fakeBank {
	return &fakeBank{payments: map[string]*bank.Payment{}}
}

func (f *fakeBank) addPayment(id string, amount int64) {
	qr := "QR1"
	f.payments[id] = &bank.Payment{ID: id, Amount: decimal.NewFromInt(amount), Incoming: true, QRCodeID: &qr}
}

func (f *fakeBank) ListPayments(_ context.Context, filters bank.ListPaymentsFilters) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listFilters = append(f.listFilters, filters)
	i := f.listCalls
	if i >= len(f.list) {
		i = len(f.list) - 1
	}
	f.listCalls++
	if i < 0 {
		return nil, nil
	}
	return f.list[i].ids, f.list[i].err
}

func (f *fakeBank) GetPayment(_ context.Context, id string) (*bank.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, &bank.Error{Code: 404, Message: "payment not found"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBank) IdentifyPayment(_ context.Context, req bank.IdentifyPaymentRequest) ([]bank.VirtualAccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.identified = append(f.identified, req)
	var err error
	if len(f.identifyErr) > 0 {
		err, f.identifyErr = f.identifyErr[0], f.identifyErr[1:]
	}
	if err == nil || f.identifyMarks {
		if p, ok := f.payments[req.PaymentID]; ok {
			p.Identify = true
		}
	}
	if err != nil {
		return nil, err
	}
	return []bank.VirtualAccountBalance{{Code: req.Owners[0].VirtualAccount}}, nil
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	// failAt makes the n-th call (1-based) return failWith.
	failAt   int
	failWith error
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delays = append(s.delays, d)
	if s.failAt > 0 && len(s.delays) == s.failAt {
		return s.failWith
	}
	return ctx.Err()
}

// seedDonation creates B1/P1, credits prior to P1 through a separate
// donation and records the pending donation QR1.
func seedDonation(t *testing.T, s store.Store, prior, amount uint64) {
	t.Helper()
	ctx := context.Background()

	if err := s.CreateBeneficiary(ctx, model.Beneficiary{ID: "B1", INN: "7707083893", Data: model.BeneficiaryData{Name: "Test Org", KPP: "770701001"}}); err != nil {
		t.Fatalf("CreateBeneficiary: %v", err)
	}
	if err := s.CreateCharityProject(ctx, model.CharityProject{ID: "P1", BeneficiaryID: "B1", Name: "Food", Cap: 1000000}); err != nil {
		t.Fatalf("CreateCharityProject: %v", err)
	}
	if prior > 0 {
		if err := s.RecordPendingDonation(ctx, model.PendingDonation{QRCodeID: "QR0", ProjectID: "P1", Amount: prior}); err != nil {
			t.Fatalf("RecordPendingDonation: %v", err)
		}
		if _, err := s.CreditProject(ctx, "QR0", "P1", prior); err != nil {
			t.Fatalf("CreditProject: %v", err)
		}
	}
	if err := s.RecordPendingDonation(ctx, model.PendingDonation{QRCodeID: "QR1", ProjectID: "P1", Amount: amount}); err != nil {
		t.Fatalf("RecordPendingDonation: %v", err)
	}
}

func collected(t *testing.T, s store.Store, projectID string) uint64 {
	t.Helper()
	p, err := s.GetCharityProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("GetCharityProject: %v", err)
	}
	return p.Collected
}

func donation(t *testing.T, s store.Store, qr string) *model.PendingDonation {
	t.Helper()
	d, err := s.ResolvePendingDonation(context.Background(), qr)
	if err != nil {
		t.Fatalf("ResolvePendingDonation: %v", err)
	}
	return d
}

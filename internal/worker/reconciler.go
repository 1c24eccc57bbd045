package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"charitypay/internal/bank"
	"charitypay/internal/lease"
	"charitypay/internal/model"
	"charitypay/internal/store"
)

const (
	reasonAmbiguous      = "ambiguous payment"
	reasonAmountMismatch = "amount mismatch"
	reasonTimedOut       = "reconciliation timed out"

	storeWriteTimeout = 10 * time.Second
	finalCheckWindow  = 5 * time.Minute
)

// PaymentBank is the part of the bank client the reconciler needs.
type PaymentBank interface {
	ListPayments(ctx context.Context, filters bank.ListPaymentsFilters) ([]string, error)
	GetPayment(ctx context.Context, paymentID string) (*bank.Payment, error)
	IdentifyPayment(ctx context.Context, req bank.IdentifyPaymentRequest) ([]bank.VirtualAccountBalance, error)
}

type ReconcilerConfig struct {
	Backoff Backoff
	// TTL bounds the wait for a payment, counted from donation creation,
	// and separately the identification phase, counted from its start.
	TTL      time.Duration
	LeaseTTL time.Duration
	Sleep    SleepFunc
	Now      func() time.Time
}

// Reconciler drives one donation through
// awaiting_payment -> identifying -> credited, or into abandoned.
// All state that must survive a restart lives in the store.
type Reconciler struct {
	bank   PaymentBank
	store  store.Store
	locker lease.Locker
	cfg    ReconcilerConfig
}

func NewReconciler(b PaymentBank, s store.Store, l lease.Locker, cfg ReconcilerConfig) *Reconciler {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{bank: b, store: s, locker: l, cfg: cfg}
}

type abandonError struct {
	reason string
}

func (e *abandonError) Error() string {
	return "abandon: " + e.reason
}

func abandonWith(err error) error {
	return &abandonError{reason: err.Error()}
}

// Reconcile runs the donation identified by qrCodeID until it is credited,
// abandoned, or ctx ends. Terminal donations are left untouched. When the
// lease is held elsewhere it returns an empty state and no error.
func (r *Reconciler) Reconcile(ctx context.Context, qrCodeID string) (model.DonationState, error) {
	l, err := r.locker.Acquire(ctx, qrCodeID, r.cfg.LeaseTTL)
	if errors.Is(err, lease.ErrNotAcquired) {
		slog.Debug("donation is being reconciled elsewhere", "qr_code_id", qrCodeID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("acquire lease: %w", err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release donation lease", "qr_code_id", qrCodeID, "error", err)
		}
	}()

	d, err := r.store.ResolvePendingDonation(ctx, qrCodeID)
	if err != nil {
		return "", fmt.Errorf("resolve donation: %w", err)
	}
	if d.State.Terminal() {
		return d.State, nil
	}

	log := slog.With("qr_code_id", d.QRCodeID, "project_id", d.ProjectID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.keepLease(runCtx, cancel, l, log)

	paymentID := d.PaymentID
	if d.State == model.DonationAwaitingPayment {
		log.Info("waiting for payment", "state", d.State, "amount", d.Amount)

		paymentID, err = r.awaitPayment(runCtx, d, log)
		if err != nil {
			return r.finish(ctx, d, err, log)
		}
		err = r.store.SetDonationState(runCtx, d.QRCodeID, model.DonationIdentifying, paymentID, "")
		if errors.Is(err, store.ErrDonationClosed) {
			return r.currentState(ctx, d)
		}
		if err != nil {
			return d.State, fmt.Errorf("save payment id: %w", err)
		}
		d.State = model.DonationIdentifying
		d.PaymentID = paymentID
		log.Info("payment found", "payment_id", paymentID, "state", d.State)
	}

	log = log.With("payment_id", paymentID)
	if err := r.identify(runCtx, d, paymentID, log); err != nil {
		return r.finish(ctx, d, err, log)
	}

	creditCtx, cancelCredit := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancelCredit()

	applied, err := r.store.CreditProject(creditCtx, d.QRCodeID, d.ProjectID, d.Amount)
	if err != nil {
		log.Error("failed to credit project", "error", err)
		return d.State, fmt.Errorf("credit project: %w", err)
	}
	if applied {
		log.Info("donation credited", "amount", d.Amount, "state", model.DonationCredited)
	} else {
		log.Info("donation was already credited", "state", model.DonationCredited)
	}
	return model.DonationCredited, nil
}

// awaitPayment polls for the donation's payment. A donation past its TTL
// still gets its bank checks: it is only abandoned once the bank has
// answered that no payment exists, or after finalCheckWindow.
func (r *Reconciler) awaitPayment(ctx context.Context, d *model.PendingDonation, log *slog.Logger) (string, error) {
	expired := false
	if r.cfg.TTL > 0 {
		var cancel context.CancelFunc
		deadline := d.CreatedAt.Add(r.cfg.TTL)
		if deadline.After(r.cfg.Now()) {
			ctx, cancel = context.WithDeadline(ctx, deadline)
		} else {
			expired = true
			ctx, cancel = context.WithTimeout(ctx, finalCheckWindow)
		}
		defer cancel()
	}

	unidentified := false
	filters := bank.ListPaymentsFilters{QRCodeID: &d.QRCodeID, Identify: &unidentified}

	bo := r.cfg.Backoff.start(ctx)
	for attempt := 1; ; attempt++ {
		ids, err := r.bank.ListPayments(ctx, filters)
		switch {
		case err != nil && ctx.Err() != nil:
		case err != nil && !bank.IsRetryable(err):
			log.Error("payment poll failed", "attempt", attempt, "error", err)
			return "", abandonWith(err)
		case err != nil:
			log.Warn("payment poll failed, retrying", "attempt", attempt, "error", err)
		case len(ids) == 1:
			return ids[0], nil
		case len(ids) > 1:
			log.Warn("several payments match the donation", "payments", ids)
			return "", &abandonError{reason: reasonAmbiguous}
		case expired:
			log.Info("no payment before the donation expired", "created_at", d.CreatedAt)
			return "", &abandonError{reason: reasonTimedOut}
		default:
			log.Debug("no payment yet", "attempt", attempt)
		}

		if err := r.wait(ctx, bo); err != nil {
			return "", err
		}
	}
}

// identify attributes the payment to the project's virtual account. A
// payment the bank already reports as identified is accepted as is, so a
// resumed task never identifies twice.
func (r *Reconciler) identify(ctx context.Context, d *model.PendingDonation, paymentID string, log *slog.Logger) error {
	if r.cfg.TTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TTL)
		defer cancel()
	}

	bo := r.cfg.Backoff.start(ctx)
	for attempt := 1; ; attempt++ {
		err := r.identifyOnce(ctx, d, paymentID, log)
		if err == nil {
			return nil
		}

		var abandon *abandonError
		switch {
		case errors.As(err, &abandon):
			return err
		case ctx.Err() != nil:
		case !bank.IsRetryable(err):
			log.Error("payment identification failed", "attempt", attempt, "error", err)
			return abandonWith(err)
		default:
			log.Warn("payment identification failed, retrying", "attempt", attempt, "error", err)
		}

		if err := r.wait(ctx, bo); err != nil {
			return err
		}
	}
}

func (r *Reconciler) identifyOnce(ctx context.Context, d *model.PendingDonation, paymentID string, log *slog.Logger) error {
	p, err := r.bank.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if !p.Amount.Equal(decimal.NewFromBigInt(new(big.Int).SetUint64(d.Amount), 0)) {
		log.Warn("payment amount differs from donation", "payment_amount", p.Amount.String(), "amount", d.Amount)
		return &abandonError{reason: reasonAmountMismatch}
	}
	if p.Identify {
		log.Info("payment is already identified")
		return nil
	}

	_, err = r.bank.IdentifyPayment(ctx, bank.IdentifyPaymentRequest{
		PaymentID: paymentID,
		Owners:    []bank.PaymentOwner{{VirtualAccount: d.ProjectID, Amount: d.Amount}},
	})
	if err != nil {
		return err
	}
	log.Info("payment identified", "virtual_account", d.ProjectID, "amount", d.Amount)
	return nil
}

// wait sleeps between attempts. Running out of the step's own deadline
// abandons the donation; cancellation from outside leaves it open.
func (r *Reconciler) wait(ctx context.Context, bo backoff.BackOff) error {
	err := pause(ctx, bo, r.cfg.Sleep)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &abandonError{reason: reasonTimedOut}
	}
	return err
}

func (r *Reconciler) finish(ctx context.Context, d *model.PendingDonation, err error, log *slog.Logger) (model.DonationState, error) {
	var abandon *abandonError
	if !errors.As(err, &abandon) || ctx.Err() != nil {
		log.Info("reconciliation interrupted", "state", d.State, "error", err)
		return d.State, err
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	setErr := r.store.SetDonationState(writeCtx, d.QRCodeID, model.DonationAbandoned, "", abandon.reason)
	if errors.Is(setErr, store.ErrDonationClosed) {
		return r.currentState(writeCtx, d)
	}
	if setErr != nil {
		return d.State, fmt.Errorf("abandon donation: %w", setErr)
	}
	log.Warn("donation abandoned", "reason", abandon.reason, "state", model.DonationAbandoned)
	return model.DonationAbandoned, nil
}

func (r *Reconciler) currentState(ctx context.Context, d *model.PendingDonation) (model.DonationState, error) {
	cur, err := r.store.ResolvePendingDonation(ctx, d.QRCodeID)
	if err != nil {
		return d.State, err
	}
	return cur.State, nil
}

func (r *Reconciler) keepLease(ctx context.Context, cancel context.CancelFunc, l lease.Lease, log *slog.Logger) {
	interval := r.cfg.LeaseTTL / 3
	if interval <= 0 {
		interval = r.cfg.LeaseTTL
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Refresh(ctx, r.cfg.LeaseTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("lost donation lease", "error", err)
				cancel()
				return
			}
		}
	}
}

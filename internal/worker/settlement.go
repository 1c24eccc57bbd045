package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"charitypay/internal/bank"
	"charitypay/internal/store"
)

var ErrSettlementExpired = errors.New("beneficiary was not added to settlement in time")

type BeneficiaryBank interface {
	GetBeneficiary(ctx context.Context, beneficiaryID string) (*bank.GetBeneficiaryResponse, error)
}

type SettlementConfig struct {
	Backoff Backoff
	// TTL is counted from beneficiary creation. A watch started after it
	// ran out still checks the bank before giving up.
	TTL   time.Duration
	Sleep SleepFunc
	Now   func() time.Time
}

// SettlementWatcher polls get_beneficiary until the bank reports the
// nominal account as added to settlement, then flips the local flag.
type SettlementWatcher struct {
	bank  BeneficiaryBank
	store store.Store
	cfg   SettlementConfig
}

func NewSettlementWatcher(b BeneficiaryBank, s store.Store, cfg SettlementConfig) *SettlementWatcher {
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SettlementWatcher{bank: b, store: s, cfg: cfg}
}

func (w *SettlementWatcher) Watch(ctx context.Context, beneficiaryID string) error {
	b, err := w.store.GetBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return fmt.Errorf("get beneficiary: %w", err)
	}
	if b.AddedToSettlement {
		return nil
	}

	expired := false
	if w.cfg.TTL > 0 {
		var cancel context.CancelFunc
		deadline := b.CreatedAt.Add(w.cfg.TTL)
		if deadline.After(w.cfg.Now()) {
			ctx, cancel = context.WithDeadline(ctx, deadline)
		} else {
			expired = true
			ctx, cancel = context.WithTimeout(ctx, finalCheckWindow)
		}
		defer cancel()
	}

	log := slog.With("beneficiary_id", beneficiaryID)
	bo := w.cfg.Backoff.start(ctx)
	for attempt := 1; ; attempt++ {
		resp, err := w.bank.GetBeneficiary(ctx, beneficiaryID)
		switch {
		case err == nil && resp.AddedToSettlement():
			if err := w.store.MarkAddedToSettlement(ctx, beneficiaryID); err != nil {
				return fmt.Errorf("mark added to settlement: %w", err)
			}
			log.Info("beneficiary added to settlement", "attempts", attempt)
			return nil
		case err != nil && ctx.Err() != nil:
		case err != nil && !bank.IsRetryable(err):
			log.Error("settlement check failed", "error", err)
			return fmt.Errorf("get beneficiary from bank: %w", err)
		case err != nil:
			log.Warn("settlement check failed, retrying", "attempt", attempt, "error", err)
		case expired:
			log.Warn("gave up waiting for settlement")
			return ErrSettlementExpired
		default:
			log.Debug("beneficiary not in settlement yet", "attempt", attempt)
		}

		if err := pause(ctx, bo, w.cfg.Sleep); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("gave up waiting for settlement")
				return ErrSettlementExpired
			}
			return err
		}
	}
}

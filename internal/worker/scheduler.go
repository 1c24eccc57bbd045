package worker

import (
	"context"
	"errors"
	"log/slog"
)

// Scheduler turns donation and beneficiary ids into pool jobs.
type Scheduler struct {
	pool       *Pool
	reconciler *Reconciler
	settlement *SettlementWatcher
}

func NewScheduler(pool *Pool, reconciler *Reconciler, settlement *SettlementWatcher) *Scheduler {
	return &Scheduler{pool: pool, reconciler: reconciler, settlement: settlement}
}

func donationKey(qrCodeID string) string {
	return "donation:" + qrCodeID
}

func settlementKey(beneficiaryID string) string {
	return "settlement:" + beneficiaryID
}

func (s *Scheduler) ReconcileDonation(qrCodeID string) bool {
	return s.pool.Submit(Job{
		Key: donationKey(qrCodeID),
		Run: func(ctx context.Context) {
			state, err := s.reconciler.Reconcile(ctx, qrCodeID)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("reconciliation stopped", "qr_code_id", qrCodeID, "state", state, "error", err)
			}
		},
	})
}

func (s *Scheduler) WatchSettlement(beneficiaryID string) bool {
	return s.pool.Submit(Job{
		Key: settlementKey(beneficiaryID),
		Run: func(ctx context.Context) {
			err := s.settlement.Watch(ctx, beneficiaryID)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSettlementExpired) {
				slog.Error("settlement watch stopped", "beneficiary_id", beneficiaryID, "error", err)
			}
		},
	})
}

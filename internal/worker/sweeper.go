package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"charitypay/internal/store"
)

type Dispatcher interface {
	ReconcileDonation(qrCodeID string) bool
	WatchSettlement(beneficiaryID string) bool
}

// Sweeper periodically re-submits every open donation and every beneficiary
// still waiting for settlement. The first sweep runs at Start, which is how
// work interrupted by a restart is picked up again.
type Sweeper struct {
	store      store.Store
	dispatcher Dispatcher
	interval   time.Duration
}

func NewSweeper(s store.Store, d Dispatcher, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: s, dispatcher: d, interval: interval}
}

func (w *Sweeper) Start(ctx context.Context) {
	slog.Info("starting sweeper", "interval", w.interval)
	if err := w.Sweep(ctx); err != nil {
		slog.Error("sweep failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}

func (w *Sweeper) Sweep(ctx context.Context) error {
	donations, err := w.store.ListOpenDonations(ctx)
	if err != nil {
		return fmt.Errorf("list open donations: %w", err)
	}
	submitted := 0
	for _, d := range donations {
		if w.dispatcher.ReconcileDonation(d.QRCodeID) {
			submitted++
		}
	}

	beneficiaries, err := w.store.ListBeneficiaries(ctx)
	if err != nil {
		return fmt.Errorf("list beneficiaries: %w", err)
	}
	watching := 0
	for _, b := range beneficiaries {
		if !b.AddedToSettlement && w.dispatcher.WatchSettlement(b.ID) {
			watching++
		}
	}

	if submitted > 0 || watching > 0 {
		slog.Info("sweep resubmitted work", "donations", submitted, "beneficiaries", watching)
	}
	return nil
}

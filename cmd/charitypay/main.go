package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charitypay/internal/bank"
	"charitypay/internal/config"
	"charitypay/internal/database"
	"charitypay/internal/handler"
	"charitypay/internal/lease"
	"charitypay/internal/service"
	"charitypay/internal/signer"
	"charitypay/internal/store"
	"charitypay/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sgn, err := newSigner(cfg)
	if err != nil {
		slog.Error("failed to init signer", "error", err)
		os.Exit(1)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	bankClient := bank.NewClient(bank.Config{
		Endpoint:          cfg.BankEndpoint,
		DocumentsEndpoint: cfg.BankDocumentsEndpoint,
		TendersEndpoint:   cfg.BankTendersEndpoint,
		SignSystem:        cfg.SignSystem,
		SignThumbprint:    cfg.SignThumbprint,
		Timeout:           cfg.BankTimeout,
	}, sgn)
	if bankClient.IsTesting() {
		slog.Warn("using the bank's pre-production environment", "endpoint", cfg.BankEndpoint)
	}

	// Workers
	pool := worker.NewPool(cfg.Workers)
	pool.Start(ctx)
	reconciler := worker.NewReconciler(bankClient, st, locker, worker.ReconcilerConfig{
		Backoff: worker.Backoff{Initial: cfg.PollInterval, Max: cfg.MaxPollInterval},
		TTL:     cfg.DonationTTL,
	})
	settlement := worker.NewSettlementWatcher(bankClient, st, worker.SettlementConfig{
		Backoff: worker.Backoff{Initial: cfg.SettlementPollInterval, Max: 10 * cfg.SettlementPollInterval},
		TTL:     cfg.SettlementTTL,
	})
	scheduler := worker.NewScheduler(pool, reconciler, settlement)
	sweeper := worker.NewSweeper(st, scheduler, cfg.SweepInterval)

	// Services
	nominal := service.NominalAccount{Code: cfg.NominalAccountCode, BIC: cfg.NominalAccountBIC}
	router := handler.NewRouter(handler.Services{
		Auth:          service.NewAuthService(cfg.OperatorLogin, cfg.OperatorPasswordHash),
		Beneficiaries: service.NewBeneficiaryService(bankClient, st, scheduler, nominal),
		Projects:      service.NewProjectService(bankClient, st),
		Donations:     service.NewDonationService(bankClient, st, scheduler, nominal),
	}, cfg.JWTSecret)

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.BankTimeout + 10*time.Second,
	}

	go sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress, "signer", cfg.SignerKind, "workers", cfg.Workers)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down...")

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	// Open donations stay open in the store and are resumed on next start.
	cancel()
	pool.Wait()

	slog.Info("server stopped")
}

func newSigner(cfg *config.Config) (signer.Signer, error) {
	switch cfg.SignerKind {
	case config.SignerKMS:
		return signer.NewKMSSigner(cfg.KMSEndpoint, cfg.KMSKeyID, cfg.KMSIAMToken, cfg.BankTimeout), nil
	case config.SignerRSA:
		s, err := signer.LoadRSAFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown signer %q", cfg.SignerKind)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURI == "" {
		slog.Warn("DATABASE_URI is empty, state is kept in memory")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, nil, err
	}
	if err := database.InitSchema(ctx, db); err != nil {
		database.CloseDB(db)
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return store.NewPostgresStore(db), func() { database.CloseDB(db) }, nil
}

func newLocker(ctx context.Context, cfg *config.Config) (lease.Locker, func(), error) {
	if cfg.RedisAddress == "" {
		return lease.NewLocalLocker(), func() {}, nil
	}

	rdb, err := lease.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}
	return lease.NewRedisLocker(rdb), closeFn, nil
}

package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	SignerRSA = "rsa"
	SignerKMS = "kms"
)

type Config struct {
	RunAddress  string
	DatabaseURI string

	RedisAddress  string
	RedisPassword string

	JWTSecret            string
	OperatorLogin        string
	OperatorPasswordHash string

	BankEndpoint          string
	BankDocumentsEndpoint string
	BankTendersEndpoint   string
	BankTimeout           time.Duration
	SignSystem            string
	SignThumbprint        string
	NominalAccountCode    string
	NominalAccountBIC     string

	SignerKind     string
	PrivateKeyPath string
	KMSEndpoint    string
	KMSKeyID       string
	KMSIAMToken    string

	PollInterval           time.Duration
	MaxPollInterval        time.Duration
	DonationTTL            time.Duration
	SettlementPollInterval time.Duration
	SettlementTTL          time.Duration
	SweepInterval          time.Duration
	Workers                int
}

// New loads .env (if present), then flags, then environment variables,
// which win over flags.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Load(os.Args[1:])
}

func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("charitypay", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", "localhost:8080", "server address and port")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "database URI, empty keeps state in memory")
	fs.StringVar(&cfg.RedisAddress, "redis", "", "redis address for donation leases, empty leases in process")
	fs.StringVar(&cfg.JWTSecret, "s", "", "jwt signing key")
	fs.StringVar(&cfg.OperatorLogin, "operator", "operator", "operator login")
	fs.StringVar(&cfg.BankEndpoint, "bank", "https://pre.tochka.com/api/v1/cyclops/v2/jsonrpc", "bank JSON-RPC endpoint")
	fs.StringVar(&cfg.BankDocumentsEndpoint, "bank-documents", "https://pre.tochka.com/api/v1/cyclops/upload_document", "bank document upload endpoint")
	fs.StringVar(&cfg.BankTendersEndpoint, "bank-tenders", "https://pre.tochka.com/api/v1/tender-helpers/jsonrpc", "bank tender helpers endpoint")
	fs.DurationVar(&cfg.BankTimeout, "bank-timeout", 30*time.Second, "bank request timeout")
	fs.StringVar(&cfg.SignerKind, "signer", SignerRSA, "signer: rsa or kms")
	fs.StringVar(&cfg.PrivateKeyPath, "k", "", "PKCS#8 PEM private key path")
	fs.DurationVar(&cfg.PollInterval, "poll", 5*time.Second, "initial payment poll interval")
	fs.DurationVar(&cfg.MaxPollInterval, "max-poll", time.Minute, "maximum payment poll interval")
	fs.DurationVar(&cfg.DonationTTL, "donation-ttl", 24*time.Hour, "how long to wait for a donation payment")
	fs.DurationVar(&cfg.SettlementPollInterval, "settlement-poll", 30*time.Second, "initial settlement poll interval")
	fs.DurationVar(&cfg.SettlementTTL, "settlement-ttl", 72*time.Hour, "how long to wait for settlement onboarding")
	fs.DurationVar(&cfg.SweepInterval, "sweep", 5*time.Minute, "open work resubmission interval")
	fs.IntVar(&cfg.Workers, "workers", 64, "maximum concurrent background jobs")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RunAddress = getEnv("RUN_ADDRESS", cfg.RunAddress)
	cfg.DatabaseURI = getEnv("DATABASE_URI", cfg.DatabaseURI)
	cfg.RedisAddress = getEnv("REDIS_ADDRESS", cfg.RedisAddress)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.OperatorLogin = getEnv("OPERATOR_LOGIN", cfg.OperatorLogin)
	cfg.OperatorPasswordHash = getEnv("OPERATOR_PASSWORD_HASH", cfg.OperatorPasswordHash)
	cfg.BankEndpoint = getEnv("BANK_ENDPOINT", cfg.BankEndpoint)
	cfg.BankDocumentsEndpoint = getEnv("BANK_DOCUMENTS_ENDPOINT", cfg.BankDocumentsEndpoint)
	cfg.BankTendersEndpoint = getEnv("BANK_TENDERS_ENDPOINT", cfg.BankTendersEndpoint)
	cfg.SignSystem = getEnv("SIGN_SYSTEM", cfg.SignSystem)
	cfg.SignThumbprint = getEnv("SIGN_THUMBPRINT", cfg.SignThumbprint)
	cfg.NominalAccountCode = getEnv("NOMINAL_ACCOUNT_CODE", cfg.NominalAccountCode)
	cfg.NominalAccountBIC = getEnv("NOMINAL_ACCOUNT_BIC", cfg.NominalAccountBIC)
	cfg.SignerKind = getEnv("SIGNER", cfg.SignerKind)
	cfg.PrivateKeyPath = getEnv("PRIVATE_KEY_PATH", cfg.PrivateKeyPath)
	cfg.KMSEndpoint = getEnv("KMS_ENDPOINT", cfg.KMSEndpoint)
	cfg.KMSKeyID = getEnv("KMS_KEY_ID", cfg.KMSKeyID)
	cfg.KMSIAMToken = getEnv("KMS_IAM_TOKEN", cfg.KMSIAMToken)

	var errs []error
	cfg.BankTimeout = getEnvDuration("BANK_TIMEOUT", cfg.BankTimeout, &errs)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval, &errs)
	cfg.MaxPollInterval = getEnvDuration("MAX_POLL_INTERVAL", cfg.MaxPollInterval, &errs)
	cfg.DonationTTL = getEnvDuration("DONATION_TTL", cfg.DonationTTL, &errs)
	cfg.SettlementPollInterval = getEnvDuration("SETTLEMENT_POLL_INTERVAL", cfg.SettlementPollInterval, &errs)
	cfg.SettlementTTL = getEnvDuration("SETTLEMENT_TTL", cfg.SettlementTTL, &errs)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.SweepInterval, &errs)
	if v, ok := os.LookupEnv("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WORKERS: %w", err))
		} else {
			cfg.Workers = n
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, value string }{
		{"SIGN_SYSTEM", c.SignSystem},
		{"SIGN_THUMBPRINT", c.SignThumbprint},
		{"BANK_ENDPOINT", c.BankEndpoint},
		{"NOMINAL_ACCOUNT_CODE", c.NominalAccountCode},
		{"NOMINAL_ACCOUNT_BIC", c.NominalAccountBIC},
		{"JWT_SECRET", c.JWTSecret},
		{"OPERATOR_LOGIN", c.OperatorLogin},
		{"OPERATOR_PASSWORD_HASH", c.OperatorPasswordHash},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}

	switch c.SignerKind {
	case SignerRSA:
		if c.PrivateKeyPath == "" {
			errs = append(errs, errors.New("PRIVATE_KEY_PATH is required for the rsa signer"))
		}
	case SignerKMS:
		if c.KMSKeyID == "" || c.KMSIAMToken == "" {
			errs = append(errs, errors.New("KMS_KEY_ID and KMS_IAM_TOKEN are required for the kms signer"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown signer %q", c.SignerKind))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.MaxPollInterval < c.PollInterval {
		errs = append(errs, errors.New("MAX_POLL_INTERVAL must not be below POLL_INTERVAL"))
	}
	if c.SettlementPollInterval <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_POLL_INTERVAL must be positive"))
	}
	if c.DonationTTL <= 0 {
		errs = append(errs, errors.New("DONATION_TTL must be positive"))
	}
	if c.SettlementTTL <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_TTL must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("WORKERS must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

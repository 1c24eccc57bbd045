package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"charitypay/internal/bank"
	"charitypay/internal/config"
	"charitypay/internal/service"
	"charitypay/internal/signer"
)

// loadConfig reads .env and the environment; the server's flags do not
// apply here.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load(nil)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func loadRSA(keyPath string) (*signer.RSASigner, error) {
	if keyPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		keyPath = cfg.PrivateKeyPath
	}
	if keyPath == "" {
		return nil, errors.New("no key: pass --key or set PRIVATE_KEY_PATH")
	}
	return signer.LoadRSAFile(keyPath)
}

func signCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the base64 sign-data value for a request body (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadRSA(keyPath)
			if err != nil {
				return err
			}
			payload, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			sig, err := s.Sign(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(sig))
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "PKCS#8 PEM private key (default PRIVATE_KEY_PATH)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "verify [file] [signature]",
		Short: "Check a base64 signature against a request body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadRSA(keyPath)
			if err != nil {
				return err
			}
			payload, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("decode signature: %w", err)
			}
			if err := s.Verify(sig, payload); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "PKCS#8 PEM private key (default PRIVATE_KEY_PATH)")
	return cmd
}

func pubkeyCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key to register with the bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadRSA(keyPath)
			if err != nil {
				return err
			}
			pem, err := s.PublicKeyPEM()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(pem)
			return err
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "PKCS#8 PEM private key (default PRIVATE_KEY_PATH)")
	return cmd
}

func callCmd() *cobra.Command {
	var tenders bool
	cmd := &cobra.Command{
		Use:   "call [method] [params-json]",
		Short: "Send a signed JSON-RPC call to the bank and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			params := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("params must be valid json")
				}
				params = json.RawMessage(args[1])
			}

			var sgn signer.Signer
			switch cfg.SignerKind {
			case config.SignerKMS:
				sgn = signer.NewKMSSigner(cfg.KMSEndpoint, cfg.KMSKeyID, cfg.KMSIAMToken, cfg.BankTimeout)
			default:
				rsaSigner, err := loadRSA(cfg.PrivateKeyPath)
				if err != nil {
					return err
				}
				sgn = rsaSigner
			}

			client := bank.NewClient(bank.Config{
				Endpoint:        cfg.BankEndpoint,
				TendersEndpoint: cfg.BankTendersEndpoint,
				SignSystem:      cfg.SignSystem,
				SignThumbprint:  cfg.SignThumbprint,
				Timeout:         cfg.BankTimeout,
			}, sgn)

			var result json.RawMessage
			call := client.Call
			if tenders {
				call = client.CallTenders
			}
			if err := call(cmd.Context(), args[0], params, &result); err != nil {
				return err
			}

			var out bytes.Buffer
			if err := json.Indent(&out, result, "", "  "); err != nil {
				out.Reset()
				out.Write(result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&tenders, "tenders", false, "send to the tender helpers endpoint")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for OPERATOR_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := service.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"time"

	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		actorID string
		role    string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a back-office JWT for an actor",
		Long: `Issue a signed bearer token for the admin API.

Examples:
  ledger token --role finance
  ledger token --actor 6f1c2d9e-0d7b-4c51-9a54-5f3e2b7c1a10 --role support --expiry 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required (LEDGER_JWT_SECRET)")
			}

			id := uuid.New()
			if actorID != "" {
				if id, err = uuid.Parse(actorID); err != nil {
					return fmt.Errorf("--actor must be a UUID: %w", err)
				}
			}
			if expiry <= 0 {
				expiry = cfg.JWT.Expiry
			}

			tokens := service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer)
			tok, expiresAt, err := tokens.Generate(domain.Actor{ID: id, Role: domain.Role(role)})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "actor %s (%s), expires %s\n", id, role, expiresAt.UTC().Format(time.RFC3339))
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleFinance), "role: admin, finance or support")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default jwt.expiry)")
	return cmd
}

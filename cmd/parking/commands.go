package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/config"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if a.db == nil {
			return errors.New("migrate needs the postgres storage driver")
		}
		if err := store.EnsureMigrations(a.db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.log.Info("migrations applied")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire reservations that ended without an entry, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rep, err := a.svc.ExpireStale(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(rep)
	},
}

var (
	tokenUser   string
	tokenScopes string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user",
	Long: `Mint a signed bearer token, e.g. for a gate terminal or an operator.

Example:
  parking token --user 60601fee-2bf1-4721-ae6f-7636e79a0cba --scopes admin,general`,
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := uuid.Parse(tokenUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		// Signing needs the secret only; no store or broker is opened.
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		tok, err := mintToken(cfg.Auth, uid, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(tok)
	},
}

// mintToken issues a token for userID; a zero ttl falls back to the
// configured lifetime.
func mintToken(cfg config.AuthConfig, userID uuid.UUID, scopes string, ttl time.Duration) (auth.Token, error) {
	if ttl == 0 {
		ttl = cfg.TokenTTL
	}
	issuer := auth.NewTokenIssuer(cfg.Secret, cfg.Issuer)
	return issuer.Issue(userID, strings.Split(scopes, ","), ttl)
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id the token is issued for")
	tokenCmd.Flags().StringVar(&tokenScopes, "scopes", auth.ScopeGeneral, "comma-separated scopes")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("user")
}

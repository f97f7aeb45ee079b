package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mailgate/internal/apperr"
	"mailgate/internal/auth"
	"mailgate/internal/config"
	"mailgate/internal/logging"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or inspect access tokens offline",
	}
	cmd.AddCommand(newTokenIssueCmd(cfg), newTokenInspectCmd(cfg))
	return cmd
}

func newTokenIssueCmd(cfg *config.Config) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a seeded user",
		Long: `Issues a token for a user from the configured users file. When
MAILGATE_REDIS_URL is set the token is bound in the shared session store and
is accepted by running servers; otherwise it is only useful for inspection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(*cfg)
			if err != nil {
				return err
			}
			codec, err := newCodec(*cfg)
			if err != nil {
				return err
			}
			p, err := registry.FindByUsername(cmd.Context(), username)
			if err != nil {
				return fmt.Errorf("user %q: %w", username, err)
			}
			token, exp, err := codec.Issue(p)
			if err != nil {
				return err
			}
			if cfg.RedisURL != "" {
				if err := bindSession(cmd.Context(), *cfg, username, token, exp); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username to issue the token for")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func bindSession(ctx context.Context, cfg config.Config, username, token string, exp time.Time) error {
	logger := logging.NewWithWriter(io.Discard, cfg.LogLevel, cfg.LogFormat)
	sessions, closeSessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()
	if err := sessions.Bind(ctx, username, token, exp); err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	return nil
}

type inspection struct {
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
	Code      int       `json:"error_code,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	ID        string    `json:"id,omitempty"`
	Roles     []string  `json:"authorities,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func newTokenInspectCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "inspect <token>",
		Aliases: []string{"verify"},
		Short:   "Verify a token with the configured secret and print its claims",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec(*cfg)
			if err != nil {
				return err
			}
			out := inspect(codec, args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !out.Valid {
				return fmt.Errorf("token rejected: %s", out.Error)
			}
			return nil
		},
	}
}

func inspect(codec *auth.Codec, raw string) inspection {
	claims, err := codec.Verify(raw)
	if err != nil {
		kind := apperr.KindOf(err)
		return inspection{Error: kind.String(), Code: kind.Describe().Code}
	}
	out := inspection{Valid: true, Subject: claims.Subject, ID: claims.PrincipalID}
	for _, r := range claims.Roles {
		out.Roles = append(out.Roles, string(r))
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return out
}

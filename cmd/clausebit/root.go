package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/backend"
	"github.com/clausebit/companion/internal/config"
	"github.com/clausebit/companion/pkg/logger"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	backendURL string
	token      string
	userID     string
	logLevel   string
	timeout    time.Duration
	output     string

	cfg    *config.Config
	log    *logger.Logger
	client *backend.Client
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "clausebit",
		Short: "Risk summaries and legal-assistant chat from the terminal",
		Long: `clausebit talks to the ClauseBit analysis backend.

Quick Start:
  clausebit summary https://example.com        # Risk summary for a site
  clausebit conversations                      # Recent conversations
  clausebit history <session-id>               # Messages of one conversation
  clausebit chat                               # Interactive chat`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.backendURL, "backend", "", "Analysis backend URL (default $BACKEND_URL)")
	flags.StringVar(&opts.token, "token", os.Getenv("CLAUSEBIT_TOKEN"), "Session token for protected calls (default $CLAUSEBIT_TOKEN)")
	flags.StringVar(&opts.userID, "user", "", "User id for conversation commands (default: token subject or guest)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Backend call timeout (default $BACKEND_TIMEOUT)")
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(
		newSummaryCmd(opts),
		newConversationsCmd(opts),
		newHistoryCmd(opts),
		newChatCmd(opts),
		newAuthCmd(opts),
	)
	return cmd
}

func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg

	if o.backendURL == "" {
		o.backendURL = cfg.BackendURL
	}
	if o.timeout <= 0 {
		o.timeout = cfg.BackendTimeout
	}
	switch o.output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}

	o.log, err = logger.NewStderr(o.logLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	o.client, err = backend.New(o.backendURL, o.timeout, o.log)
	if err != nil {
		return err
	}

	if o.userID == "" {
		o.userID = auth.GuestUserID
		if o.token != "" {
			if claims, err := auth.ParseClaims(o.token, cfg.JWTSecret, time.Now()); err == nil && claims.Subject != "" {
				o.userID = claims.Subject
			}
		}
	}
	return nil
}

// context returns a context carrying the session token, if any.
func (o *options) context(ctx context.Context) context.Context {
	if o.token == "" {
		return ctx
	}
	return auth.WithToken(ctx, o.token)
}

package main

import (
	"errors"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/maruel/modelprov/internal/inference"
	"github.com/maruel/modelprov/internal/model"
	"github.com/maruel/modelprov/internal/server"
	"github.com/maruel/modelprov/internal/storage"
	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-fingerprint every artifact and report drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := g.dispatcher()
			if err != nil {
				return err
			}
			results, err := d.Verify(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			failures := 0
			for _, r := range results {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Status, r.Entry.Fingerprint, r.Entry.Filename)
				if r.Status != inference.VerifyOK {
					failures++
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failures != 0 {
				return fmt.Errorf("%d of %d artifacts failed verification", failures, len(results))
			}
			return nil
		},
	}
}

func newUsageCmd(g *globalFlags) *cobra.Command {
	var flags struct {
		fingerprint string
		user        string
		limit       int
		asJSON      bool
	}
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print the usage ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, err := g.open()
			if err != nil {
				return err
			}
			entries, err := reg.Ledger.Load()
			if err != nil {
				return err
			}
			entries = slices.DeleteFunc(entries, func(e storage.UsageEntry) bool {
				return (flags.fingerprint != "" && e.Fingerprint != flags.fingerprint) || (flags.user != "" && e.User != flags.user)
			})
			if flags.limit > 0 && len(entries) > flags.limit {
				entries = entries[len(entries)-flags.limit:]
			}
			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tUSER\tACTION\tFINGERPRINT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.User, e.Action, e.Fingerprint)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.fingerprint, "fingerprint", "", "Only show entries for this fingerprint")
	f.StringVar(&flags.user, "user", "", "Only show entries for this user")
	f.IntVarP(&flags.limit, "limit", "n", 0, "Only show the most recent entries")
	f.BoolVar(&flags.asJSON, "json", false, "Print JSON")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of model artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), model.Schema())
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the git history of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, cfg, err := g.open()
			if err != nil {
				return err
			}
			if !cfg.GitHistory {
				return errors.New("git history is disabled; set \"git_history\": true in config.jsonc")
			}
			commits, err := reg.History(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range commits {
				fmt.Fprintf(out, "%.12s %s %s %s\n", c.Hash, c.AuthorDate.Local().Format(time.DateTime), c.Author, c.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of commits")
	return cmd
}

func newTokenCmd(g *globalFlags) *cobra.Command {
	var flags struct {
		subject string
		ttl     time.Duration
	}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long:  "Signs a token with the jwt_secret of config.jsonc. The subject is recorded\nas the user of inference calls and the default author of uploads.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := storage.LoadServerConfig(g.dataDir)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not set in config.jsonc")
			}
			token, err := server.NewToken(cfg.JWTSecret, flags.subject, flags.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.subject, "subject", "", "Token subject (required)")
	f.DurationVar(&flags.ttl, "ttl", 30*24*time.Hour, "Token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

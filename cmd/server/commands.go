package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/coachdesk/internal/config"
	"github.com/soaringjerry/coachdesk/internal/middleware"
	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExportCommand(configPath *string) *cobra.Command {
	var (
		format string
		out    string
		status string
	)
	cmd := &cobra.Command{
		Use:   "export intake <formType> | export members",
		Short: "Write a CSV or print-grid PNG export",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var res *services.ExportResult
			switch args[0] {
			case "intake":
				if len(args) != 2 {
					return errors.New("export intake needs a form type")
				}
				res, err = a.exports.ExportIntake(ctx, args[1], format)
			case "members":
				res, err = a.exports.ExportMembers(ctx, models.MemberStatus(status), format)
			default:
				return fmt.Errorf("unknown export %q", args[0])
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = res.Filename
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(res.Data)
				return err
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(res.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", services.FormatCSV, "csv or png")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: export file name)")
	cmd.Flags().StringVar(&status, "status", "", "member status filter")
	return cmd
}

func newAuditCommand(configPath *string) *cobra.Command {
	var (
		courseID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check a course for content gaps, or print the admin audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if courseID == "" {
				entries, err := a.store.ListAudit(ctx, limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			view, err := a.courses.Audit(ctx, courseID)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), view); err != nil {
				return err
			}
			if view.HasIssues {
				return errors.New("course has content issues")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&courseID, "course", "", "course id to check")
	cmd.Flags().IntVar(&limit, "limit", 50, "audit log entries to print")
	return cmd
}

func newMembersCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Membership housekeeping",
	}

	expire := &cobra.Command{
		Use:   "expire",
		Short: "Mark active members whose membership has ended as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.members.ExpireLapsed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d\n", n)
			return nil
		},
	}

	var within time.Duration
	remind := &cobra.Command{
		Use:   "remind",
		Short: "Send expiry reminders to members whose membership ends soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if within == 0 {
				within = a.cfg.Members.ReminderWindow
			}
			res, err := a.members.SendExpiryReminders(ctx, within)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	remind.Flags().DurationVar(&within, "within", 0, "reminder window (default members.reminder_window)")

	cmd.AddCommand(expire, remind)
	return cmd
}

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		subject string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the configured secret (development helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			auth, err := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, nil)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tok, err := auth.SignToken(strings.TrimSpace(subject), name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator id recorded in the audit log")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gabisonia/fiber-chat-proxy/store"
	"github.com/gabisonia/fiber-chat-proxy/strategies"
	"github.com/spf13/cobra"
)

func newRateLimitCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset per-client rate limit records",
	}
	cmd.AddCommand(newRateLimitShowCommand(opts), newRateLimitResetCommand(opts))
	return cmd
}

type rateLimitStatus struct {
	ClientId    string    `json:"client_id"`
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
	RetryAfter  string    `json:"retry_after,omitempty"`
}

func newRateLimitShowCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <client-id>",
		Short: "Show the current window for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}

			backend, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer backend.Close() // nolint:errcheck // best-effort cleanup

			strategy := strategies.NewFixedWindowStrategy(cfg.RateLimit.Limit, cfg.RateLimit.Window, backend)
			strategy.KeyPrefix = cfg.RateLimit.KeyPrefix

			// Evaluation is read-only; nothing is committed here.
			admission, err := strategy.IsRequestAllowed(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			status := rateLimitStatus{
				ClientId:    admission.ClientId,
				Key:         store.Key(cfg.RateLimit.KeyPrefix, admission.ClientId),
				Count:       admission.Count,
				Limit:       admission.Limit,
				Remaining:   admission.Remaining(),
				WindowStart: admission.WindowStart,
				ResetAt:     admission.ResetAt,
			}
			if !admission.Allowed {
				wait, err := strategy.RetryAfter(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if wait > 0 {
					status.RetryAfter = wait.Round(time.Second).String()
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Fprintf(out, "client:     %s\n", status.ClientId)
			fmt.Fprintf(out, "key:        %s\n", status.Key)
			fmt.Fprintf(out, "used:       %d/%d\n", status.Count, status.Limit)
			fmt.Fprintf(out, "remaining:  %d\n", status.Remaining)
			fmt.Fprintf(out, "resets at:  %s\n", status.ResetAt.Format(time.RFC3339))
			if status.RetryAfter != "" {
				fmt.Fprintf(out, "blocked for %s\n", status.RetryAfter)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRateLimitResetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <client-id>",
		Short: "Delete a client's record, restoring its full quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}

			backend, err := openStore(cfg.Store)
			if err != nil {
				return err
			}
			defer backend.Close() // nolint:errcheck // best-effort cleanup

			key := store.Key(cfg.RateLimit.KeyPrefix, args[0])
			if err := backend.Delete(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", key)
			return nil
		},
	}
}

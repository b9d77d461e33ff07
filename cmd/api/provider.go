package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"dealer-crm/internal/audit"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/ingest"
	"dealer-crm/internal/reporting"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/vapi"
	"dealer-crm/pkg/utils"

	"github.com/spf13/cobra"
)

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Query the voice provider API",
	}
	cmd.AddCommand(newProviderCallsCmd())
	cmd.AddCommand(newProviderAssistantsCmd())
	cmd.AddCommand(newProviderBackfillCmd())
	return cmd
}

type callFilters struct {
	assistantID string
	limit       int
}

func (f callFilters) values() url.Values {
	q := url.Values{}
	if f.assistantID != "" {
		q.Set("assistantId", f.assistantID)
	}
	if f.limit > 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	return q
}

func (f *callFilters) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.assistantID, "assistant-id", "", "only calls handled by this assistant")
	cmd.Flags().IntVar(&f.limit, "limit", 100, "maximum number of calls to fetch")
}

func newProviderCallsCmd() *cobra.Command {
	var filters callFilters
	cmd := &cobra.Command{
		Use:   "calls [id]",
		Short: "List calls, or show one call by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newVapiClient(cfg, log, nil)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				call, err := client.GetCall(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), call)
			}
			calls, err := client.ListCalls(cmd.Context(), filters.values())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), calls)
		},
	}
	filters.bind(cmd)
	return cmd
}

func newProviderAssistantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assistants [id]",
		Short: "List assistants, or show one assistant by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newVapiClient(cfg, log, nil)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				a, err := client.GetAssistant(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), a)
			}
			as, err := client.ListAssistants(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), as)
		},
	}
}

// newProviderBackfillCmd replays calls fetched from the provider through the
// webhook pipeline, so missed deliveries end up as call logs like any other.
func newProviderBackfillCmd() *cobra.Command {
	var filters callFilters
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Import provider calls as call logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newVapiClient(cfg, log, nil)
			if err != nil {
				return err
			}
			db, err := openPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
			if err != nil {
				return fmt.Errorf("redis init failed: %w", err)
			}
			defer rdb.Close()

			logs := calllogs.NewPostgresRepo(db)
			stats := reporting.NewService(logs, reporting.NewRedisStatsCache(rdb, cfg.Redis.StatsTTL), nil)
			// Replayed calls come from the provider API, not a signed delivery.
			cfg.Ingest.VerifySignatures = false
			svc := newIngestService(cfg, logs, tenancy.NewPostgresRepo(db, stats), audit.NewService(audit.NewPostgresRepo(db)), stats, client, nil)

			calls, err := client.ListCalls(ctx, filters.values())
			if err != nil {
				return err
			}
			sum, err := backfill(ctx, svc, calls)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d calls: %d created, %d updated, %d skipped.\n",
				len(calls), sum.created, sum.updated, sum.skipped)
			return nil
		},
	}
	filters.bind(cmd)
	return cmd
}

type backfillSummary struct {
	created, updated, skipped int
}

// backfill stops at the first write failure; calls without an id are skipped.
func backfill(ctx context.Context, svc ingest.Ingester, calls []vapi.Call) (backfillSummary, error) {
	var sum backfillSummary
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		body, err := reportBody(call)
		if err != nil {
			return sum, err
		}
		res := svc.Ingest(ctx, ingest.Delivery{
			Body:    body,
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			Path:    "cli:provider-backfill",
			Method:  http.MethodPost,
		})
		switch res.Outcome {
		case ingest.OutcomeProcessed:
			if res.Created {
				sum.created++
			} else {
				sum.updated++
			}
		case ingest.OutcomeWriteFailed:
			return sum, fmt.Errorf("backfill call %s: %w", res.CallID, res.Err)
		default:
			sum.skipped++
		}
	}
	return sum, nil
}

// reportBody wraps a fetched call the way the provider delivers its end-of-call
// report.
func reportBody(call vapi.Call) ([]byte, error) {
	type report struct {
		Type               string          `json:"type"`
		Summary            string          `json:"summary,omitempty"`
		Transcript         string          `json:"transcript,omitempty"`
		RecordingURL       string          `json:"recordingUrl,omitempty"`
		StereoRecordingURL string          `json:"stereoRecordingUrl,omitempty"`
		EndedReason        string          `json:"endedReason,omitempty"`
		Analysis           json.RawMessage `json:"analysis,omitempty"`
		DurationSeconds    *int            `json:"durationSeconds,omitempty"`
		Call               vapi.Call       `json:"call"`
	}
	r := report{
		Type:               "end-of-call-report",
		Summary:            call.Summary,
		Transcript:         call.Transcript,
		RecordingURL:       call.RecordingURL,
		StereoRecordingURL: call.StereoRecordingURL,
		EndedReason:        call.EndedReason,
		Analysis:           call.Analysis,
		Call:               call,
	}
	if call.StartedAt != nil && call.EndedAt != nil && !call.EndedAt.Before(*call.StartedAt) {
		secs := int(call.EndedAt.Sub(*call.StartedAt).Seconds() + 0.5)
		r.DurationSeconds = &secs
	}
	return json.Marshal(map[string]any{"message": r})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

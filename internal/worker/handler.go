// Package worker hosts the asynchronous reconciliation triggers: the resync
// queue consumer and the scheduled stale-entitlement sweep. Both run in the
// reconciler Lambda and share one Handler.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"simplenotes/internal/config"
	"simplenotes/internal/entitlement"
	"simplenotes/internal/types"
)

// Resyncer re-derives one customer's entitlement from the provider's full
// subscription list. Implemented by billing.Service.
type Resyncer interface {
	ResyncCustomer(ctx context.Context, customerRef string, trigger types.ReconcileTrigger) (types.EntitlementState, error)
}

// StaleLister selects customers whose records have not been reconciled since
// cutoff. Implemented by db.EntitlementRepo.
type StaleLister interface {
	ListStaleCustomerRefs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Metrics is the invocation-scoped telemetry sink.
type Metrics interface {
	RecordSweepCandidates(n int)
	Flush(ctx context.Context)
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Reconciled int `json:"reconciled"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// SweepEvent is the scheduled trigger payload. EventBridge schedules send
// {"sweep": true}; the native "Scheduled Event" detail type is accepted too.
type SweepEvent struct {
	Sweep      bool   `json:"sweep"`
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
}

func (e SweepEvent) isSweep() bool {
	return e.Sweep || (e.Source == "aws.events" && e.DetailType == "Scheduled Event")
}

// Handler processes resync queue batches and sweep invocations.
type Handler struct {
	resyncer Resyncer
	stale    StaleLister
	metrics  Metrics
	sweep    config.SweepConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewHandler creates a Handler. A nil metrics sink disables telemetry and a
// nil clock uses the wall clock.
func NewHandler(resyncer Resyncer, stale StaleLister, metrics Metrics, sweep config.SweepConfig, clock types.Clock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if sweep.BatchSize <= 0 {
		sweep.BatchSize = 200
	}
	if sweep.Concurrency <= 0 {
		sweep.Concurrency = 1
	}
	if sweep.StaleAfter <= 0 {
		sweep.StaleAfter = 24 * time.Hour
	}
	return &Handler{
		resyncer: resyncer,
		stale:    stale,
		metrics:  metrics,
		sweep:    sweep,
		clock:    clock,
		logger:   logger,
	}
}

// Invoke is the Lambda entry point. It dispatches on payload shape: SQS
// batches return an events.SQSEventResponse, sweep events a SweepResult.
func (h *Handler) Invoke(ctx context.Context, payload json.RawMessage) (any, error) {
	defer h.flush(ctx)

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		return h.HandleSQS(ctx, sqsEvent)
	}

	var sweep SweepEvent
	if err := json.Unmarshal(payload, &sweep); err == nil && sweep.isSweep() {
		return h.Sweep(ctx)
	}

	return nil, fmt.Errorf("unrecognized reconciler payload (%d bytes)", len(payload))
}

// HandleSQS reconciles each queued ResyncRequest. Malformed messages and
// customers with no local record are acknowledged; provider or database
// failures are reported as batch item failures so SQS redelivers only them.
func (h *Handler) HandleSQS(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "resync message failed",
				"message_id", record.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	return resp, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var req types.ResyncRequest
	if err := json.Unmarshal([]byte(record.Body), &req); err != nil {
		// Redelivery cannot fix a malformed body.
		h.logger.ErrorContext(ctx, "dropping unparseable resync message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	if req.CustomerRef == "" {
		h.logger.WarnContext(ctx, "dropping resync message without customer reference",
			"message_id", record.MessageId,
		)
		return nil
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = types.TriggerQueue
	}

	state, err := h.resyncer.ResyncCustomer(ctx, req.CustomerRef, trigger)
	if err != nil {
		if entitlement.IsCustomerNotFound(err) {
			h.logger.WarnContext(ctx, "resync for unknown customer acknowledged",
				"customer_ref", req.CustomerRef,
				"event_id", req.EventID,
			)
			return nil
		}
		return err
	}

	h.logger.InfoContext(ctx, "resync applied",
		"customer_ref", req.CustomerRef,
		"reason", req.Reason,
		"plan", state.Plan,
		"status", state.StatusOrEmpty(),
	)
	return nil
}

// Sweep reconciles up to BatchSize records not touched within StaleAfter,
// with at most Concurrency provider calls in flight. One customer's failure
// does not stop the rest; it only returns an error when selection fails or
// every candidate failed.
func (h *Handler) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := h.clock.Now().Add(-h.sweep.StaleAfter)

	refs, err := h.stale.ListStaleCustomerRefs(ctx, cutoff, h.sweep.BatchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("select stale entitlements: %w", err)
	}
	if h.metrics != nil {
		h.metrics.RecordSweepCandidates(len(refs))
	}

	var reconciled, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.sweep.Concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			_, err := h.resyncer.ResyncCustomer(gctx, ref, types.TriggerSweep)
			switch {
			case err == nil:
				reconciled.Add(1)
			case entitlement.IsCustomerNotFound(err):
				skipped.Add(1)
			default:
				failed.Add(1)
				h.logger.WarnContext(gctx, "sweep resync failed",
					"customer_ref", ref,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{
		Candidates: len(refs),
		Reconciled: int(reconciled.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}

	h.logger.InfoContext(ctx, "sweep complete",
		"cutoff", cutoff,
		"candidates", result.Candidates,
		"reconciled", result.Reconciled,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	if result.Candidates > 0 && result.Failed == result.Candidates {
		return result, errors.New("sweep: every candidate failed to reconcile")
	}
	return result, nil
}

func (h *Handler) flush(ctx context.Context) {
	if h.metrics == nil {
		return
	}
	// Flush even when the invocation context is cancelled.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	h.metrics.Flush(fctx)
}

// Package worker provides async claim processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-health/kite/internal/adjudication"
	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/fraud"
	"github.com/opensource-health/kite/internal/history"
)

// Worker processes submitted claims asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	engine  *adjudication.Engine
	history *history.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *adjudication.Engine, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		engine:  engine,
		history: hist,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing claims for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processClaim(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicClaimSubmitted,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processClaim(ctx, msg.TenantID, msg)
}

// ClaimMessage is the message payload for claim processing.
type ClaimMessage struct {
	ClaimID  string `json:"claimId"`
	TenantID string `json:"tenantId"`
	MemberID string `json:"memberId"`
}

// processClaim runs a submitted claim through the adjudication pipeline.
func (w *Worker) processClaim(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var claimMsg ClaimMessage
	if err := json.Unmarshal(msg.Payload, &claimMsg); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if claimMsg.TenantID != "" {
		tenantID = claimMsg.TenantID
	}

	slog.Debug("processing claim",
		"claim_id", claimMsg.ClaimID,
		"tenant_id", tenantID,
	)

	claim, err := w.repo.GetClaim(ctx, tenantID, claimMsg.ClaimID)
	if err != nil {
		slog.Error("failed to load claim",
			"claim_id", claimMsg.ClaimID,
			"error", err,
		)
		return err
	}

	claim.Status = domain.ClaimStatusProcessing
	claim.UpdatedAt = time.Now().Unix()
	if err := w.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to mark claim processing",
			"claim_id", claim.ClaimID,
			"error", err,
		)
	}

	member, err := w.history.Load(ctx, tenantID, claim.MemberID)
	if err != nil {
		w.failClaim(ctx, tenantID, claim)
		slog.Error("failed to load member",
			"claim_id", claim.ClaimID,
			"member_id", claim.MemberID,
			"error", err,
		)
		return err
	}

	merged := domain.Merge(claim.Prescription, claim.Bill)

	decision := w.engine.Adjudicate(merged, member)
	decision.ClaimID = claim.ClaimID

	if err := w.repo.SaveDecision(ctx, tenantID, decision); err != nil {
		w.failClaim(ctx, tenantID, claim)
		slog.Error("failed to save decision",
			"claim_id", claim.ClaimID,
			"error", err,
		)
		return err
	}

	claim.Status = domain.ClaimStatusDecided
	claim.DecisionID = decision.ClaimID
	claim.UpdatedAt = time.Now().Unix()
	if err := w.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to mark claim decided",
			"claim_id", claim.ClaimID,
			"error", err,
		)
	}

	// Approved amounts count against the member's annual limit.
	if decision.Decision == domain.DecisionApproved || decision.Decision == domain.DecisionPartial {
		if err := w.repo.UpdateMemberYTD(ctx, tenantID, claim.MemberID, decision.ApprovedAmount); err != nil {
			slog.Error("failed to update member YTD",
				"member_id", claim.MemberID,
				"error", err,
			)
		}
	}
	w.history.Invalidate(ctx, tenantID, claim.MemberID)

	resultPayload, _ := json.Marshal(decision)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimDecided, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"claim_id", claim.ClaimID,
			"error", err,
		)
	}

	if decision.Decision == domain.DecisionManualReview {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicManualReview, resultPayload); err != nil {
			slog.Error("failed to publish review request",
				"claim_id", claim.ClaimID,
				"error", err,
			)
		}
	}

	if decision.RiskScore >= fraud.RiskThreshold {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"claim_id", claim.ClaimID,
				"error", err,
			)
		}
	}

	slog.Info("claim processed",
		"claim_id", claim.ClaimID,
		"tenant_id", tenantID,
		"decision", decision.Decision,
		"approved_amount", decision.ApprovedAmount,
		"risk_score", decision.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// failClaim marks a claim FAILED so it can be retried or inspected.
func (w *Worker) failClaim(ctx context.Context, tenantID string, claim *domain.Claim) {
	claim.Status = domain.ClaimStatusFailed
	claim.UpdatedAt = time.Now().Unix()
	if err := w.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to mark claim failed",
			"claim_id", claim.ClaimID,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

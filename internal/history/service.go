// Package history assembles member claim histories for adjudication.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/repository"
)

// maxHistoryClaims caps the previous-claim history attached to a member.
const maxHistoryClaims = 50

// defaultTTL is how long a built history stays cached.
const defaultTTL = 5 * time.Minute

// Service loads member records and enriches them with their recent claim
// history. Histories are cached per member and invalidated whenever a new
// decision lands.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   defaultTTL,
	}
}

// Load returns the member with YTDClaims and PreviousClaims populated.
// Cache-first: a cached history is used as-is; on miss the history is built
// from decided claims and written back. Cache failures degrade to a repo
// rebuild, never to an error.
func (s *Service) Load(ctx context.Context, tenantID, memberID string) (*domain.MemberInfo, error) {
	if tenantID == "" || memberID == "" {
		return nil, fmt.Errorf("tenantID and memberID are required")
	}

	member, err := s.repo.GetMember(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if hc, err := s.cache.GetHistory(ctx, tenantID, memberID); err == nil && hc != nil {
			member.YTDClaims = hc.YTDClaims
			member.PreviousClaims = hc.Claims
			return member, nil
		}
	}

	claims, err := s.buildHistory(ctx, tenantID, memberID)
	if err != nil {
		return nil, err
	}
	member.PreviousClaims = claims

	if s.cache != nil {
		_ = s.cache.SetHistory(ctx, tenantID, memberID, &domain.HistoryCache{
			MemberID:  memberID,
			YTDClaims: member.YTDClaims,
			Claims:    claims,
			FetchedAt: time.Now().UTC().Format(time.RFC3339),
		}, s.ttl)
	}

	return member, nil
}

// Invalidate drops the cached history for a member. Called after a decision
// is persisted so the next adjudication sees it.
func (s *Service) Invalidate(ctx context.Context, tenantID, memberID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, "history:"+memberID)
}

// RecordSubmission bumps the member's submission counter for the rolling
// window and returns the new count.
func (s *Service) RecordSubmission(ctx context.Context, tenantID, memberID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "submissions:"+memberID, window)
}

// buildHistory assembles the previous-claim list from decided claims,
// newest first. Claims without a stored decision are skipped.
func (s *Service) buildHistory(ctx context.Context, tenantID, memberID string) ([]domain.PreviousClaim, error) {
	claims, err := s.repo.GetClaimsByMember(ctx, tenantID, memberID, maxHistoryClaims)
	if err != nil {
		return nil, fmt.Errorf("failed to load claims for member %s: %w", memberID, err)
	}

	history := make([]domain.PreviousClaim, 0, len(claims))
	for _, claim := range claims {
		if claim.Status != domain.ClaimStatusDecided {
			continue
		}

		decision, err := s.repo.GetDecision(ctx, tenantID, claim.ClaimID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load decision for claim %s: %w", claim.ClaimID, err)
		}

		history = append(history, domain.PreviousClaim{
			ClaimID:  claim.ClaimID,
			Amount:   decision.ClaimedAmount,
			Date:     time.Unix(claim.CreatedAt, 0).UTC().Format("2006-01-02"),
			Decision: string(decision.Decision),
		})
	}

	return history, nil
}

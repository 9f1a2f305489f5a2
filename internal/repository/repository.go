// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-health/kite/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveMember upserts a member record with tenant isolation.
func (r *SQLRepository) SaveMember(ctx context.Context, tenantID string, member *domain.MemberInfo) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if member.MemberID == "" {
		return fmt.Errorf("%w: memberID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO members (
			member_id, tenant_id, member_name, policy_number,
			policy_start_date, policy_status, ytd_claims, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, tenant_id) DO UPDATE SET
			member_name = excluded.member_name,
			policy_number = excluded.policy_number,
			policy_start_date = excluded.policy_start_date,
			policy_status = excluded.policy_status,
			ytd_claims = excluded.ytd_claims,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		member.MemberID, tenantID, member.MemberName, member.PolicyNumber,
		member.PolicyStartDate, member.PolicyStatus, member.YTDClaims,
		now, now,
	)
	return err
}

// GetMember retrieves a member by ID with tenant isolation. The returned
// record carries no claim history; the history service assembles that.
func (r *SQLRepository) GetMember(ctx context.Context, tenantID string, memberID string) (*domain.MemberInfo, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT member_id, member_name, policy_number, policy_start_date, policy_status, ytd_claims
		FROM members
		WHERE tenant_id = ? AND member_id = ?
	`

	var m domain.MemberInfo
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, memberID).Scan(
		&m.MemberID, &m.MemberName, &m.PolicyNumber,
		&m.PolicyStartDate, &m.PolicyStatus, &m.YTDClaims,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// UpdateMemberYTD adds delta to a member's year-to-date claimed amount.
func (r *SQLRepository) UpdateMemberYTD(ctx context.Context, tenantID string, memberID string, delta float64) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE members
		SET ytd_claims = ytd_claims + ?, updated_at = ?
		WHERE tenant_id = ? AND member_id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), delta, time.Now().UTC(), tenantID, memberID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveClaim upserts a claim record with tenant isolation.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if claim.ClaimID == "" {
		return fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	prescription, _ := json.Marshal(claim.Prescription)
	bill, _ := json.Marshal(claim.Bill)

	query := `
		INSERT INTO claims (
			claim_id, tenant_id, member_id, status, prescription, bill,
			decision_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id, tenant_id) DO UPDATE SET
			status = excluded.status,
			prescription = excluded.prescription,
			bill = excluded.bill,
			decision_id = excluded.decision_id,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ClaimID, tenantID, claim.MemberID, claim.Status,
		string(prescription), string(bill), claim.DecisionID,
		claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT claim_id, member_id, status, prescription, bill, decision_id, created_at, updated_at
		FROM claims
		WHERE tenant_id = ? AND claim_id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID)
	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return claim, err
}

// ListClaims retrieves claims filtered by member and/or status, newest
// first. Empty filters match everything.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, memberID string, status string) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT claim_id, member_id, status, prescription, bill, decision_id, created_at, updated_at
		FROM claims
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if memberID != "" {
		query += " AND member_id = ?"
		args = append(args, memberID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

// GetClaimsByMember retrieves a member's most recent claims, newest first,
// capped at limit.
func (r *SQLRepository) GetClaimsByMember(ctx context.Context, tenantID string, memberID string, limit int) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT claim_id, member_id, status, prescription, bill, decision_id, created_at, updated_at
		FROM claims
		WHERE tenant_id = ? AND member_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var c domain.Claim
	var prescription, bill string

	if err := row.Scan(
		&c.ClaimID, &c.MemberID, &c.Status,
		&prescription, &bill, &c.DecisionID,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if prescription != "" && prescription != "null" {
		json.Unmarshal([]byte(prescription), &c.Prescription)
	}
	if bill != "" && bill != "null" {
		json.Unmarshal([]byte(bill), &c.Bill)
	}

	return &c, nil
}

// SaveDecision upserts an adjudication decision with tenant isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, decision *domain.ClaimDecision) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if decision.ClaimID == "" {
		return fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	query := `
		INSERT INTO decisions (
			claim_id, tenant_id, member_id, decision, claimed_amount,
			approved_amount, risk_score, confidence_score, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id, tenant_id) DO UPDATE SET
			decision = excluded.decision,
			claimed_amount = excluded.claimed_amount,
			approved_amount = excluded.approved_amount,
			risk_score = excluded.risk_score,
			confidence_score = excluded.confidence_score,
			payload = excluded.payload
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		decision.ClaimID, tenantID, decision.MemberID, string(decision.Decision),
		decision.ClaimedAmount, decision.ApprovedAmount,
		decision.RiskScore, decision.ConfidenceScore,
		string(payload), time.Now().UTC(),
	)
	return err
}

// GetDecision retrieves a decision by claim ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, claimID string) (*domain.ClaimDecision, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload
		FROM decisions
		WHERE tenant_id = ? AND claim_id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var decision domain.ClaimDecision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision payload: %w", err)
	}

	return &decision, nil
}

// SaveScreeningRule upserts a screening rule with tenant isolation.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screening_rules (
			id, tenant_id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, enabled, now, now,
	)
	return err
}

// GetScreeningRule retrieves an active screening rule with tenant isolation.
func (r *SQLRepository) GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	var rule domain.ScreeningRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Expression, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListScreeningRules retrieves all active screening rules for a tenant.
func (r *SQLRepository) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, enabled
		FROM screening_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteScreeningRule soft-deletes a screening rule by setting enabled = 0.
func (r *SQLRepository) DeleteScreeningRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE screening_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// Package domain defines the core interfaces and types for Kite.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Member operations
	SaveMember(ctx context.Context, tenantID string, member *MemberInfo) error
	GetMember(ctx context.Context, tenantID string, memberID string) (*MemberInfo, error)
	UpdateMemberYTD(ctx context.Context, tenantID string, memberID string, delta float64) error

	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	ListClaims(ctx context.Context, tenantID string, memberID string, status string) ([]*Claim, error)
	GetClaimsByMember(ctx context.Context, tenantID string, memberID string, limit int) ([]*Claim, error)

	// Decision operations
	SaveDecision(ctx context.Context, tenantID string, decision *ClaimDecision) error
	GetDecision(ctx context.Context, tenantID string, claimID string) (*ClaimDecision, error)

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, tenantID string, rule *ScreeningRule) error
	GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*ScreeningRule, error)
	ListScreeningRules(ctx context.Context, tenantID string) ([]*ScreeningRule, error)
	DeleteScreeningRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

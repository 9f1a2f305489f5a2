package repository

// Schema definitions for the Kite database.
// Compatible with both SQLite and PostgreSQL.

const schemaMembers = `
CREATE TABLE IF NOT EXISTS members (
    member_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    member_name TEXT NOT NULL,
    policy_number TEXT,
    policy_start_date TEXT NOT NULL,
    policy_status TEXT NOT NULL,
    ytd_claims REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (member_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id);
CREATE INDEX IF NOT EXISTS idx_members_status ON members(tenant_id, policy_status);
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    claim_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    status TEXT NOT NULL,
    prescription TEXT,
    bill TEXT,
    decision_id TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (claim_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_member ON claims(tenant_id, member_id);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(tenant_id, created_at);
`

// Decisions keep queryable outcome columns plus the full decision document
// as JSON for the nested reasons, flags, and step map.
const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    claim_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    member_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    claimed_amount REAL NOT NULL,
    approved_amount REAL NOT NULL,
    risk_score REAL NOT NULL DEFAULT 0,
    confidence_score REAL NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (claim_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_member ON decisions(tenant_id, member_id);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(tenant_id, decision);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMembers,
		schemaClaims,
		schemaDecisions,
		schemaScreeningRules,
	}
}

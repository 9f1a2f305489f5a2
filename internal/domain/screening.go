package domain

// ScreeningRule is an operator-defined CEL expression evaluated against a
// claim before adjudication. A rule that evaluates to true contributes one
// unclassified fraud flag.
type ScreeningRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression over claim facts (claimedAmount, diagnosis,
	// hospitalName, previousClaimCount, ytdClaims, extractionConfidence).
	Expression string `json:"expression"`

	Enabled bool `json:"enabled"`
}

// ScreeningHit is one fired screening rule for a claim.
type ScreeningHit struct {
	RuleID    string `json:"ruleId"`
	RuleName  string `json:"ruleName"`
	Reason    string `json:"reason"`
	ProcessMs int64  `json:"processMs"`
}

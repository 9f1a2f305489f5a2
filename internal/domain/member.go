package domain

import "strings"

// MemberInfo is the policyholder state supplied by the member store.
// The engine never mutates it; updating YTDClaims after an approval is the
// caller's responsibility.
type MemberInfo struct {
	MemberID        string `json:"memberId"`
	MemberName      string `json:"memberName"`
	PolicyNumber    string `json:"policyNumber,omitempty"`
	PolicyStartDate string `json:"policyStartDate"` // YYYY-MM-DD
	PolicyStatus    string `json:"policyStatus"`    // "active" or anything else

	// YTDClaims is the cumulative approved amount in the current policy year.
	YTDClaims float64 `json:"ytdClaims"`

	// PreviousClaims holds up to the 50 most recent claims, newest first.
	// Empty is valid.
	PreviousClaims []PreviousClaim `json:"previousClaims,omitempty"`
}

// PreviousClaim is one entry of a member's claim history.
type PreviousClaim struct {
	ClaimID  string  `json:"claimId"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Decision string  `json:"decision"`
}

// IsActive reports whether the member's policy is in force. Status
// comparison is case-insensitive.
func (m *MemberInfo) IsActive() bool {
	return strings.EqualFold(m.PolicyStatus, "active")
}

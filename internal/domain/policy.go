package domain

// PolicyDocument is the on-disk policy terms file, loaded once at startup
// and treated as read-only for the process lifetime. Missing sections take
// the zero value; the policy provider applies the documented defaults.
type PolicyDocument struct {
	PolicyName         string             `json:"policy_name"`
	PolicyVersion      string             `json:"policy_version,omitempty"`
	CoverageDetails    CoverageDetails    `json:"coverage_details"`
	WaitingPeriods     WaitingPeriods     `json:"waiting_periods"`
	Exclusions         []string           `json:"exclusions"`
	NetworkHospitals   []string           `json:"network_hospitals"`
	ClaimRequirements  ClaimRequirements  `json:"claim_requirements"`
	CashlessFacilities CashlessFacilities `json:"cashless_facilities"`
}

// CoverageDetails holds monetary limits and copay structure.
type CoverageDetails struct {
	AnnualLimit      float64          `json:"annual_limit"`
	PerClaimLimit    float64          `json:"per_claim_limit"`
	ConsultationFees ConsultationFees `json:"consultation_fees"`
	Pharmacy         PharmacyCoverage `json:"pharmacy"`
	DiagnosticTests  DiagnosticTests  `json:"diagnostic_tests"`
}

// ConsultationFees holds consultation copay and network discount, both
// expressed as percentages (e.g. 10 means 10%).
type ConsultationFees struct {
	SubLimit        float64 `json:"sub_limit,omitempty"`
	CopayPercentage float64 `json:"copay_percentage"`
	NetworkDiscount float64 `json:"network_discount"`
}

// PharmacyCoverage holds pharmacy limits. The branded-drugs copay applies to
// all medicines; there is no per-item brand classification.
type PharmacyCoverage struct {
	SubLimit          float64 `json:"sub_limit,omitempty"`
	BrandedDrugsCopay float64 `json:"branded_drugs_copay"`
}

// DiagnosticTests lists covered tests. Entries containing "pre-auth" mark
// tests that require pre-authorization.
type DiagnosticTests struct {
	SubLimit     float64  `json:"sub_limit,omitempty"`
	CoveredTests []string `json:"covered_tests"`
}

// WaitingPeriods holds waiting periods in days.
type WaitingPeriods struct {
	InitialWaiting      int            `json:"initial_waiting"`
	PreExistingDiseases int            `json:"pre_existing_diseases"`
	SpecificAilments    map[string]int `json:"specific_ailments"`
}

// ClaimRequirements holds submission constraints.
type ClaimRequirements struct {
	MinimumClaimAmount     float64 `json:"minimum_claim_amount"`
	SubmissionTimelineDays int     `json:"submission_timeline_days"`
}

// CashlessFacilities holds the instant-approval threshold for cashless
// settlement at network hospitals.
type CashlessFacilities struct {
	InstantApprovalLimit float64 `json:"instant_approval_limit"`
}

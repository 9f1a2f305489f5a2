package domain

// Decision is the final adjudication outcome for a claim.
type Decision string

const (
	DecisionApproved     Decision = "APPROVED"
	DecisionRejected     Decision = "REJECTED"
	DecisionPartial      Decision = "PARTIAL"
	DecisionManualReview Decision = "MANUAL_REVIEW"

	// DecisionNotAMember labels sales-preview adjudications for unknown
	// members. The engine never emits it; the API boundary relabels.
	DecisionNotAMember Decision = "NOT_A_MEMBER"
)

// StepOutcome is the per-step status recorded in AdjudicationSteps.
type StepOutcome string

const (
	StepPass    StepOutcome = "PASS"
	StepFail    StepOutcome = "FAIL"
	StepWarning StepOutcome = "WARNING"
	StepSkipped StepOutcome = "SKIPPED"
)

// Step names the five adjudication checks, in execution order.
type Step string

const (
	StepEligibility      Step = "eligibility"
	StepDocuments        Step = "documents"
	StepCoverage         Step = "coverage"
	StepLimits           Step = "limits"
	StepMedicalNecessity Step = "medicalNecessity"
)

// AllSteps returns the steps in pipeline order.
func AllSteps() []Step {
	return []Step{StepEligibility, StepDocuments, StepCoverage, StepLimits, StepMedicalNecessity}
}

// Rejection reason categories.
const (
	CategoryEligibility   = "eligibility"
	CategoryDocumentation = "documentation"
	CategoryCoverage      = "coverage"
	CategoryLimits        = "limits"
	CategoryMedical       = "medical"
	CategoryProcess       = "process"
)

// Rejection reason codes.
const (
	CodePolicyInactive        = "POLICY_INACTIVE"
	CodeWaitingPeriod         = "WAITING_PERIOD"
	CodeMissingDocuments      = "MISSING_DOCUMENTS"
	CodeDoctorRegInvalid      = "DOCTOR_REG_INVALID"
	CodeDateMismatch          = "DATE_MISMATCH"
	CodeExcludedCondition     = "EXCLUDED_CONDITION"
	CodePreAuthMissing        = "PRE_AUTH_MISSING"
	CodeServiceNotCovered     = "SERVICE_NOT_COVERED"
	CodeBelowMinAmount        = "BELOW_MIN_AMOUNT"
	CodePerClaimExceeded      = "PER_CLAIM_EXCEEDED"
	CodeAnnualLimitExceeded   = "ANNUAL_LIMIT_EXCEEDED"
	CodeNothingPayable        = "NOTHING_PAYABLE"
	CodeNotMedicallyNecessary = "NOT_MEDICALLY_NECESSARY"
)

// RejectionReason is one structured reason a claim was not fully approved.
type RejectionReason struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
}

// FraudFlag is one fraud signal. Category drives risk scoring; Message is
// free-form display text.
type FraudFlag struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Fraud flag categories and their score weights.
const (
	FraudSameDay        = "sameDay"
	FraudFrequency      = "frequency"
	FraudAmount         = "amount"
	FraudVagueDiagnosis = "vagueDiagnosis"
	FraudInconsistency  = "inconsistency"
	FraudMissingField   = "missingField"
	FraudUnclassified   = "unclassified"
)

// Deductions itemizes everything subtracted from the claimed amount.
// Each component is >= 0.
type Deductions struct {
	Copay           float64 `json:"copay"`
	NonCoveredItems float64 `json:"nonCoveredItems"`
	ExceededLimits  float64 `json:"exceededLimits"`
	NetworkDiscount float64 `json:"networkDiscount"`
}

// Total returns the sum of all deduction components.
func (d Deductions) Total() float64 {
	return d.Copay + d.NonCoveredItems + d.ExceededLimits + d.NetworkDiscount
}

// ClaimDecision is the engine's sole output, fully populated before return
// and immutable afterwards.
type ClaimDecision struct {
	ClaimID  string   `json:"claimId"`
	MemberID string   `json:"memberId"`
	Decision Decision `json:"decision"`

	ClaimedAmount  float64 `json:"claimedAmount"`
	ApprovedAmount float64 `json:"approvedAmount"`

	Deductions       Deductions        `json:"deductions"`
	RejectionReasons []RejectionReason `json:"rejectionReasons"`
	FraudFlags       []FraudFlag       `json:"fraudFlags"`
	RiskScore        float64           `json:"riskScore"`

	AdjudicationSteps map[Step]StepOutcome `json:"adjudicationSteps"`

	ConfidenceScore   float64 `json:"confidenceScore"`
	Notes             string  `json:"notes"`
	NextSteps         string  `json:"nextSteps"`
	IsNetworkHospital bool    `json:"isNetworkHospital"`
	CashlessApproved  bool    `json:"cashlessApproved"`
}

// Claim is the persisted claim record tracked through the service.
type Claim struct {
	ClaimID  string `json:"claimId"`
	MemberID string `json:"memberId"`
	Status   string `json:"status"` // PENDING, PROCESSING, DECIDED, FAILED

	Prescription *ExtractedClaimData `json:"prescription,omitempty"`
	Bill         *ExtractedClaimData `json:"bill,omitempty"`

	DecisionID string `json:"decisionId,omitempty"`
	CreatedAt  int64  `json:"createdAt"` // unix seconds
	UpdatedAt  int64  `json:"updatedAt"`
}

// Claim lifecycle statuses.
const (
	ClaimStatusPending    = "PENDING"
	ClaimStatusProcessing = "PROCESSING"
	ClaimStatusDecided    = "DECIDED"
	ClaimStatusFailed     = "FAILED"
)

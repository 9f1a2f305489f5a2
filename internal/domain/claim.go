package domain

import (
	"strings"
)

// ExtractedClaimData is the structured output of the upstream document
// pipeline for a single prescription or bill, or for both after merging.
// The core treats it as read-only.
type ExtractedClaimData struct {
	// Document metadata
	DocumentType         string  `json:"documentType"` // "prescription", "bill", or "both"
	ExtractionConfidence float64 `json:"extractionConfidence"`

	// Medical information
	DoctorInfo      *DoctorInfo  `json:"doctorInfo,omitempty"`
	PatientName     string       `json:"patientName,omitempty"`
	Diagnosis       string       `json:"diagnosis,omitempty"`
	Medications     []Medication `json:"medications,omitempty"`
	Procedures      []Procedure  `json:"procedures,omitempty"`
	DiagnosticTests []string     `json:"diagnosticTests,omitempty"`

	// Financial information
	Costs *CostBreakdown `json:"costs,omitempty"`

	// Date information
	Dates *DateInfo `json:"dates,omitempty"`

	// Additional context
	HospitalName     string   `json:"hospitalName,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	ExtractionErrors []string `json:"extractionErrors,omitempty"`
}

// DoctorInfo is the prescribing doctor as read off the prescription.
type DoctorInfo struct {
	Name               string `json:"name,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"` // e.g. KA/12345/2015
	Specialty          string `json:"specialty,omitempty"`
	ClinicName         string `json:"clinicName,omitempty"`
}

// Medication is a single prescribed medicine.
type Medication struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Procedure is a billed medical procedure.
type Procedure struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost,omitempty"`
}

// CostBreakdown is the itemized bill. Total is authoritative even when the
// components don't sum to it.
type CostBreakdown struct {
	Consultation    float64 `json:"consultation"`
	Medicines       float64 `json:"medicines"`
	DiagnosticTests float64 `json:"diagnosticTests"`
	Procedures      float64 `json:"procedures"`
	Other           float64 `json:"other"`
	Total           float64 `json:"total"`
}

// ComponentSum returns the sum of the itemized components, ignoring Total.
func (c *CostBreakdown) ComponentSum() float64 {
	return c.Consultation + c.Medicines + c.DiagnosticTests + c.Procedures + c.Other
}

// Normalize backfills Total from the components when the stated total is
// zero. The upstream pipeline guarantees a populated total; this keeps that
// guarantee when callers construct breakdowns by hand.
func (c *CostBreakdown) Normalize() {
	if c.Total == 0 {
		if sum := c.ComponentSum(); sum > 0 {
			c.Total = sum
		}
	}
}

// DateInfo holds document dates normalized to YYYY-MM-DD. Empty means absent.
type DateInfo struct {
	ConsultationDate string `json:"consultationDate,omitempty"`
	PrescriptionDate string `json:"prescriptionDate,omitempty"`
	BillDate         string `json:"billDate,omitempty"`
}

// HasValidRegistration reports whether the doctor registration number is
// present and carries the expected separator format (must contain / or -).
// Numbers without either separator are treated as absent.
func (d *DoctorInfo) HasValidRegistration() bool {
	if d == nil || d.RegistrationNumber == "" {
		return false
	}
	return strings.ContainsAny(d.RegistrationNumber, "/-")
}

// Merge combines single-document extractions into one record for
// adjudication. The prescription is the base; the bill's costs and hospital
// name take precedence when present. Either side may be nil.
func Merge(prescription, bill *ExtractedClaimData) *ExtractedClaimData {
	if prescription == nil && bill == nil {
		return nil
	}
	if prescription == nil {
		out := *bill
		out.Normalize()
		return &out
	}

	out := *prescription
	if bill != nil {
		if bill.Costs != nil {
			out.Costs = bill.Costs
		}
		if bill.HospitalName != "" {
			out.HospitalName = bill.HospitalName
		}
		out.DocumentType = "both"
	}
	out.Normalize()
	return &out
}

// Normalize applies the cost-total backfill when costs are present.
func (e *ExtractedClaimData) Normalize() {
	if e.Costs != nil {
		e.Costs.Normalize()
	}
}

// ClaimedAmount returns the stated bill total, or zero when no costs were
// extracted.
func (e *ExtractedClaimData) ClaimedAmount() float64 {
	if e.Costs == nil {
		return 0
	}
	return e.Costs.Total
}

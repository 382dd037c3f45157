package domain

import "time"

type DocumentType string

const (
	DocPassport                 DocumentType = "passport"
	DocPhoto                    DocumentType = "photo"
	DocPoliceClearance          DocumentType = "police_clearance"
	DocMedicalReport            DocumentType = "medical_report"
	DocRadiologicalReport       DocumentType = "radiological_report"
	DocFinancialProof           DocumentType = "financial_proof"
	DocEmploymentContract       DocumentType = "employment_contract"
	DocQualifications           DocumentType = "qualifications"
	DocSAQAEvaluation           DocumentType = "saqa_evaluation"
	DocCV                       DocumentType = "cv"
	DocReturnTicket             DocumentType = "return_ticket"
	DocAccommodation            DocumentType = "accommodation"
	DocMedicalInsurance         DocumentType = "medical_insurance"
	DocMarriageCertificate      DocumentType = "marriage_certificate"
	DocRelationshipProof        DocumentType = "relationship_proof"
	DocBusinessPlan             DocumentType = "business_plan"
	DocInvestmentProof          DocumentType = "investment_proof"
	DocAcceptanceLetter         DocumentType = "acceptance_letter"
	DocProfessionalRegistration DocumentType = "professional_registration"
	DocDOLRecommendation        DocumentType = "dol_recommendation"
	DocEmployerRegistration     DocumentType = "employer_registration"
	DocOther                    DocumentType = "other"
)

var documentTypes = map[DocumentType]struct{}{
	DocPassport:                 {},
	DocPhoto:                    {},
	DocPoliceClearance:          {},
	DocMedicalReport:            {},
	DocRadiologicalReport:       {},
	DocFinancialProof:           {},
	DocEmploymentContract:       {},
	DocQualifications:           {},
	DocSAQAEvaluation:           {},
	DocCV:                       {},
	DocReturnTicket:             {},
	DocAccommodation:            {},
	DocMedicalInsurance:         {},
	DocMarriageCertificate:      {},
	DocRelationshipProof:        {},
	DocBusinessPlan:             {},
	DocInvestmentProof:          {},
	DocAcceptanceLetter:         {},
	DocProfessionalRegistration: {},
	DocDOLRecommendation:        {},
	DocEmployerRegistration:     {},
	DocOther:                    {},
}

// IsKnownDocumentType reports whether t belongs to the shared catalogue used by
// uploads and visa-category manifests.
func IsKnownDocumentType(t DocumentType) bool {
	_, ok := documentTypes[t]
	return ok
}

type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type AuditAction string

const (
	AuditCaseCreated       AuditAction = "case_created"
	AuditDocumentUploaded  AuditAction = "document_uploaded"
	AuditDocumentValidated AuditAction = "document_validated"
	AuditStatusChanged     AuditAction = "status_changed"
	AuditRiskFlagged       AuditAction = "risk_flagged"
	AuditEligibilityScored AuditAction = "eligibility_scored"
	AuditPackageCompiled   AuditAction = "package_compiled"
)

type Case struct {
	ID               string       `json:"id"`
	VisaCategoryID   string       `json:"visa_category_id"`
	Status           CaseStatus   `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	EligibilityScore *int         `json:"eligibility_score,omitempty"`
	AuditTrail       []AuditEntry `json:"audit_trail"`
	RiskFlags        []RiskFlag   `json:"risk_flags"`
}

type AuditEntry struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type RiskFlag struct {
	Severity Severity `json:"severity,omitempty"`
	Details  string   `json:"details"`
}

// EffectiveSeverity applies the medium default to absent or unrecognized severities.
func (f RiskFlag) EffectiveSeverity() Severity {
	switch f.Severity {
	case SeverityLow, SeverityHigh:
		return f.Severity
	default:
		return SeverityMedium
	}
}

type Document struct {
	ID               string           `json:"id"`
	ApplicationID    string           `json:"application_id"`
	Type             DocumentType     `json:"type"`
	FileName         string           `json:"file_name"`
	FileSize         int64            `json:"file_size"`
	UploadedAt       time.Time        `json:"uploaded_at"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationReason string           `json:"validation_reason,omitempty"`
	ObjectKey        string           `json:"-"`
}

// ManifestEntry is one line of a visa category's document manifest. Required is
// a pointer so an omitted flag can be told apart from false.
type ManifestEntry struct {
	Type        DocumentType `json:"type" yaml:"type"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Required    *bool        `json:"required" yaml:"required"`
}

type VisaCategory struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description" yaml:"description"`
	ProcessingTime string          `json:"processing_time,omitempty" yaml:"processing_time"`
	Documents      []ManifestEntry `json:"documents" yaml:"documents"`
}

type MissingDocument struct {
	Type        DocumentType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

type CompletenessResult struct {
	TotalRequired        int               `json:"total_required"`
	TotalProvided        int               `json:"total_provided"`
	CompletionPercentage int               `json:"completion_percentage"`
	Complete             bool              `json:"complete"`
	Missing              []MissingDocument `json:"missing"`
}

type TargetView string

const (
	ViewUpload TargetView = "upload"
	ViewReview TargetView = "review"
	ViewStatus TargetView = "status"
)

type Urgency string

const (
	UrgencyPrimary Urgency = "primary"
	UrgencyWarning Urgency = "warning"
	UrgencyInfo    Urgency = "info"
	UrgencySuccess Urgency = "success"
	UrgencyDanger  Urgency = "danger"
)

type NextAction struct {
	Label      string     `json:"label"`
	TargetView TargetView `json:"target_view"`
	Urgency    Urgency    `json:"urgency"`
}

type ProgressSnapshot struct {
	StageIndex      int                `json:"stage_index"`
	StageCount      int                `json:"stage_count"`
	ProgressPercent int                `json:"progress_percent"`
	Terminal        bool               `json:"terminal"`
	NextAction      NextAction         `json:"next_action"`
	HasAlert        bool               `json:"has_alert"`
	RiskFlags       []RiskFlag         `json:"risk_flags"`
	AuditView       []AuditEntry       `json:"audit_view"`
	Completeness    CompletenessResult `json:"completeness"`
}

// Required returns a pointer suitable for ManifestEntry.Required.
func Required(v bool) *bool {
	return &v
}

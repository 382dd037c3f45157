package domain

import (
	"path/filepath"
	"strings"
)

var allowedUploadExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

type UploadCandidate struct {
	Type     DocumentType
	FileName string
	FileSize int64
}

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
}

// ValidateUpload checks an incoming file before it is stored. Content checks
// belong to the remote validation engine.
func ValidateUpload(u UploadCandidate, maxBytes int64) ValidationResult {
	failed := make([]string, 0)

	name := strings.TrimSpace(u.FileName)
	if name == "" {
		failed = append(failed, "upload.file_name_present")
	} else if _, ok := allowedUploadExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		failed = append(failed, "upload.extension_allowed")
	}
	if u.FileSize <= 0 {
		failed = append(failed, "upload.file_size_positive")
	}
	if maxBytes > 0 && u.FileSize > maxBytes {
		failed = append(failed, "upload.file_size_within_limit")
	}
	if !IsKnownDocumentType(u.Type) {
		failed = append(failed, "upload.document_type_known")
	}

	return ValidationResult{FailedRules: failed}
}

// ValidateRiskFlag checks a reviewer-supplied flag. An empty severity is
// accepted and later read as medium.
func ValidateRiskFlag(f RiskFlag) ValidationResult {
	failed := make([]string, 0)
	switch f.Severity {
	case "", SeverityLow, SeverityMedium, SeverityHigh:
	default:
		failed = append(failed, "risk_flag.severity_known")
	}
	if strings.TrimSpace(f.Details) == "" {
		failed = append(failed, "risk_flag.details_present")
	}
	return ValidationResult{FailedRules: failed}
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}

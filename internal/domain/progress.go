package domain

import (
	"math"
	"sort"
)

// MinProgressPercent keeps a freshly created case from rendering as empty.
const MinProgressPercent = 10

var nextActions = map[CaseStatus]NextAction{
	StatusDraft:            {Label: "Upload your supporting documents", TargetView: ViewUpload, Urgency: UrgencyPrimary},
	StatusDocumentsPending: {Label: "Complete your missing documents", TargetView: ViewUpload, Urgency: UrgencyWarning},
	StatusUnderReview:      {Label: "Check your review status", TargetView: ViewStatus, Urgency: UrgencyInfo},
	StatusCompiled:         {Label: "Review your application package", TargetView: ViewReview, Urgency: UrgencyPrimary},
	StatusSubmitted:        {Label: "Track your submission", TargetView: ViewStatus, Urgency: UrgencyInfo},
	StatusApproved:         {Label: "View your approval", TargetView: ViewStatus, Urgency: UrgencySuccess},
}

var fallbackAction = NextAction{Label: "View application status", TargetView: ViewStatus, Urgency: UrgencyInfo}

var rejectedAction = NextAction{Label: "View rejection details", TargetView: ViewStatus, Urgency: UrgencyDanger}

// RoundPercent rounds half away from zero to a whole percent.
func RoundPercent(v float64) int {
	return int(math.Round(v))
}

// ProgressPercent is the displayed pipeline progress with the
// MinProgressPercent floor applied.
func ProgressPercent(status CaseStatus) int {
	p := RoundPercent(ProgressFraction(status) * 100)
	if p < MinProgressPercent {
		return MinProgressPercent
	}
	return clampPercent(p)
}

// NextActionFor is total over every string value: unknown statuses get the
// status-page fallback and rejected is always raised to danger.
func NextActionFor(status CaseStatus) NextAction {
	if status == StatusRejected {
		return rejectedAction
	}
	if a, ok := nextActions[status]; ok {
		return a
	}
	return fallbackAction
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// SortRiskFlags returns a copy of flags ordered high, medium, low. Equal
// severities keep their insertion order. Absent severities are filled in as medium.
func SortRiskFlags(flags []RiskFlag) []RiskFlag {
	out := make([]RiskFlag, len(flags))
	for i, f := range flags {
		f.Severity = f.EffectiveSeverity()
		out[i] = f
	}
	sort.SliceStable(out, func(i, j int) bool {
		return severityRank(out[i].Severity) < severityRank(out[j].Severity)
	})
	return out
}

// ReverseAudit returns the trail most recent first without touching the input.
func ReverseAudit(trail []AuditEntry) []AuditEntry {
	out := make([]AuditEntry, len(trail))
	for i, e := range trail {
		out[len(trail)-1-i] = e
	}
	return out
}

func HasAlert(status CaseStatus, flags []RiskFlag) bool {
	if IsAlert(status) {
		return true
	}
	for _, f := range flags {
		if f.EffectiveSeverity() == SeverityHigh {
			return true
		}
	}
	return false
}

// ComputeSnapshot projects a case, its documents and its category manifest
// into a display-ready snapshot. It reads status but never validates how the
// case got there; any value is accepted. The only error is a malformed manifest.
func ComputeSnapshot(c Case, docs []Document, manifest []ManifestEntry) (ProgressSnapshot, error) {
	completeness, err := ComputeCompleteness(manifest, docs)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	return ProgressSnapshot{
		StageIndex:      DisplayOrdinal(c.Status),
		StageCount:      StageCount,
		ProgressPercent: ProgressPercent(c.Status),
		Terminal:        IsTerminal(c.Status),
		NextAction:      NextActionFor(c.Status),
		HasAlert:        HasAlert(c.Status, c.RiskFlags),
		RiskFlags:       SortRiskFlags(c.RiskFlags),
		AuditView:       ReverseAudit(c.AuditTrail),
		Completeness:    completeness,
	}, nil
}

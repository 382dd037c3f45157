package temporal

import "visa-case-tracker/internal/domain"

const CaseDecisionSignalName = "caseDecision"

type CaseDecisionSignal struct {
	Decision domain.Decision `json:"decision"`
	Actor    string          `json:"actor,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// DocumentWorkflowID is deterministic so a repeated bucket notification for
// the same document maps onto the same execution.
func DocumentWorkflowID(prefix, documentID string) string {
	return prefix + "-doc-" + documentID
}

func CaseWorkflowID(prefix, caseID string) string {
	return prefix + "-case-" + caseID
}

package domain

import "fmt"

// Decision is a caseworker action that moves a case past review.
type Decision string

const (
	DecisionCompile Decision = "compile"
	DecisionSubmit  Decision = "submit"
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

var decisionTargets = map[Decision]CaseStatus{
	DecisionCompile: StatusCompiled,
	DecisionSubmit:  StatusSubmitted,
	DecisionApprove: StatusApproved,
	DecisionReject:  StatusRejected,
}

// DecisionTarget returns the status a decision moves a case to.
func DecisionTarget(d Decision) (CaseStatus, error) {
	to, ok := decisionTargets[d]
	if !ok {
		return "", fmt.Errorf("unknown decision %q", d)
	}
	return to, nil
}

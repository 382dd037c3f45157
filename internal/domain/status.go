package domain

import "fmt"

type CaseStatus string

const (
	StatusDraft            CaseStatus = "draft"
	StatusDocumentsPending CaseStatus = "documents_pending"
	StatusUnderReview      CaseStatus = "under_review"
	StatusCompiled         CaseStatus = "compiled"
	StatusSubmitted        CaseStatus = "submitted"
	StatusApproved         CaseStatus = "approved"
	StatusRejected         CaseStatus = "rejected"
)

// pipeline is the ordered part of the lifecycle. StatusRejected is deliberately
// absent: it can be reached from any non-terminal stage and has no position.
var pipeline = []CaseStatus{
	StatusDraft,
	StatusDocumentsPending,
	StatusUnderReview,
	StatusCompiled,
	StatusSubmitted,
	StatusApproved,
}

// StageCount is the number of ordered pipeline stages.
var StageCount = len(pipeline)

// Pipeline returns a copy of the ordered stages.
func Pipeline() []CaseStatus {
	out := make([]CaseStatus, len(pipeline))
	copy(out, pipeline)
	return out
}

// Ordinal returns the 0-indexed position of status in the pipeline. It fails
// with ErrInvalidStatus for rejected and for unrecognized values; use it
// whenever the answer drives a data-changing decision.
func Ordinal(status CaseStatus) (int, error) {
	for i, s := range pipeline {
		if s == status {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q has no pipeline position", ErrInvalidStatus, status)
}

// DisplayOrdinal is the degraded-view variant of Ordinal: anything without a
// pipeline position renders as draft.
func DisplayOrdinal(status CaseStatus) int {
	n, err := Ordinal(status)
	if err != nil {
		return 0
	}
	return n
}

func IsTerminal(status CaseStatus) bool {
	return status == StatusApproved || status == StatusRejected
}

func IsAlert(status CaseStatus) bool {
	return status == StatusRejected
}

// IsKnown reports whether status is one of the seven defined values.
func IsKnown(status CaseStatus) bool {
	if status == StatusRejected {
		return true
	}
	_, err := Ordinal(status)
	return err == nil
}

// ProgressFraction is (ordinal+1)/StageCount, or 0 when status has no position.
func ProgressFraction(status CaseStatus) float64 {
	n, err := Ordinal(status)
	if err != nil {
		return 0
	}
	return float64(n+1) / float64(StageCount)
}

// ParseCaseStatus is the strict parser for externally supplied status strings.
func ParseCaseStatus(v string) (CaseStatus, error) {
	status := CaseStatus(v)
	if !IsKnown(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return status, nil
}

// CanTransition validates a single status change. Forward moves go exactly one
// stage; rejected is reachable from every non-terminal stage; nothing leaves a
// terminal stage.
func CanTransition(from, to CaseStatus) error {
	if from == StatusRejected {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	fromPos, err := Ordinal(from)
	if err != nil {
		return err
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StatusRejected {
		return nil
	}
	toPos, err := Ordinal(to)
	if err != nil {
		return err
	}
	if toPos != fromPos+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Next returns the stage following status, if any.
func Next(status CaseStatus) (CaseStatus, bool) {
	n, err := Ordinal(status)
	if err != nil || n+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[n+1], true
}

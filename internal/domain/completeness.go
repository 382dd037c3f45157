package domain

import (
	"fmt"
	"math"
)

// ValidateManifest rejects entries that lack a type or a required flag. An
// entry whose type is outside the document catalogue is well formed; no upload
// can match it, so a required one stays missing.
func ValidateManifest(manifest []ManifestEntry) error {
	for i, entry := range manifest {
		if entry.Type == "" {
			return fmt.Errorf("%w: entry %d has no type", ErrMalformedManifest, i)
		}
		if entry.Required == nil {
			return fmt.Errorf("%w: entry %d (%s) has no required flag", ErrMalformedManifest, i, entry.Type)
		}
	}
	return nil
}

type requirementState int

const (
	requirementMissing requirementState = iota
	requirementInvalid
	requirementSatisfied
)

// ComputeCompleteness measures how far docs satisfy the required part of
// manifest. TotalProvided counts evidence submitted, Complete counts evidence
// accepted: an invalid upload is provided but never complete.
func ComputeCompleteness(manifest []ManifestEntry, docs []Document) (CompletenessResult, error) {
	if err := ValidateManifest(manifest); err != nil {
		return CompletenessResult{}, err
	}

	byType := indexDocuments(docs)
	result := CompletenessResult{Complete: true, Missing: make([]MissingDocument, 0)}

	for _, entry := range manifest {
		if !*entry.Required {
			continue
		}
		result.TotalRequired++

		switch classifyRequirement(byType[entry.Type]) {
		case requirementSatisfied:
			result.TotalProvided++
		case requirementInvalid:
			result.TotalProvided++
			result.Complete = false
		case requirementMissing:
			result.Complete = false
			result.Missing = append(result.Missing, MissingDocument{
				Type:        entry.Type,
				Name:        entry.Name,
				Description: entry.Description,
			})
		}
	}

	result.CompletionPercentage = completionPercentage(result.TotalProvided, result.TotalRequired)
	return result, nil
}

func indexDocuments(docs []Document) map[DocumentType][]ValidationStatus {
	out := make(map[DocumentType][]ValidationStatus, len(docs))
	for _, d := range docs {
		if !IsKnownDocumentType(d.Type) {
			continue
		}
		out[d.Type] = append(out[d.Type], d.ValidationStatus)
	}
	return out
}

// classifyRequirement treats a requirement as satisfied when any matching
// upload is not invalid, so a corrected re-upload clears an earlier rejection.
func classifyRequirement(statuses []ValidationStatus) requirementState {
	if len(statuses) == 0 {
		return requirementMissing
	}
	for _, s := range statuses {
		if s != ValidationInvalid {
			return requirementSatisfied
		}
	}
	return requirementInvalid
}

func completionPercentage(provided, required int) int {
	if required == 0 {
		return 100
	}
	return clampPercent(int(math.Round(100 * float64(provided) / float64(required))))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

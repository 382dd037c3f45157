package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"visa-case-tracker/internal/domain"
)

var verdictAllowedKeys = map[string]struct{}{
	"status":     {},
	"reasons":    {},
	"confidence": {},
}

var compileAllowedKeys = map[string]struct{}{
	"package_id": {},
	"object_key": {},
	"page_count": {},
}

var eligibilityAllowedKeys = map[string]struct{}{
	"score":   {},
	"summary": {},
}

func ParseValidationVerdict(raw []byte) (ValidationVerdict, error) {
	if err := validateKeys(raw, verdictAllowedKeys, []string{"status"}); err != nil {
		return ValidationVerdict{}, err
	}
	var v ValidationVerdict
	if err := strictDecode(raw, &v); err != nil {
		return ValidationVerdict{}, err
	}
	switch v.Status {
	case domain.ValidationValid, domain.ValidationInvalid, domain.ValidationPending:
	default:
		return ValidationVerdict{}, fmt.Errorf("unsupported validation status %q", v.Status)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return ValidationVerdict{}, fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return v, nil
}

func ParseCompileResult(raw []byte) (CompileResult, error) {
	if err := validateKeys(raw, compileAllowedKeys, []string{"package_id", "object_key"}); err != nil {
		return CompileResult{}, err
	}
	var v CompileResult
	if err := strictDecode(raw, &v); err != nil {
		return CompileResult{}, err
	}
	if strings.TrimSpace(v.PackageID) == "" {
		return CompileResult{}, fmt.Errorf("package_id is empty")
	}
	return v, nil
}

func ParseEligibilityResult(raw []byte) (EligibilityResult, error) {
	if err := validateKeys(raw, eligibilityAllowedKeys, []string{"score"}); err != nil {
		return EligibilityResult{}, err
	}
	var v EligibilityResult
	if err := strictDecode(raw, &v); err != nil {
		return EligibilityResult{}, err
	}
	if v.Score < 0 || v.Score > 100 {
		return EligibilityResult{}, fmt.Errorf("score %d out of range", v.Score)
	}
	return v, nil
}

// ParseVisaCategory decodes a category definition. Manifest entries are not
// checked here; ComputeCompleteness rejects malformed ones when they are used.
func ParseVisaCategory(raw []byte) (domain.VisaCategory, error) {
	var v domain.VisaCategory
	if err := strictDecode(raw, &v); err != nil {
		return domain.VisaCategory{}, err
	}
	if strings.TrimSpace(v.ID) == "" {
		return domain.VisaCategory{}, fmt.Errorf("visa category id is empty")
	}
	return v, nil
}

func ParseVisaCategoryList(raw []byte) ([]domain.VisaCategory, error) {
	var v struct {
		Items []domain.VisaCategory `json:"items"`
	}
	if err := strictDecode(raw, &v); err != nil {
		return nil, err
	}
	if v.Items == nil {
		v.Items = make([]domain.VisaCategory, 0)
	}
	return v.Items, nil
}

func strictDecode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func validateKeys(raw []byte, allowed map[string]struct{}, required []string) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return err
	}
	for k := range rawMap {
		if _, ok := allowed[k]; !ok {
			keys := sortedKeys(allowed)
			return fmt.Errorf("unknown key %q, allowed: %v", k, keys)
		}
	}
	for _, req := range required {
		if _, ok := rawMap[req]; !ok {
			return fmt.Errorf("missing required key %q", req)
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

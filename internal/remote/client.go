package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"visa-case-tracker/internal/domain"
)

const defaultTimeout = 30 * time.Second

// DocumentValidator is the OCR/validation engine.
type DocumentValidator interface {
	ValidateDocument(ctx context.Context, req ValidationRequest) (ValidationVerdict, error)
}

// PackageCompiler assembles the submission package for a case.
type PackageCompiler interface {
	CompilePackage(ctx context.Context, req CompileRequest) (CompileResult, error)
}

// EligibilityScorer scores an applicant profile against a visa category.
type EligibilityScorer interface {
	ScoreEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error)
}

type ValidationRequest struct {
	ApplicationID string              `json:"application_id"`
	DocumentID    string              `json:"document_id"`
	DocumentType  domain.DocumentType `json:"document_type"`
	FileName      string              `json:"file_name"`
	ObjectKey     string              `json:"object_key"`
}

type ValidationVerdict struct {
	Status     domain.ValidationStatus `json:"status"`
	Reasons    []string                `json:"reasons"`
	Confidence float64                 `json:"confidence"`
}

type CompileRequest struct {
	ApplicationID  string   `json:"application_id"`
	VisaCategoryID string   `json:"visa_category_id"`
	DocumentIDs    []string `json:"document_ids"`
	ObjectKeys     []string `json:"object_keys"`
}

type CompileResult struct {
	PackageID string `json:"package_id"`
	ObjectKey string `json:"object_key"`
	PageCount int    `json:"page_count"`
}

type EligibilityRequest struct {
	ApplicationID  string         `json:"application_id"`
	VisaCategoryID string         `json:"visa_category_id"`
	Profile        map[string]any `json:"profile"`
}

type EligibilityResult struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

type HTTPClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) ValidateDocument(ctx context.Context, req ValidationRequest) (ValidationVerdict, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/documents/validate", req)
	if err != nil {
		return ValidationVerdict{}, err
	}
	return ParseValidationVerdict(body)
}

func (c *HTTPClient) CompilePackage(ctx context.Context, req CompileRequest) (CompileResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/packages/compile", req)
	if err != nil {
		return CompileResult{}, err
	}
	return ParseCompileResult(body)
}

func (c *HTTPClient) ScoreEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/eligibility", req)
	if err != nil {
		return EligibilityResult{}, err
	}
	return ParseEligibilityResult(body)
}

func (c *HTTPClient) VisaCategory(ctx context.Context, categoryID string) (domain.VisaCategory, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/visa-categories/"+url.PathEscape(categoryID), nil)
	if err != nil {
		return domain.VisaCategory{}, err
	}
	return ParseVisaCategory(body)
}

func (c *HTTPClient) VisaCategories(ctx context.Context) ([]domain.VisaCategory, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/visa-categories", nil)
	if err != nil {
		return nil, err
	}
	return ParseVisaCategoryList(body)
}

func (c *HTTPClient) do(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("REMOTE_ENGINE_URL is required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/v1/visa-categories/") {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, strings.TrimPrefix(path, "/v1/visa-categories/"))
	}
	if resp.StatusCode >= 400 {
		var parsed errorResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return nil, &StatusError{Code: resp.StatusCode, Message: parsed.Error.Message}
		}
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return respBody, nil
}

// StatusError is a non-2xx answer from the engine.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote engine request failed: %s", e.Message)
	}
	return fmt.Sprintf("remote engine request failed with status %d", e.Code)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"visa-case-tracker/internal/catalog"
	"visa-case-tracker/internal/config"
	"visa-case-tracker/internal/domain"
	"visa-case-tracker/internal/remote"
	"visa-case-tracker/internal/tracker"
	appTemporal "visa-case-tracker/internal/temporal"
)

const defaultListLimit = 50

var supportedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
}

// CaseService is implemented by tracker.Service.
type CaseService interface {
	OpenCase(ctx context.Context, categoryID string) (domain.Case, error)
	Case(ctx context.Context, caseID string) (domain.Case, error)
	ListCases(ctx context.Context, limit int) ([]tracker.CaseSummary, error)
	Snapshot(ctx context.Context, caseID string) (tracker.CaseView, error)
	Documents(ctx context.Context, caseID string) ([]domain.Document, error)
	UploadDocument(ctx context.Context, caseID string, candidate domain.UploadCandidate, contentType string, content []byte) (domain.Document, error)
	FlagRisk(ctx context.Context, caseID string, flag domain.RiskFlag) error
	RecordEligibility(ctx context.Context, caseID string, score int, summary string) (bool, error)
}

// WorkflowClient is the part of client.Client the handlers use.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{}, options client.StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (client.WorkflowRun, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	cfg            config.Config
	cases          CaseService
	categories     catalog.Source
	eligibility    remote.EligibilityScorer
	temporalClient WorkflowClient
	db             Pinger
	logger         *zap.Logger
}

type createCaseRequest struct {
	VisaCategoryID string `json:"visa_category_id"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Actor    string `json:"actor,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type riskFlagRequest struct {
	Severity string `json:"severity,omitempty"`
	Details  string `json:"details"`
}

type eligibilityRequest struct {
	Profile map[string]any `json:"profile"`
}

func NewHandler(cfg config.Config, cases CaseService, categories catalog.Source, eligibility remote.EligibilityScorer, temporalClient WorkflowClient, db Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:            cfg,
		cases:          cases,
		categories:     categories,
		eligibility:    eligibility,
		temporalClient: temporalClient,
		db:             db,
		logger:         logger,
	}
}

func (h *Handler) ListVisaCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.categories.VisaCategories(ctx)
	if err != nil {
		h.writeError(w, err, "failed to fetch visa categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetVisaCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	category, err := h.categories.VisaCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownCategory) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "visa category not found"})
			return
		}
		h.writeError(w, err, "failed to fetch visa category")
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// CreateCase opens a draft case and starts its lifecycle workflow. A failed
// workflow start is logged only; the decisions endpoint starts it on demand.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.VisaCategoryID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "visa_category_id is required"})
		return
	}

	c, err := h.cases.OpenCase(ctx, req.VisaCategoryID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownCategory) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown visa category"})
			return
		}
		h.writeError(w, err, "failed to create case")
		return
	}

	workflowID := appTemporal.CaseWorkflowID(h.cfg.WorkflowIDPrefix, c.ID)
	_, err = h.temporalClient.ExecuteWorkflow(ctx, h.lifecycleOptions(workflowID), appTemporal.CaseLifecycleWorkflowName, appTemporal.CaseLifecycleInput{ApplicationID: c.ID})
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &alreadyStarted) {
		h.logger.Error("start lifecycle workflow", zap.String("case_id", c.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"case":        c,
		"workflow_id": workflowID,
	})
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, err := h.cases.ListCases(ctx, limit)
	if err != nil {
		h.writeError(w, err, "failed to list cases")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.cases.Case(ctx, caseID)
	if err != nil {
		h.writeError(w, err, "failed to fetch case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := h.cases.Snapshot(ctx, caseID)
	if err != nil {
		h.writeError(w, err, "failed to compute progress")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	docs, err := h.cases.Documents(ctx, caseID)
	if err != nil {
		h.writeError(w, err, "failed to fetch documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs})
}

// UploadDocument stores the file and returns at once. Validation starts from
// the bucket notification handled by the event handler.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.AllowedUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}

	contentType, ok := sniffContentType(body)
	if len(body) > 0 && !ok {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "only PDF, JPEG and PNG files are accepted"})
		return
	}

	doc, err := h.cases.UploadDocument(ctx, caseID, domain.UploadCandidate{
		Type:     domain.DocumentType(strings.TrimSpace(r.FormValue("document_type"))),
		FileName: header.Filename,
		FileSize: int64(len(body)),
	}, contentType, body)
	if err != nil {
		h.writeError(w, err, "failed to upload document")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document":    doc,
		"workflow_id": appTemporal.DocumentWorkflowID(h.cfg.WorkflowIDPrefix, doc.ID),
	})
}

// SubmitDecision checks the decision against the current status, then hands
// it to the lifecycle workflow, starting the workflow if it is not running.
func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	decision := domain.Decision(req.Decision)
	to, err := domain.DecisionTarget(decision)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid decision"})
		return
	}

	c, err := h.cases.Case(ctx, caseID)
	if err != nil {
		h.writeError(w, err, "failed to fetch case")
		return
	}
	if err := domain.CanTransition(c.Status, to); err != nil {
		h.writeError(w, err, "invalid decision")
		return
	}

	workflowID := appTemporal.CaseWorkflowID(h.cfg.WorkflowIDPrefix, caseID)
	signal := appTemporal.CaseDecisionSignal{Decision: decision, Actor: req.Actor, Reason: req.Reason}
	if _, err := h.temporalClient.SignalWithStartWorkflow(ctx, workflowID, appTemporal.CaseDecisionSignalName, signal,
		h.lifecycleOptions(workflowID), appTemporal.CaseLifecycleWorkflowName, appTemporal.CaseLifecycleInput{ApplicationID: caseID}); err != nil {
		h.logger.Error("signal lifecycle workflow", zap.String("case_id", caseID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"case_id": caseID, "decision": decision, "status": "decision_signal_sent"})
}

func (h *Handler) AddRiskFlag(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req riskFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	flag := domain.RiskFlag{Severity: domain.Severity(req.Severity), Details: req.Details}
	if err := h.cases.FlagRisk(ctx, caseID, flag); err != nil {
		h.writeError(w, err, "failed to record risk flag")
		return
	}
	writeJSON(w, http.StatusCreated, flag)
}

// ScoreEligibility runs the remote eligibility check once per case; the
// first score is kept.
func (h *Handler) ScoreEligibility(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	c, err := h.cases.Case(ctx, caseID)
	if err != nil {
		h.writeError(w, err, "failed to fetch case")
		return
	}
	if c.EligibilityScore != nil {
		writeJSON(w, http.StatusOK, map[string]any{"score": *c.EligibilityScore, "recorded": false})
		return
	}

	result, err := remote.WithRetry(ctx, h.cfg.RemoteMaxRetry, func(ctx context.Context) (remote.EligibilityResult, error) {
		return h.eligibility.ScoreEligibility(ctx, remote.EligibilityRequest{
			ApplicationID:  caseID,
			VisaCategoryID: c.VisaCategoryID,
			Profile:        req.Profile,
		})
	})
	if err != nil {
		h.logger.Error("eligibility engine", zap.String("case_id", caseID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "eligibility engine unavailable"})
		return
	}

	recorded, err := h.cases.RecordEligibility(ctx, caseID, result.Score, result.Summary)
	if err != nil {
		h.writeError(w, err, "failed to record eligibility")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"score": result.Score, "summary": result.Summary, "recorded": recorded})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) lifecycleOptions(workflowID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.cfg.TemporalTaskQueue,
	}
}

// writeError maps service errors onto status codes. Anything unrecognized is
// logged and reported with the fallback message.
func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	var ruleErr *tracker.RuleViolationError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "case not found"})
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "failed_rules": ruleErr.FailedRules})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, tracker.ErrCaseClosed):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrMalformedManifest):
		h.logger.Error(fallback, zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "visa category manifest is malformed"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": fallback})
	}
}

// sniffContentType reports the detected type of body and whether it is one
// the validation engine accepts.
func sniffContentType(body []byte) (string, bool) {
	ct := http.DetectContentType(body)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	_, ok := supportedContentTypes[ct]
	return ct, ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

//go:build system

package system_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"visa-case-tracker/internal/domain"
	appTemporal "visa-case-tracker/internal/temporal"
)

var _ = Describe("System blackbox case flow", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig
	var temporalClient client.Client

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/healthz", 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.APIBaseURL+"/readyz", 200, cfg.PreflightTimeout)).To(Succeed())

		temporalClient, err = client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(temporalClient.Close)
		Expect(waitForWorkerPoller(temporalClient, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
	})

	It("opens a case, validates an upload through the worker and rejects the case by signal", func() {
		By("opening a case like a user")
		created, err := createCase(cfg.APIBaseURL, cfg.VisaCategoryID)
		Expect(err).ToNot(HaveOccurred())
		Expect(created.Case.ID).ToNot(BeEmpty())
		Expect(created.Case.Status).To(Equal(domain.StatusDraft))
		Expect(created.WorkflowID).To(Equal(appTemporal.CaseWorkflowID("visa-case", created.Case.ID)))
		caseID := created.Case.ID

		By("uploading a passport")
		upload, err := uploadDocument(cfg.APIBaseURL, caseID, domain.DocPassport, filepath.Join(repoRoot, "tests", "system", cfg.UploadFixturePath))
		Expect(err).ToNot(HaveOccurred())
		Expect(upload.Document.ValidationStatus).To(Equal(domain.ValidationPending))

		By("waiting for the document validation workflow the upload event started")
		var result appTemporal.DocumentValidationResult
		Eventually(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.WorkflowPollInterval*5)
			defer cancel()
			return temporalClient.GetWorkflow(ctx, upload.WorkflowID, "").Get(ctx, &result)
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Succeed())
		Expect(result.DocumentID).To(Equal(upload.Document.ID))
		Expect(result.CaseStatus).To(Equal(domain.StatusDocumentsPending))

		order, err := collectActivityOrder(context.Background(), temporalClient, upload.WorkflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(order).To(Equal(cfg.ExpectedActivityOrder))

		By("reading progress over HTTP")
		view, err := getCase(cfg.APIBaseURL, caseID)
		Expect(err).ToNot(HaveOccurred())
		Expect(view.Case.Status).To(Equal(domain.StatusDocumentsPending))
		Expect(view.ManifestAvailable).To(BeTrue())
		Expect(view.Documents).To(HaveLen(1))
		Expect(view.Snapshot.Completeness.Complete).To(BeFalse())
		Expect(view.Snapshot.Completeness.TotalProvided).To(Equal(1))
		Expect(view.Snapshot.NextAction.Label).ToNot(BeEmpty())

		By("rejecting the case through the lifecycle workflow")
		Expect(submitDecision(cfg.APIBaseURL, caseID, "reject", "system test")).To(Succeed())
		Eventually(func() domain.CaseStatus {
			v, getErr := getCase(cfg.APIBaseURL, caseID)
			Expect(getErr).ToNot(HaveOccurred())
			return v.Case.Status
		}, cfg.WorkflowCompletionTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StatusRejected))

		By("verifying the audit trail in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		actions, err := fetchStringRows(db, `SELECT action FROM case_audit WHERE case_id = $1 ORDER BY id`, caseID)
		Expect(err).ToNot(HaveOccurred())
		Expect(actions[0]).To(Equal(string(domain.AuditCaseCreated)))
		Expect(actions).To(ContainElement(string(domain.AuditDocumentUploaded)))
		Expect(actions).To(ContainElement(string(domain.AuditDocumentValidated)))
		Expect(actions[len(actions)-1]).To(Equal(string(domain.AuditStatusChanged)))
	})
})

package temporal

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"visa-case-tracker/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	loadIn      *LoadDocumentInput
	loadOut     *LoadDocumentOutput
	validateIn  *ValidateDocumentInput
	validateOut *ValidateDocumentOutput
	recordIn    *RecordValidationInput
	advanceOut  *AdvanceCaseOutput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("DocumentValidationWorkflow blackbox happy path", func() {
	It("validates the last missing document and moves the case into review", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		caseID := "case-blackbox-1"
		documentID := "doc-photo-blackbox-1"

		cases := newFakeCases()
		cases.addCase(caseID, domain.StatusDocumentsPending)
		cases.addDocument(testDocument("doc-passport-blackbox-1", caseID, domain.DocPassport, domain.ValidationValid))
		photo := testDocument(documentID, caseID, domain.DocPhoto, domain.ValidationPending)
		cases.addDocument(photo)

		acts, validator, _ := newTestActivities(cases)
		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "LoadDocumentActivity":
				var in LoadDocumentInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.loadIn = &in
				trace.mu.Unlock()
			case "ValidateDocumentActivity":
				var in ValidateDocumentInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.validateIn = &in
				trace.mu.Unlock()
			case "RecordValidationActivity":
				var in RecordValidationInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.recordIn = &in
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "LoadDocumentActivity":
				var out LoadDocumentOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.loadOut = &out
				trace.mu.Unlock()
			case "ValidateDocumentActivity":
				var out ValidateDocumentOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.validateOut = &out
				trace.mu.Unlock()
			case "AdvanceCaseActivity":
				var out AdvanceCaseOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.advanceOut = &out
				trace.mu.Unlock()
			}
		})

		registerAll(env, acts)

		By("simulating the bucket notification for the uploaded photo")
		input := DocumentValidationInput{
			ApplicationID: caseID,
			DocumentID:    documentID,
			Filename:      photo.FileName,
			ObjectKey:     photo.ObjectKey,
		}

		By("triggering the workflow execution")
		env.ExecuteWorkflow(DocumentValidationWorkflow, input)

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var wfResult DocumentValidationResult
		Expect(env.GetWorkflowResult(&wfResult)).To(Succeed())
		Expect(wfResult.DocumentID).To(Equal(documentID))
		Expect(wfResult.ValidationStatus).To(Equal(domain.ValidationValid))
		Expect(wfResult.CaseStatus).To(Equal(domain.StatusUnderReview))

		By("validating each activity input and output")
		expectedOrder := []string{
			"LoadDocumentActivity",
			"ValidateDocumentActivity",
			"RecordValidationActivity",
			"AdvanceCaseActivity",
		}
		Expect(trace.startedOrder).To(Equal(expectedOrder))
		Expect(trace.completedOrder).To(Equal(expectedOrder))

		Expect(trace.loadIn).ToNot(BeNil())
		Expect(trace.loadIn.DocumentID).To(Equal(documentID))
		Expect(trace.loadOut).ToNot(BeNil())
		Expect(trace.loadOut.ApplicationID).To(Equal(caseID))
		Expect(trace.loadOut.DocumentType).To(Equal(domain.DocPhoto))
		Expect(trace.loadOut.ObjectKey).To(Equal(caseID + "/" + documentID + "/photo.pdf"))

		Expect(trace.validateIn).ToNot(BeNil())
		Expect(trace.validateIn.ApplicationID).To(Equal(caseID))
		Expect(trace.validateIn.DocumentType).To(Equal(domain.DocPhoto))
		Expect(trace.validateIn.ObjectKey).To(Equal(photo.ObjectKey))

		Expect(trace.validateOut).ToNot(BeNil())
		Expect(trace.validateOut.Status).To(Equal(domain.ValidationValid))
		Expect(trace.validateOut.Confidence).To(BeNumerically("~", 0.95, 0.0001))

		Expect(trace.recordIn).ToNot(BeNil())
		Expect(trace.recordIn.DocumentID).To(Equal(documentID))
		Expect(trace.recordIn.Status).To(Equal(domain.ValidationValid))

		Expect(trace.advanceOut).ToNot(BeNil())
		Expect(trace.advanceOut.Status).To(Equal(domain.StatusUnderReview))
		Expect(validator.calls).To(Equal(1))

		By("validating persisted side effects")
		stored, err := cases.Document(context.Background(), documentID)
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.ValidationStatus).To(Equal(domain.ValidationValid))
		Expect(cases.status(caseID)).To(Equal(domain.StatusUnderReview))
	})
})

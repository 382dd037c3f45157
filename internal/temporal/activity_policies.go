package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	ActivityPolicyLoadDocument     = "load_document"
	ActivityPolicyValidateDocument = "validate_document"
	ActivityPolicyRecordValidation = "record_validation"
	ActivityPolicyAdvanceCase      = "advance_case"
	ActivityPolicyCompilePackage   = "compile_package"
	ActivityPolicyTransitionCase   = "transition_case"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var storeRetry = temporal.RetryPolicy{
	InitialInterval:        1 * time.Second,
	BackoffCoefficient:     2,
	MaximumInterval:        10 * time.Second,
	MaximumAttempts:        3,
	NonRetryableErrorTypes: []string{errTypeInvalidTransition, errTypeNotFound},
}

// Remote engine calls retry inside the activity with remote.WithRetry.
var activityPolicies = map[string]activityPolicy{
	ActivityPolicyLoadDocument: {
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyValidateDocument: {
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyRecordValidation: {
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyAdvanceCase: {
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy:         storeRetry,
	},
	ActivityPolicyCompilePackage: {
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyTransitionCase: {
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy:         storeRetry,
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	retry.NonRetryableErrorTypes = append([]string(nil), policy.RetryPolicy.NonRetryableErrorTypes...)
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}

package orchestrator

import "errors"

var (
	// ErrNoWorkflowMatched indicates submission attributes selected no
	// active template and no explicit workflow id was supplied. The
	// submission fails; no ledger row is created.
	ErrNoWorkflowMatched = errors.New("no workflow matches the submission attributes")

	// ErrNoPendingStep indicates the request has no ledger rows at all.
	ErrNoPendingStep = errors.New("request has no pending approval step")

	// ErrStepConflict indicates a decision targeted a step that is not the
	// request's current PENDING step. The ledger is untouched.
	ErrStepConflict = errors.New("decision step does not match the current pending step")

	// ErrStaleEvent indicates the intended effect already happened
	// (duplicate delivery). Handlers log and drop it; it is not surfaced
	// to event producers as a failure.
	ErrStaleEvent = errors.New("decision already applied")

	// ErrInvalidReturnTarget indicates a return named a step outside the
	// request's workflow.
	ErrInvalidReturnTarget = errors.New("return target step does not belong to the request's workflow")

	// ErrDelegateRequired indicates a delegate decision without a delegate
	// user.
	ErrDelegateRequired = errors.New("delegate decision requires a delegate user")
)

func IsNoWorkflowMatched(err error) bool { return errors.Is(err, ErrNoWorkflowMatched) }

func IsNoPendingStep(err error) bool { return errors.Is(err, ErrNoPendingStep) }

func IsStepConflict(err error) bool { return errors.Is(err, ErrStepConflict) }

func IsStaleEvent(err error) bool { return errors.Is(err, ErrStaleEvent) }

func IsInvalidReturnTarget(err error) bool { return errors.Is(err, ErrInvalidReturnTarget) }

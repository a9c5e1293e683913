// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attempt

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// REASONS AND ERRORS
// ============================================================================

// Reason strings recorded on receipts.
const (
	ReasonOKLocal             = "ok_local"
	ReasonRetryOK             = "retry_ok"
	ReasonEscalationSuggested = "escalation_suggested"
	ReasonLocalLimitPrefix    = "local_limit:"
)

// Validation error codes.
const (
	CodeSchemaInvalid = "schema_invalid"
	CodeLowConsensus  = "low_consensus"
)

// Tiers recorded on receipts.
const (
	TierLocal      = "T1"
	TierEscalation = "T1->T2?"
)

// Escalation targets.
const (
	TargetNeedPaid      = "NEED_PAID"
	TargetTryFreePrefix = "TRY_FREE:"
)

var (
	// ErrSchemaInvalid means the winning output did not match the job schema.
	ErrSchemaInvalid = errors.New("schema invalid")
	// ErrLowConsensus means the samples did not agree enough.
	ErrLowConsensus = errors.New("low consensus")
	// ErrNoViableRoute means no free private remote model is available.
	ErrNoViableRoute = errors.New("no viable route")
)

// ============================================================================
// OUTCOME VARIANTS
// ============================================================================

// Outcome is the terminal result of a job. The set of implementations is
// closed.
type Outcome interface {
	// Text is the output produced for the job.
	Text() string
	// Reason is the machine-readable reason recorded on the receipt.
	Reason() string

	isOutcome()
}

// Accepted is a first-round pass.
type Accepted struct {
	Output string
	Tier   string
}

func (o Accepted) Text() string   { return o.Output }
func (o Accepted) Reason() string { return ReasonOKLocal }
func (Accepted) isOutcome()       {}

// RetryAccepted is a pass on the single retry.
type RetryAccepted struct {
	Output    string
	Agreement float64
}

func (o RetryAccepted) Text() string   { return o.Output }
func (o RetryAccepted) Reason() string { return ReasonRetryOK }
func (RetryAccepted) isOutcome()       {}

// EscalationSuggested recommends a remote tier. No remote call was made.
// Target is TargetNeedPaid or TargetTryFreePrefix followed by a model id.
type EscalationSuggested struct {
	Output  string
	Target  string
	Reasons []string
}

func (o EscalationSuggested) Text() string   { return o.Output }
func (o EscalationSuggested) Reason() string { return ReasonEscalationSuggested }
func (EscalationSuggested) isOutcome()       {}

// FreeModel returns the suggested free model id, if any.
func (o EscalationSuggested) FreeModel() (string, bool) {
	return strings.CutPrefix(o.Target, TargetTryFreePrefix)
}

// LocalLimitReached reports that local retries failed and remote spending
// was not authorized.
type LocalLimitReached struct {
	Output  string
	Reasons []string
}

func (o LocalLimitReached) Text() string { return o.Output }
func (o LocalLimitReached) Reason() string {
	return ReasonLocalLimitPrefix + strings.Join(o.Reasons, ",")
}
func (LocalLimitReached) isOutcome() {}

// ============================================================================
// OUTCOME HELPERS
// ============================================================================

// Summary returns a one-line description of o.
func Summary(o Outcome) string {
	switch o := o.(type) {
	case Accepted:
		return "local success"
	case RetryAccepted:
		return "local retry success"
	case EscalationSuggested:
		return "suggest escalation"
	case LocalLimitReached:
		return "local limit reached"
	default:
		panic(fmt.Sprintf("attempt: unhandled outcome %T", o))
	}
}

// Err returns the error view of o. Passes and free-model suggestions give
// nil. LocalLimitReached matches ErrNoViableRoute and the sentinel of each
// validation failure. A paid-only escalation matches ErrNoViableRoute.
func Err(o Outcome) error {
	switch o := o.(type) {
	case Accepted, RetryAccepted:
		return nil
	case EscalationSuggested:
		if o.Target == TargetNeedPaid {
			return fmt.Errorf("attempt: %s: %w", o.Reason(), ErrNoViableRoute)
		}
		return nil
	case LocalLimitReached:
		errs := []error{ErrNoViableRoute}
		for _, r := range o.Reasons {
			switch r {
			case CodeSchemaInvalid:
				errs = append(errs, ErrSchemaInvalid)
			case CodeLowConsensus:
				errs = append(errs, ErrLowConsensus)
			}
		}
		return fmt.Errorf("attempt: %s: %w", o.Reason(), errors.Join(errs...))
	default:
		panic(fmt.Sprintf("attempt: unhandled outcome %T", o))
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attempt runs one job against the local tier under a consensus
// quality gate.
//
// A job is sampled k times from the primary local model, the samples are put
// to a majority vote and the winner is checked against the job's optional
// JSON schema and the agreement threshold. A failing first round gets
// exactly one retry with the prompt clipped to RetryPromptChars. A failing
// retry ends in a recommendation (EscalationSuggested) when remote spending
// is authorized, otherwise in LocalLimitReached.
//
// # Outcomes
//
// Outcome is a closed set: Accepted, RetryAccepted, EscalationSuggested and
// LocalLimitReached. Switches over it should list every variant and treat
// anything else as a bug:
//
//	switch o := outcome.(type) {
//	case attempt.Accepted:
//	case attempt.RetryAccepted:
//	case attempt.EscalationSuggested:
//	case attempt.LocalLimitReached:
//	default:
//	    panic(fmt.Sprintf("unhandled outcome %T", o))
//	}
//
// Generation failures are not outcomes. They abort the job and are returned
// as errors that still match llm.TransportError with errors.As.
package attempt

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"time"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/router"
)

type outcomeFanout []attempt.Observer

func (f outcomeFanout) ObserveOutcome(ctx context.Context, job attempt.Job, o attempt.Outcome, elapsed time.Duration) {
	for _, obs := range f {
		obs.ObserveOutcome(ctx, job, o, elapsed)
	}
}

// OutcomeFanout returns an observer that notifies each non-nil obs in order.
func OutcomeFanout(obs ...attempt.Observer) attempt.Observer {
	out := make(outcomeFanout, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type routeFanout []router.Observer

func (f routeFanout) ObserveRoute(ctx context.Context, res *router.Result, elapsed time.Duration) {
	for _, obs := range f {
		obs.ObserveRoute(ctx, res, elapsed)
	}
}

// RouteFanout returns an observer that notifies each non-nil obs in order.
func RouteFanout(obs ...router.Observer) router.Observer {
	out := make(routeFanout, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

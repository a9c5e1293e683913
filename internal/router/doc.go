// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router provides local-first prompt routing with session-aware
// cloud upgrades.
//
// Every prompt is tried on each configured local model first. The best
// local answer is scored; when it reaches the quality target it is returned
// at zero cost. Otherwise the router ranks paid cloud models by cost per
// quality point and, with a session cost projection, either returns the
// options for a human decision or upgrades automatically.
//
// # Key Types
//
//   - Router: routes prompts and owns the session lifecycle
//   - LocalRunner: runs a prompt through every local model
//   - CloudRunner: runs a prompt on one paid model and prices it
//   - Result: the routing outcome returned to callers
//   - Stats: cumulative local versus cloud accounting
//
// # Usage
//
//	r := router.New(local, cloud, advisor.New(nil), session.NewManager(cfg, logger),
//	    router.WithTaskSink(store), router.WithSessionSink(store))
//	res, err := r.Route(ctx, prompt, "", false)
//	switch res.Status {
//	case router.StatusLocalSuccess:
//	case router.StatusLocalLimited:
//	    // show res.UpgradeOptions and res.Analysis
//	case router.StatusCloudSuccess:
//	}
//
// # Persistence
//
// Session transitions return persistence intents. The router carries them
// out in order: task rows first, then the session row. Sink failures are
// logged and do not fail the route.
package router

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exports Prometheus metrics for job attempts and routing.
//
// Metrics implements both attempt.Observer and router.Observer, so one
// instance can be handed to the pipeline and the router.
//
// # Key Types
//
//   - Metrics: counters for outcomes, routes and cloud spend plus a histogram
//     of local quality scores
//   - OutcomeFanout / RouteFanout: forward notifications to several observers
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m := telemetry.MustNewMetrics(reg)
//	r := router.New(local, cloud, adv, sessions,
//	    router.WithObserver(telemetry.RouteFanout(m, publisher)))
//
// # Privacy
//
// Only labels and numbers are recorded. Prompt and response text never
// leave the process through this package.
package telemetry

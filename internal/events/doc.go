// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events publishes routing and job decisions as JSON messages on a
// Redis Pub/Sub channel.
//
// A Publisher also implements attempt.Observer and router.Observer, so it can
// be attached to the pipeline and the router next to the metrics observer.
// Publish failures are logged and never fail the decision that caused them.
//
// # Usage
//
//	pub, err := events.NewRedisPublisher(ctx, "redis://localhost:6379/0", "", logger)
//	if err != nil {
//	    return err
//	}
//	defer pub.Close()
//	r := router.New(local, cloud, adv, sessions, router.WithObserver(pub))
package events

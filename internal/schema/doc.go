// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schema validates model output against an optional JSON Schema.
//
// The Gate answers a single yes/no question: is this text a JSON document
// that satisfies the schema? Parse errors, schema compile errors and
// validation errors all read as "no". The Gate never panics.
package schema

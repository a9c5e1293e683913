// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// defaultCacheSize bounds how many compiled schemas the Gate keeps.
	defaultCacheSize = 64

	resourceURL = "mem://rigrun/schema.json"
)

// Gate validates candidate text against JSON schemas. Compiled schemas are
// cached by content hash. A Gate is safe for concurrent use.
type Gate struct {
	compiled *lru.Cache[string, *jsonschema.Schema]
}

// NewGate creates a Gate with the default compiled-schema cache size.
func NewGate() *Gate {
	cache, err := lru.New[string, *jsonschema.Schema](defaultCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Gate{compiled: cache}
}

// Validate reports whether text is a single JSON document satisfying schema.
// An empty schema accepts everything.
func (g *Gate) Validate(text string, schema []byte) (ok bool) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	doc, err := decodeStrict(text)
	if err != nil {
		return false
	}
	sch, err := g.compile(schema)
	if err != nil {
		return false
	}
	return sch.Validate(doc) == nil
}

// Check is Validate with the reason for a rejection.
func (g *Gate) Check(text string, schema []byte) error {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil
	}
	doc, err := decodeStrict(text)
	if err != nil {
		return err
	}
	sch, err := g.compile(schema)
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}

func (g *Gate) compile(schema []byte) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(schema)
	key := hex.EncodeToString(sum[:])
	if sch, ok := g.compiled.Get(key); ok {
		return sch, nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(resourceURL, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, err
	}
	g.compiled.Add(key, sch)
	return sch, nil
}

var errTrailingData = errors.New("unexpected data after JSON document")

// decodeStrict parses exactly one JSON document, keeping number precision.
func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

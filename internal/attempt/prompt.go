// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attempt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jeranaias/rigrun-router/internal/util"
)

const (
	// TemplateVersion is recorded on every receipt.
	TemplateVersion = "1.0"

	// MaxContextChars is how much job context goes into the prompt.
	MaxContextChars = 4000

	// RetryPromptChars is the length the retry prompt is clipped to.
	RetryPromptChars = 3000

	defaultPromptCacheSize = 128
	defaultPromptCacheTTL  = time.Hour
)

const promptTemplate = "You are a careful assistant. Goal: %s\n" +
	"If a JSON schema is provided, produce strictly valid JSON matching it.\n" +
	"Context (may be empty):\n" +
	"---\n" +
	"%s\n" +
	"---\n" +
	"Return ONLY the output (no extra prose)."

// Template returns the prompt template recorded as TemplateVersion.
func Template() string {
	return promptTemplate
}

type promptEntry struct {
	prompt   string
	storedAt time.Time
}

// PromptBuilder renders job prompts and keeps recently built ones in an LRU
// keyed by template version, goal and context.
type PromptBuilder struct {
	cache *lru.Cache[string, promptEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewPromptBuilder returns a builder caching up to size prompts for ttl.
// Non-positive values use the defaults.
func NewPromptBuilder(size int, ttl time.Duration) *PromptBuilder {
	if size <= 0 {
		size = defaultPromptCacheSize
	}
	if ttl <= 0 {
		ttl = defaultPromptCacheTTL
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, promptEntry](size)
	return &PromptBuilder{cache: cache, ttl: ttl, now: time.Now}
}

// Build returns the job prompt. Context beyond MaxContextChars is dropped.
func (b *PromptBuilder) Build(goal, context string) string {
	key := promptKey(goal, context)
	if e, ok := b.cache.Get(key); ok && b.now().Sub(e.storedAt) < b.ttl {
		return e.prompt
	}

	p := render(goal, context)
	b.cache.Add(key, promptEntry{prompt: p, storedAt: b.now()})
	return p
}

// Len returns the number of cached prompts.
func (b *PromptBuilder) Len() int {
	return b.cache.Len()
}

// RetryPrompt clips prompt to RetryPromptChars characters.
func RetryPrompt(prompt string) string {
	return util.ClipChars(prompt, RetryPromptChars)
}

func render(goal, context string) string {
	return fmt.Sprintf(promptTemplate, goal, util.ClipChars(context, MaxContextChars))
}

func promptKey(goal, context string) string {
	h := sha256.New()
	h.Write([]byte(TemplateVersion))
	h.Write([]byte{0})
	h.Write([]byte(goal))
	h.Write([]byte{0})
	h.Write([]byte(context))
	return hex.EncodeToString(h.Sum(nil))
}

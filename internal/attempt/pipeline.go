// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attempt

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/consensus"
	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/oracle"
	"github.com/jeranaias/rigrun-router/internal/schema"
)

// ============================================================================
// PIPELINE
// ============================================================================

// Pipeline runs jobs through sample, vote, validate and the single retry.
type Pipeline struct {
	gen     llm.Generator
	policy  Policy
	gate    *schema.Gate
	prompts *PromptBuilder
	table   RoutingTable

	receipts  ReceiptSink
	exemplars ExemplarSink
	observer  Observer

	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSchemaGate shares a schema gate (and its compiled-schema cache).
func WithSchemaGate(g *schema.Gate) Option {
	return func(p *Pipeline) { p.gate = g }
}

// WithPromptBuilder shares a prompt builder.
func WithPromptBuilder(b *PromptBuilder) Option {
	return func(p *Pipeline) { p.prompts = b }
}

// WithRoutingTable sets the table consulted when suggesting escalation.
func WithRoutingTable(t RoutingTable) Option {
	return func(p *Pipeline) { p.table = t }
}

// WithReceiptSink sets where receipts are written.
func WithReceiptSink(s ReceiptSink) Option {
	return func(p *Pipeline) { p.receipts = s }
}

// WithExemplarSink sets where retry exemplars are written.
func WithExemplarSink(s ExemplarSink) Option {
	return func(p *Pipeline) { p.exemplars = s }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline builds a pipeline over gen. Policy fields left at zero take
// their DefaultPolicy values.
func NewPipeline(gen llm.Generator, policy Policy, opts ...Option) *Pipeline {
	def := DefaultPolicy()
	if policy.KSamples < 1 {
		policy.KSamples = def.KSamples
	}
	if policy.Threshold <= 0 || policy.Threshold > 1 {
		policy.Threshold = def.Threshold
	}
	if policy.Model == "" {
		policy.Model = def.Model
	}

	p := &Pipeline{
		gen:    gen,
		policy: policy,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.gate == nil {
		p.gate = schema.NewGate()
	}
	if p.prompts == nil {
		p.prompts = NewPromptBuilder(0, 0)
	}
	if p.table == nil {
		p.table = oracle.Default(p.now())
	}
	p.logger = p.logger.Named("attempt")
	return p
}

// Policy returns the effective policy.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Report is a finished job with its receipt.
type Report struct {
	Outcome Outcome
	Receipt Receipt
	Elapsed time.Duration
}

// Run executes job and returns its outcome.
func (p *Pipeline) Run(ctx context.Context, job Job) (Outcome, error) {
	r, err := p.RunReport(ctx, job)
	if err != nil {
		return nil, err
	}
	return r.Outcome, nil
}

// RunReport executes job and returns the outcome together with the receipt
// that was written for it. A generation failure aborts the job with no
// outcome and no receipt.
func (p *Pipeline) RunReport(ctx context.Context, job Job) (Report, error) {
	start := p.now()
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("project", job.Project))

	prompt := p.prompts.Build(job.Goal, job.Context)

	first, _, err := p.round(ctx, prompt)
	if err != nil {
		log.Warn("sampling failed", zap.Int("round", 1), zap.Error(err))
		return Report{}, err
	}
	rounds := []consensus.VoteResult{first}
	reasons := p.validate(first, job.Schema)

	if len(reasons) == 0 {
		out := Accepted{Output: first.Winner, Tier: TierLocal}
		return p.finish(ctx, job, out, start, reasons, rounds), nil
	}

	log.Debug("first round rejected, retrying",
		zap.Strings("validation_errors", reasons),
		zap.Float64("agreement", first.Agreement))

	second, samples, err := p.round(ctx, RetryPrompt(prompt))
	if err != nil {
		log.Warn("sampling failed", zap.Int("round", 2), zap.Error(err))
		return Report{}, err
	}
	rounds = append(rounds, second)

	if len(p.validate(second, job.Schema)) == 0 {
		out := RetryAccepted{Output: second.Winner, Agreement: second.Agreement}
		p.saveExemplar(ctx, job, out, log)
		return p.finish(ctx, job, out, start, reasons, rounds), nil
	}

	output := second.Winner
	if output == "" {
		output = samples[0]
	}

	var out Outcome
	if job.BudgetCents > 0 && job.AllowRemote {
		target := TargetNeedPaid
		if m, ok := p.table.Snapshot().FirstFreePrivate(); ok {
			target = TargetTryFreePrefix + m.ID
		}
		out = EscalationSuggested{Output: output, Target: target, Reasons: reasons}
	} else {
		out = LocalLimitReached{Output: output, Reasons: reasons}
	}
	return p.finish(ctx, job, out, start, reasons, rounds), nil
}

// round draws k sequential samples for prompt and votes on them.
func (p *Pipeline) round(ctx context.Context, prompt string) (consensus.VoteResult, []string, error) {
	k := p.policy.KSamples
	samples := make([]string, 0, k)
	for i := 0; i < k; i++ {
		text, err := p.gen.Generate(ctx, p.policy.Model, prompt, p.policy.Temperature)
		if err != nil {
			return consensus.VoteResult{}, nil, fmt.Errorf("attempt: sample %d/%d from %s: %w", i+1, k, p.policy.Model, err)
		}
		samples = append(samples, text)
	}

	vote, err := consensus.Vote(samples)
	if err != nil {
		return consensus.VoteResult{}, nil, err
	}
	return vote, samples, nil
}

// validate returns the validation error codes for a vote, schema first.
func (p *Pipeline) validate(vote consensus.VoteResult, schemaDoc []byte) []string {
	var reasons []string
	if len(schemaDoc) > 0 && !p.gate.Validate(vote.Winner, schemaDoc) {
		reasons = append(reasons, CodeSchemaInvalid)
	}
	if !vote.Meets(p.policy.Threshold) {
		reasons = append(reasons, CodeLowConsensus)
	}
	return reasons
}

func (p *Pipeline) saveExemplar(ctx context.Context, job Job, out RetryAccepted, log *zap.Logger) {
	if p.exemplars == nil {
		return
	}
	err := p.exemplars.SaveExemplar(ctx, Exemplar{
		JobID:              job.ID,
		Project:            job.Project,
		Goal:               job.Goal,
		Context:            job.Context,
		Output:             out.Output,
		SchemaPath:         job.SchemaPath,
		Quality:            out.Agreement,
		ConsensusAgreement: out.Agreement,
	})
	if err != nil {
		log.Warn("failed to save exemplar", zap.Error(err))
	}
}

// finish writes the receipt, notifies the observer and builds the report.
func (p *Pipeline) finish(ctx context.Context, job Job, out Outcome, start time.Time, reasons []string, rounds []consensus.VoteResult) Report {
	elapsed := p.now().Sub(start)

	tier, modelPath := TierLocal, p.policy.Model
	if e, ok := out.(EscalationSuggested); ok {
		tier, modelPath = TierEscalation, e.Target
	}
	if reasons == nil {
		reasons = []string{}
	}

	rec := Receipt{
		Timestamp:        start,
		Project:          job.Project,
		JobID:            job.ID,
		CostCents:        0,
		LatencySeconds:   math.Round(elapsed.Seconds()*100) / 100,
		Tier:             tier,
		ModelPath:        modelPath,
		Why:              out.Reason(),
		TemplateVersion:  TemplateVersion,
		ValidationErrors: reasons,
		Rounds:           rounds,
	}

	log := p.logger.With(zap.String("job_id", job.ID), zap.String("project", job.Project))
	if p.receipts != nil {
		if err := p.receipts.SaveReceipt(ctx, rec); err != nil {
			log.Warn("failed to save receipt", zap.Error(err))
		}
	}
	if p.observer != nil {
		p.observer.ObserveOutcome(ctx, job, out, elapsed)
	}

	log.Info("job finished",
		zap.String("why", rec.Why),
		zap.String("tier", rec.Tier),
		zap.String("model_path", rec.ModelPath),
		zap.Float64("latency_s", rec.LatencySeconds),
		zap.Error(Err(out)))

	return Report{Outcome: out, Receipt: rec, Elapsed: elapsed}
}

// Package pipeline sequences one blueprint document through the load
// calculation stages: page classification, concurrent multi-strategy
// extraction, reconciliation into a single building model, and the
// component load calculation. A run is synchronous, side-effect free and
// deterministic for identical input bytes and external responses;
// persistence and scheduling live with the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"loadplan/internal/classify"
	"loadplan/internal/config"
	"loadplan/internal/domain"
	"loadplan/internal/extract"
	"loadplan/internal/loadcalc"
	"loadplan/internal/pdf"
	"loadplan/internal/port"
	"loadplan/internal/reconcile"
	"loadplan/internal/scale"
	"loadplan/internal/validate"
)

// maxConcurrentExtractions bounds the page-by-source fan-out. Vision
// calls dominate latency and carry rate limits; a small pool keeps the
// providers comfortable without serializing the cheap local strategies.
const maxConcurrentExtractions = 4

// WarningVisionRateLimited is recorded when the vision provider refused
// a page for quota and the run proceeded without it. The job queue keys
// its retry decision off this code.
const WarningVisionRateLimited = "vision_rate_limited"

// DigestFunc turns raw document bytes into per-page digests.
type DigestFunc func(data []byte) ([]domain.PageDigest, error)

// Orchestrator runs the pipeline over one document at a time. It holds
// no per-run state, so a single Orchestrator may process many documents
// concurrently.
type Orchestrator struct {
	cfg        config.PipelineConfig
	digest     DigestFunc
	classifier *classify.Classifier
	scales     *scale.Resolver
	strategies []extract.Strategy
	reconciler *reconcile.Engine
	checker    *validate.Checker
	calculator *loadcalc.Engine
	climate    port.ClimateSource
}

// New wires an Orchestrator over the real PDF digester. The vision
// provider may be nil when none is configured; runs then proceed on the
// geometry and text paths alone.
func New(cfg config.PipelineConfig, vision port.VisionProvider, ocrEngine port.OCREngine, climateSource port.ClimateSource, factors loadcalc.Factors) *Orchestrator {
	return NewWithDigester(cfg, pdf.Digest, vision, ocrEngine, climateSource, factors)
}

// NewWithDigester is New with the page digester swappable (for testing).
func NewWithDigester(cfg config.PipelineConfig, digest DigestFunc, vision port.VisionProvider, ocrEngine port.OCREngine, climateSource port.ClimateSource, factors loadcalc.Factors) *Orchestrator {
	strategies := []extract.Strategy{
		extract.NewGeometryExtractor(),
		extract.NewTextExtractor(ocrEngine),
	}
	if vision != nil {
		strategies = append(strategies, extract.NewVisionExtractor(vision))
	}
	return &Orchestrator{
		cfg:        cfg,
		digest:     digest,
		classifier: classify.New(),
		scales:     scale.NewResolver(cfg.DefaultFeetPerInch),
		strategies: strategies,
		reconciler: reconcile.NewEngine(),
		checker:    validate.NewChecker(),
		calculator: loadcalc.NewEngine(factors),
		climate:    climateSource,
	}
}

// Process runs the full pipeline on a document and returns the system
// load calculation, or a StageError naming the stage that failed.
func (o *Orchestrator) Process(ctx context.Context, documentBytes []byte, locationID string, opts Options) (*domain.SystemLoadCalculation, error) {
	started := time.Now()

	pc := PipelineContext{Stage: domain.StageClassifying}
	report(opts, domain.StageClassifying)
	pc, err := o.classifyStage(ctx, pc, documentBytes, opts)
	if err != nil {
		return nil, o.failed(opts, domain.StageClassifying, err)
	}

	pc = pc.withStage(domain.StageExtracting)
	report(opts, domain.StageExtracting)
	pc, err = o.extractStage(ctx, pc, documentBytes)
	if err != nil {
		return nil, o.failed(opts, domain.StageExtracting, err)
	}

	pc = pc.withStage(domain.StageReconciling)
	report(opts, domain.StageReconciling)
	pc, err = o.reconcileStage(pc)
	if err != nil {
		return nil, o.failed(opts, domain.StageReconciling, err)
	}

	pc = pc.withStage(domain.StageCalculating)
	report(opts, domain.StageCalculating)
	pc, err = o.calculateStage(ctx, pc, locationID)
	if err != nil {
		return nil, o.failed(opts, domain.StageCalculating, err)
	}

	pc = pc.withStage(domain.StageDone)
	report(opts, domain.StageDone)
	log.Printf("pipeline.Orchestrator: processed document in %s: %d page(s), %d candidate(s), %d warning(s)",
		time.Since(started).Round(time.Millisecond), len(pc.Pages), len(pc.Candidates), len(pc.Result.Warnings))
	return pc.Result, nil
}

func (o *Orchestrator) failed(opts Options, stage domain.PipelineStage, err error) error {
	report(opts, domain.StageFailed)
	return domain.NewStageError(stage, err)
}

func report(opts Options, stage domain.PipelineStage) {
	if opts.Progress != nil {
		opts.Progress(stage)
	}
}

// classifyStage digests the document, labels every page, selects the
// floor plan pages and resolves their drawing scales.
func (o *Orchestrator) classifyStage(ctx context.Context, pc PipelineContext, documentBytes []byte, opts Options) (PipelineContext, error) {
	if err := ctx.Err(); err != nil {
		return pc, err
	}

	digests, err := o.digest(documentBytes)
	if err != nil {
		return pc, fmt.Errorf("digesting document: %w", err)
	}
	if max := o.cfg.MaxPages; max > 0 && len(digests) > max {
		pc = pc.warn(domain.Warning{
			Code:    "page_budget",
			Field:   "document",
			Message: fmt.Sprintf("document has %d pages; only the first %d were classified", len(digests), max),
		})
		digests = digests[:max]
	}

	pages := o.classifier.ClassifyPages(digests)
	plans := classify.PlanPages(pages)
	if len(plans) == 0 {
		return pc, fmt.Errorf("%d page(s) classified, none a floor plan: %w", len(pages), domain.ErrNoFloorPlanPages)
	}
	log.Printf("pipeline.Orchestrator: classified %d page(s), %d floor plan(s)", len(pages), len(plans))

	scales := make(map[int]domain.Scale, len(plans))
	for _, p := range plans {
		if opts.ForcedScale != nil {
			forced := *opts.ForcedScale
			forced.Method = domain.ScaleMethodOverride
			if forced.Confidence == 0 {
				forced.Confidence = 1.0
			}
			scales[p.PageIndex] = forced
			continue
		}
		s, err := o.scales.Resolve(&p)
		if err != nil {
			// The geometric path needs a scale; text and vision read
			// printed dimensions and carry on.
			pc = pc.warn(domain.Warning{
				Code:    "scale_unresolved",
				Field:   fmt.Sprintf("pages[%d]", p.PageIndex),
				Message: fmt.Sprintf("no drawing scale found on page %d; geometric measurement skipped", p.PageIndex+1),
			})
			continue
		}
		if s.Conflicted {
			pc = pc.warn(domain.Warning{
				Code:    "scale_conflict",
				Field:   fmt.Sprintf("pages[%d]", p.PageIndex),
				Message: fmt.Sprintf("printed scale notation on page %d disagrees with its dimension annotations; the measured scale was used", p.PageIndex+1),
			})
		}
		if s.Method == domain.ScaleMethodPageSize {
			pc = pc.warn(domain.Warning{
				Code:    "scale_assumed",
				Field:   fmt.Sprintf("pages[%d]", p.PageIndex),
				Message: fmt.Sprintf("no scale evidence on page %d; the configured default of %.3g ft per inch was assumed", p.PageIndex+1, o.cfg.DefaultFeetPerInch),
			})
		}
		scales[p.PageIndex] = s
	}

	pc.Pages = pages
	pc.Plans = plans
	pc.Scales = scales
	return pc, nil
}

type extractTask struct {
	strategy extract.Strategy
	input    extract.Input
}

// extractStage fans the strategies out over the floor plan pages. Task
// failures never fail the stage; they become absent candidates, with a
// warning where the caller should know. Only cancellation aborts the
// run.
func (o *Orchestrator) extractStage(ctx context.Context, pc PipelineContext, documentBytes []byte) (PipelineContext, error) {
	timeout := time.Duration(o.cfg.PageTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	visionBudget := o.cfg.MaxVisionPages
	if visionBudget <= 0 {
		visionBudget = len(pc.Plans)
	}

	var tasks []extractTask
	visionPages := 0
	for i := range pc.Plans {
		page := &pc.Plans[i]
		in := extract.Input{
			Digest:     page,
			Scale:      pc.Scales[page.PageIndex],
			PDF:        documentBytes,
			FloorIndex: page.FloorIndex,
		}
		for _, strat := range o.strategies {
			if strat.Name() == domain.SourceVision {
				if visionPages >= visionBudget {
					continue
				}
				visionPages++
			}
			tasks = append(tasks, extractTask{strategy: strat, input: in})
		}
	}
	if visionPages < len(pc.Plans) && visionPages == visionBudget {
		pc = pc.warn(domain.Warning{
			Code:    "vision_budget",
			Field:   "pages",
			Message: fmt.Sprintf("vision extraction capped at %d of %d floor plan page(s)", visionBudget, len(pc.Plans)),
		})
	}

	results := make([]*domain.Candidate, len(tasks))
	taskErrs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(len(tasks)))
	for i := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			taskCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			cand, err := tasks[i].strategy.Extract(taskCtx, tasks[i].input)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				taskErrs[i] = err
				return nil
			}
			results[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pc, fmt.Errorf("extraction cancelled: %w", err)
	}

	// Join in task order so candidate order never depends on goroutine
	// scheduling.
	var candidates []domain.Candidate
	covered := make(map[int]bool)
	for i, cand := range results {
		if cand != nil {
			candidates = append(candidates, *cand)
			covered[cand.PageIndex] = true
			continue
		}
		pc = o.noteTaskFailure(pc, tasks[i], taskErrs[i], timeout)
	}
	for i := range pc.Plans {
		if !covered[pc.Plans[i].PageIndex] {
			pc = pc.warn(domain.Warning{
				Code:    "page_unreadable",
				Field:   fmt.Sprintf("pages[%d]", pc.Plans[i].PageIndex),
				Message: fmt.Sprintf("no extraction path produced a candidate for floor plan page %d", pc.Plans[i].PageIndex+1),
			})
		}
	}
	log.Printf("pipeline.Orchestrator: %d of %d extraction task(s) produced candidates", len(candidates), len(tasks))

	pc.Candidates = candidates
	return pc, nil
}

func (o *Orchestrator) noteTaskFailure(pc PipelineContext, t extractTask, err error, timeout time.Duration) PipelineContext {
	source := t.strategy.Name()
	page := t.input.Digest.PageIndex
	var rlErr *extract.RateLimitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg := fmt.Sprintf("%s extraction on page %d exceeded %s; continuing without it", source, page+1, timeout)
		if source == domain.SourceVision {
			msg = fmt.Sprintf("vision extraction on page %d exceeded %s; result leans on geometry and text", page+1, timeout)
		}
		return pc.warn(domain.Warning{Code: "extractor_timeout", Field: string(source), Message: msg})
	case errors.As(err, &rlErr):
		return pc.warn(domain.Warning{
			Code:    WarningVisionRateLimited,
			Field:   string(source),
			Message: fmt.Sprintf("%s is rate limited; page %d proceeded without vision", rlErr.Provider, page+1),
		})
	case source == domain.SourceVision:
		return pc.warn(domain.Warning{
			Code:    "vision_unavailable",
			Field:   string(source),
			Message: fmt.Sprintf("vision produced no candidate for page %d: %v", page+1, err),
		})
	default:
		// Geometry and text decline sparse pages routinely; that is not
		// worth a caller-facing warning.
		log.Printf("pipeline.Orchestrator: %s extraction declined page %d: %v", source, page, err)
		return pc
	}
}

// reconcileStage merges the candidates into one building model and runs
// the plausibility rules over it.
func (o *Orchestrator) reconcileStage(pc PipelineContext) (PipelineContext, error) {
	model, warnings, err := o.reconciler.Reconcile(pc.Candidates)
	if err != nil {
		return pc, err
	}
	pc.Model = model
	pc.Warnings = append(pc.Warnings, warnings...)
	pc.Warnings = append(pc.Warnings, o.checker.Check(model)...)
	return pc, nil
}

// calculateStage fetches design conditions and runs the load engine.
// Failures here are fatal and surfaced verbatim; the pipeline never
// substitutes fallback climate data.
func (o *Orchestrator) calculateStage(ctx context.Context, pc PipelineContext, locationID string) (PipelineContext, error) {
	design, err := o.climate.DesignConditions(ctx, locationID)
	if err != nil {
		return pc, fmt.Errorf("fetching design conditions for %q: %w", locationID, err)
	}

	result, err := o.calculator.Calculate(pc.Model, *design)
	if err != nil {
		return pc, err
	}

	if len(pc.Warnings) > 0 {
		merged := make([]domain.Warning, 0, len(pc.Warnings)+len(result.Warnings))
		merged = append(merged, pc.Warnings...)
		merged = append(merged, result.Warnings...)
		result.Warnings = merged
	}
	pc.Result = result
	return pc, nil
}

func workerCount(tasks int) int {
	if tasks < maxConcurrentExtractions {
		return tasks
	}
	return maxConcurrentExtractions
}

package pipeline

import (
	"loadplan/internal/domain"
)

// ProgressFunc receives stage transitions as a side channel. It must not
// block; the run does not wait for it.
type ProgressFunc func(stage domain.PipelineStage)

// Options are per-run operator controls.
type Options struct {
	// ForcedScale overrides scale resolution on every page.
	ForcedScale *domain.Scale

	// Progress, when set, is called as the run enters each stage and once
	// more with StageFailed when the run aborts.
	Progress ProgressFunc
}

// PipelineContext carries one document run's accumulated state between
// stages. It is never shared: every stage receives a copy and returns an
// updated copy, so cancelling or failing a run leaves nothing half-written.
type PipelineContext struct {
	Stage      domain.PipelineStage
	Pages      []domain.PageDigest // all classified pages
	Plans      []domain.PageDigest // floor plan pages in floor order
	Scales     map[int]domain.Scale
	Candidates []domain.Candidate
	Model      *domain.BuildingModel
	Warnings   []domain.Warning
	Result     *domain.SystemLoadCalculation
}

func (pc PipelineContext) withStage(stage domain.PipelineStage) PipelineContext {
	pc.Stage = stage
	return pc
}

func (pc PipelineContext) warn(w domain.Warning) PipelineContext {
	pc.Warnings = append(pc.Warnings, w)
	return pc
}

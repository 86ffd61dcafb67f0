package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

type settledOutcome struct {
	index   int
	outcome domain.ToolCallOutcome
}

// selectCandidates takes the top budget.MaxTools candidates and drops those at
// or below the priority floor.
func selectCandidates(candidates []domain.ToolCandidate, maxTools int) []domain.ToolCandidate {
	if maxTools < 0 {
		maxTools = 0
	}
	if len(candidates) > maxTools {
		candidates = candidates[:maxTools]
	}
	out := make([]domain.ToolCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.FinalPriority > domain.CandidateFloor {
			out = append(out, candidate)
		}
	}
	return out
}

func buildRequests(analysis domain.SceneAnalysis, actx domain.AnalysisContext, candidates []domain.ToolCandidate, started time.Time) []domain.ToolCallRequest {
	requests := make([]domain.ToolCallRequest, 0, len(candidates))
	for _, candidate := range candidates {
		requests = append(requests, domain.ToolCallRequest{
			ToolName:     candidate.Name,
			FunctionName: selectFunction(candidate.Name, analysis.DetectedScenes),
			Args:         buildArguments(candidate.Name, actx),
			StartTime:    started,
		})
	}
	return requests
}

// Dispatch calls the selected tools concurrently under one global deadline and
// aggregates the successful outcomes. It returns nil when no candidate
// qualifies. Calls still pending at the deadline are abandoned and their late
// outcomes discarded.
func (e *Engine) Dispatch(ctx context.Context, analysis domain.SceneAnalysis, actx domain.AnalysisContext, budget domain.Budget) *domain.EnhancementPayload {
	candidates := selectCandidates(analysis.RecommendedTools, budget.MaxTools)
	if len(candidates) == 0 {
		return nil
	}

	ctx, roundID := telemetry.WithRoundID(ctx)
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.round", trace.WithAttributes(
		attribute.String("round.id", roundID),
		attribute.Int("round.tools", len(candidates)),
	))
	defer span.End()
	logger := telemetry.LoggerWithRequest(ctx, e.logger)

	timeout := budget.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultOrchestrationTimeout
	}
	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := e.now()
	requests := buildRequests(analysis, actx, candidates, started)

	// Buffered so calls finishing after the deadline never block.
	results := make(chan settledOutcome, len(requests))
	for i, req := range requests {
		go func(index int, req domain.ToolCallRequest) {
			results <- settledOutcome{index: index, outcome: e.invoke(batchCtx, req)}
		}(i, req)
	}

	slots := make([]domain.ToolCallOutcome, len(requests))
	settled := make([]bool, len(requests))
	pending := len(requests)
	timedOut := false
collect:
	for pending > 0 {
		select {
		case res := <-results:
			slots[res.index] = res.outcome
			settled[res.index] = true
			pending--
		case <-batchCtx.Done():
			timedOut = true
			break collect
		}
	}

	var succeeded, failed, cacheHits int
	toolResults := make([]domain.ToolCallOutcome, 0, len(requests))
	for i, req := range requests {
		if !settled[i] {
			failed++
			e.metrics.ObserveToolCall(domain.ToolCallMetric{
				Tool:     req.ToolName,
				Function: req.FunctionName,
				Status:   domain.CallStatusAbandoned,
			})
			continue
		}
		outcome := slots[i]
		if !outcome.Success {
			failed++
			continue
		}
		succeeded++
		if outcome.Cached {
			cacheHits++
		}
		toolResults = append(toolResults, outcome)
	}
	e.stats.batch(succeeded, failed, cacheHits)

	payload := &domain.EnhancementPayload{
		RoundID:       roundID,
		Timestamp:     e.now(),
		SceneAnalysis: analysis,
		ToolResults:   toolResults,
		Summary:       buildSummary(toolResults, e.location),
	}

	duration := e.now().Sub(started)
	outcome := domain.RoundEnhanced
	switch {
	case succeeded == 0:
		outcome = domain.RoundEmpty
	case failed > 0:
		outcome = domain.RoundPartial
	}
	e.metrics.ObserveRound(domain.RoundMetric{
		Outcome:   outcome,
		Scheduled: len(requests),
		Succeeded: succeeded,
		Duration:  duration,
	})
	span.SetAttributes(attribute.Int("round.succeeded", succeeded), attribute.Bool("round.timed_out", timedOut))

	if timedOut {
		logger.Warn("round deadline reached",
			telemetry.EventField(telemetry.EventRoundTimeout),
			telemetry.DurationField(duration),
			zap.Int("abandoned", pending),
		)
	}
	fields := []zap.Field{
		telemetry.EventField(telemetry.EventRoundComplete),
		telemetry.DurationField(duration),
		zap.Int("scheduled", len(requests)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	}
	if e.Settings().DebugMode {
		fields = append(fields, zap.Any("payload", payload))
		logger.Info("round complete", fields...)
	} else {
		logger.Debug("round complete", fields...)
	}

	e.publish(payload)
	return payload
}

func (e *Engine) invoke(ctx context.Context, req domain.ToolCallRequest) domain.ToolCallOutcome {
	outcome := domain.ToolCallOutcome{ToolName: req.ToolName, FunctionName: req.FunctionName}
	result, err := e.registry.CallTool(ctx, req.ToolName, req.FunctionName, req.Args)
	outcome.ExecutionTimeMs = e.now().Sub(req.StartTime).Milliseconds()
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Success = true
	outcome.Result = result.Value
	outcome.Cached = result.Cached
	return outcome
}

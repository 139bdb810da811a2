// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor walks a plan in topological order, invoking tools and
// streaming progress events.
//
// One plan runs per call; nodes are scheduled sequentially so the event
// stream is linear and every node observes the complete set of upstream
// outputs. Cancellation is cooperative: the executor checks ctx between
// nodes and after every suspension point.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/relay/services/orchestrator/adapter"
	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
	"github.com/AleutianAI/relay/services/orchestrator/registry"
	"github.com/AleutianAI/relay/services/orchestrator/resolver"
	"github.com/AleutianAI/relay/services/orchestrator/telemetry"
)

// ToolSource is the registry surface the executor needs.
type ToolSource interface {
	// Resolve returns a callable record or ErrUnknownTool / ErrLoad.
	Resolve(name string) (*datatypes.ToolRecord, error)

	// Synthesize emits, registers, and persists a missing tool. An
	// ErrSave-wrapped error alongside a non-nil record means the catalog
	// write failed but the in-memory registration stands.
	Synthesize(ctx context.Context, name string, observed datatypes.ParameterSchema) (*datatypes.ToolRecord, error)

	// Names lists visible tool names, passed to the parser as a hint.
	Names() []string
}

// Parser converts an utterance into a plan. Implementations live outside
// the core; parser errors surface as systemError events.
type Parser interface {
	Parse(ctx context.Context, userText string, toolNames []string) (*datatypes.Plan, error)
}

// Responder produces the reply for chat-only inputs.
type Responder interface {
	Reply(ctx context.Context, userText string) (string, error)
}

// Emitter receives execution events. Emit must flush the event to the
// transport before returning; the executor does not proceed past an
// unflushed event.
type Emitter interface {
	Emit(ev datatypes.ExecutionEvent)
}

// NopEmitter discards events. Used by the synchronous entry point.
type NopEmitter struct{}

func (NopEmitter) Emit(datatypes.ExecutionEvent) {}

// Options configures an Executor.
type Options struct {
	Registry  ToolSource
	Parser    Parser
	Responder Responder

	// NodeTimeout bounds one tool invocation. Zero means unbounded.
	NodeTimeout time.Duration

	// MaxSynthDepth caps consecutive synthesis attempts within one plan.
	// Zero means 5.
	MaxSynthDepth int
}

// Executor runs plans. Construct with New; the zero value is not usable.
//
// Thread Safety: safe for concurrent use. All per-plan state lives in
// the run struct owned by a single Execute call.
type Executor struct {
	registry      ToolSource
	parser        Parser
	responder     Responder
	nodeTimeout   time.Duration
	maxSynthDepth int
}

// New builds an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Registry == nil {
		return nil, errors.New("executor: Registry is required")
	}
	depth := opts.MaxSynthDepth
	if depth <= 0 {
		depth = 5
	}
	return &Executor{
		registry:      opts.Registry,
		parser:        opts.Parser,
		responder:     opts.Responder,
		nodeTimeout:   opts.NodeTimeout,
		maxSynthDepth: depth,
	}, nil
}

// Input is one execution request: either a parsed plan or raw user text
// the executor forwards to the parser collaborator.
type Input struct {
	Plan     *datatypes.Plan
	UserText string

	// Context is an opaque caller mapping (parser hints, locale). The
	// executor passes it through untouched.
	Context map[string]any
}

// run is the per-plan mutable state.
type run struct {
	plan       *datatypes.Plan
	emitter    Emitter
	outputs    map[string]datatypes.NodeOutput
	result     *datatypes.Result
	synthCount int
	started    time.Time
}

func (r *run) log(nodeID, action, detail string) {
	r.result.DetailedLogs = append(r.result.DetailedLogs, datatypes.LogEntry{
		Time:   time.Now().UTC(),
		NodeID: nodeID,
		Action: action,
		Detail: detail,
	})
}

func (r *run) emit(phase datatypes.Phase, nodeID, toolName string, status datatypes.Status, message string, data map[string]any) {
	r.emitter.Emit(datatypes.ExecutionEvent{
		Phase:     phase,
		NodeID:    nodeID,
		ToolName:  toolName,
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// Execute runs one plan (or parses one utterance and runs the result),
// emitting events to emitter as it goes.
//
// Outputs:
//
//	*datatypes.Result - Always non-nil: the aggregate outcome, including
//	                    per-fatal-condition error strings and the
//	                    detailed action log.
//	error             - The first fatal condition, nil on success. The
//	                    same condition is always also reflected in
//	                    Result.Errors, so callers may ignore either.
func (e *Executor) Execute(ctx context.Context, input Input, emitter Emitter) (*datatypes.Result, error) {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.execute")
	defer span.End()

	r := &run{
		emitter: emitter,
		outputs: map[string]datatypes.NodeOutput{},
		result:  &datatypes.Result{NodeResults: []datatypes.NodeOutput{}},
		started: time.Now(),
	}
	defer func() {
		r.result.ExecutionTime = time.Since(r.started)
		telemetry.PlanDuration.Observe(r.result.ExecutionTime.Seconds())
	}()

	plan := input.Plan
	if plan == nil {
		parsed, err := e.parse(ctx, r, input)
		if err != nil {
			return r.result, err
		}
		plan = parsed
	}
	r.plan = plan
	span.SetAttributes(
		attribute.String("plan.id", plan.PlanID),
		attribute.Int("plan.components", len(plan.Components)),
		attribute.Bool("plan.chat_only", plan.ChatOnly),
	)

	if plan.ChatOnly {
		return e.chatReply(ctx, r, plan.UserText)
	}
	return e.executePlan(ctx, r, plan)
}

// parse forwards raw user text to the parser collaborator.
func (e *Executor) parse(ctx context.Context, r *run, input Input) (*datatypes.Plan, error) {
	if e.parser == nil {
		err := fmt.Errorf("%w: no plan given and no parser configured", datatypes.ErrMalformedPlan)
		e.systemError(r, err, "MalformedPlan")
		return nil, err
	}
	r.log("", "parse", "forwarding utterance to parser")
	plan, err := e.parser.Parse(ctx, input.UserText, e.registry.Names())
	if err != nil {
		err = fmt.Errorf("parser: %w", err)
		e.systemError(r, err, "ParserError")
		return nil, err
	}
	return plan, nil
}

// chatReply is the conversational short-circuit: no components run, a
// single chatReply event carries the answer, and a Result with empty
// NodeResults signals chat mode to callers.
func (e *Executor) chatReply(ctx context.Context, r *run, userText string) (*datatypes.Result, error) {
	r.log("", "chat", "chat-only input, delegating to responder")

	var reply string
	if e.responder != nil {
		got, err := e.responder.Reply(ctx, userText)
		if err == nil && got != "" {
			reply = got
		} else if err != nil {
			slog.Warn("responder failed, using fallback reply",
				slog.String("error", err.Error()),
			)
		}
	}
	if reply == "" {
		reply = fallbackReply(userText)
	}

	r.emit(datatypes.PhaseChatReply, "", "", datatypes.StatusSuccess, reply, nil)
	telemetry.PlansTotal.WithLabelValues("chat").Inc()

	r.result.Success = true
	r.result.FinalOutput = reply
	return r.result, nil
}

// systemError emits the single systemError event for a plan-phase fatal
// condition. No pipelineEnd follows: nothing started.
func (e *Executor) systemError(r *run, err error, kind string) {
	r.result.Success = false
	r.result.Errors = append(r.result.Errors, err.Error())
	r.log("", "systemError", err.Error())
	r.emit(datatypes.PhaseSystemError, "", "", datatypes.StatusError,
		"**Execution failed** — "+err.Error(),
		map[string]any{"kind": kind},
	)
	telemetry.PlansTotal.WithLabelValues("error").Inc()
}

// executePlan validates, orders, and walks the plan.
func (e *Executor) executePlan(ctx context.Context, r *run, plan *datatypes.Plan) (*datatypes.Result, error) {
	if len(plan.Components) == 0 {
		err := fmt.Errorf("%w: plan %q has no components", datatypes.ErrEmptyPlan, plan.PlanID)
		r.result.Errors = append(r.result.Errors, err.Error())
		r.log("", "validate", err.Error())
		r.emit(datatypes.PhasePipelineEnd, "", "", datatypes.StatusError,
			"**Execution failed** — plan is empty",
			map[string]any{"success": false, "error": "EmptyPlan"},
		)
		telemetry.PlansTotal.WithLabelValues("error").Inc()
		return r.result, err
	}

	order, err := resolver.BuildExecutionOrder(plan.Components)
	if err != nil {
		e.systemError(r, err, planErrorKind(err))
		return r.result, err
	}
	if err := resolver.Validate(plan.Components, order); err != nil {
		e.systemError(r, err, planErrorKind(err))
		return r.result, err
	}
	r.log("", "order", fmt.Sprintf("execution order: %v", order))

	components := make(map[string]*datatypes.Component, len(plan.Components))
	for i := range plan.Components {
		components[plan.Components[i].ID] = &plan.Components[i]
	}

	r.emit(datatypes.PhasePipelineStart, "", "", datatypes.StatusProgress,
		fmt.Sprintf("executing plan %s: %d nodes", plan.PlanID, len(order)),
		map[string]any{"plan_id": plan.PlanID, "node_count": len(order), "order": order},
	)

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return e.cancelled(r, err)
		}
		comp := components[id]
		if nodeErr := e.runNode(ctx, r, comp); nodeErr != nil {
			if errors.Is(nodeErr, context.Canceled) {
				return e.cancelled(r, nodeErr)
			}
			// I4: stop scheduling further nodes on the first error.
			r.result.Success = false
			r.result.Errors = append(r.result.Errors, nodeErr.Error())
			r.emit(datatypes.PhasePipelineEnd, "", "", datatypes.StatusError,
				"**Execution failed** — "+nodeErr.Error(),
				map[string]any{"success": false, "failed_node": id},
			)
			telemetry.PlansTotal.WithLabelValues("error").Inc()
			return r.result, nodeErr
		}
	}

	lastID := order[len(order)-1]
	last := r.outputs[lastID]
	r.result.FinalOutput = e.extractFinalOutput(r, last)
	r.result.Success = true
	r.emit(datatypes.PhasePipelineEnd, "", "", datatypes.StatusSuccess,
		"plan completed",
		map[string]any{"success": true, "node_count": len(order)},
	)
	telemetry.PlansTotal.WithLabelValues("success").Inc()
	return r.result, nil
}

// cancelled handles cooperative cancellation: partial node-output state
// is discarded and a terminal pipelineEnd reports the reason.
func (e *Executor) cancelled(r *run, err error) (*datatypes.Result, error) {
	r.result.Success = false
	r.result.NodeResults = nil
	r.outputs = map[string]datatypes.NodeOutput{}
	r.result.Errors = append(r.result.Errors, "execution cancelled")
	r.log("", "cancel", err.Error())
	r.emit(datatypes.PhasePipelineEnd, "", "", datatypes.StatusError,
		"execution cancelled",
		map[string]any{"success": false, "reason": "cancelled"},
	)
	telemetry.PlansTotal.WithLabelValues("cancelled").Inc()
	return r.result, err
}

// runNode executes one component: resolve, adapt, look up, invoke,
// record, emit.
func (e *Executor) runNode(ctx context.Context, r *run, comp *datatypes.Component) error {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.node")
	defer span.End()
	span.SetAttributes(
		attribute.String("node.id", comp.ID),
		attribute.String("node.tool", comp.ToolName),
	)

	r.emit(datatypes.PhaseNodeStart, comp.ID, comp.ToolName, datatypes.StatusProgress,
		fmt.Sprintf("running %s", comp.ToolName), nil)
	r.log(comp.ID, "nodeStart", comp.ToolName)

	fail := func(err error) error {
		r.log(comp.ID, "nodeError", err.Error())
		r.emit(datatypes.PhaseNodeError, comp.ID, comp.ToolName, datatypes.StatusError,
			"**Node failed** — "+err.Error(), nil)
		telemetry.NodesTotal.WithLabelValues("error").Inc()
		return err
	}

	resolution, err := resolver.Resolve(comp.Params, r.outputs)
	if err != nil {
		return fail(err)
	}
	r.log(comp.ID, "resolve", fmt.Sprintf("%d whole-value refs, %d warnings",
		len(resolution.WholeRefs), len(resolution.Warnings)))

	rec, err := e.resolveTool(ctx, r, comp, resolution.Params)
	if err != nil {
		return fail(err)
	}
	eventData := map[string]any{}
	if saveWarn := r.takeSaveWarning(comp.ID); saveWarn != "" {
		eventData["save_warning"] = saveWarn
	}

	params, adapterNotes := e.adaptParams(r, comp, rec, resolution)
	for k, v := range adapterNotes {
		eventData[k] = v
	}

	value, err := e.invoke(ctx, rec.Handler, params)
	if err != nil {
		return fail(fmt.Errorf("tool %s: %w", comp.ToolName, err))
	}

	out := datatypes.NodeOutput{
		NodeID:     comp.ID,
		OutputKey:  comp.Output.Key,
		Value:      value,
		Descriptor: comp.Output,
	}
	r.outputs[comp.ID] = out
	r.result.NodeResults = append(r.result.NodeResults, out)

	summary := resultLabel(value)
	eventData["result_summary"] = summary
	r.log(comp.ID, "nodeSuccess", summary)
	r.emit(datatypes.PhaseNodeSuccess, comp.ID, comp.ToolName, datatypes.StatusSuccess, summary, eventData)
	telemetry.NodesTotal.WithLabelValues("success").Inc()
	return nil
}

// saveWarnings transfers non-fatal catalog-save failures from resolveTool
// to the node event.
func (r *run) takeSaveWarning(nodeID string) string {
	for i := len(r.result.DetailedLogs) - 1; i >= 0; i-- {
		entry := r.result.DetailedLogs[i]
		if entry.NodeID == nodeID && entry.Action == "saveWarning" {
			return entry.Detail
		}
	}
	return ""
}

// resolveTool looks the tool up, synthesizing on a miss. Two misses in a
// row are fatal.
func (e *Executor) resolveTool(ctx context.Context, r *run, comp *datatypes.Component, params map[string]any) (*datatypes.ToolRecord, error) {
	rec, err := e.registry.Resolve(comp.ToolName)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, datatypes.ErrUnknownTool) {
		return nil, err
	}

	if r.synthCount >= e.maxSynthDepth {
		return nil, fmt.Errorf("%w: %q (synthesis budget %d exhausted)",
			datatypes.ErrUnknownTool, comp.ToolName, e.maxSynthDepth)
	}
	r.synthCount++
	r.log(comp.ID, "synthesize", comp.ToolName)
	telemetry.SynthesisTotal.Inc()

	observed := registry.InferSchema(params)
	rec, synthErr := e.registry.Synthesize(ctx, comp.ToolName, observed)
	if synthErr != nil && errors.Is(synthErr, datatypes.ErrSave) && rec != nil {
		// Non-fatal: in-memory registration stands, run proceeds.
		r.log(comp.ID, "saveWarning", synthErr.Error())
		slog.Warn("catalog save failed after synthesis",
			slog.String("tool", comp.ToolName),
			slog.String("error", synthErr.Error()),
		)
	} else if synthErr != nil {
		return nil, fmt.Errorf("%w: %q (synthesis failed: %v)",
			datatypes.ErrUnknownTool, comp.ToolName, synthErr)
	}

	rec, err = e.registry.Resolve(comp.ToolName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (still unresolved after synthesis)",
			datatypes.ErrUnknownTool, comp.ToolName)
	}
	return rec, nil
}

// adaptParams reconciles whole-value upstream references with the tool's
// declared parameter shapes. Only the adapter layer coerces across type
// boundaries; plain resolution never rewrites types.
func (e *Executor) adaptParams(r *run, comp *datatypes.Component, rec *datatypes.ToolRecord, resolution *resolver.Resolution) (map[string]any, map[string]any) {
	notes := map[string]any{}

	var warnings []string
	for _, w := range resolution.Warnings {
		warnings = append(warnings, w.Message)
	}
	if len(warnings) > 0 {
		notes["adapterFallback"] = warnings
		telemetry.AdapterFallbackTotal.Inc()
	}

	params := resolution.Params
	for name, ref := range resolution.WholeRefs {
		targetParam, ok := rec.Schema.Get(name)
		if !ok {
			continue
		}
		spec := adapter.BuildAdapter(ref.ID, comp.ToolName, params[name], adapter.Target{
			Param:  targetParam,
			Schema: rec.Schema,
		})
		if spec == nil {
			continue
		}
		params[name] = adapter.Apply(spec, params[name])
		r.log(comp.ID, "adapt", fmt.Sprintf("param %s from $%s.output", name, ref.ID))
		if spec.Fallback {
			notes["adapterFallback"] = append(toStrings(notes["adapterFallback"]),
				fmt.Sprintf("param %s: no reshape rule applied, passed through", name))
			telemetry.AdapterFallbackTotal.Inc()
		}
	}
	return params, notes
}

func toStrings(v any) []string {
	if s, ok := v.([]string); ok {
		return s
	}
	return nil
}

// invoke calls a handle with the per-node timeout and panic containment.
func (e *Executor) invoke(ctx context.Context, handler datatypes.Handler, params map[string]any) (value any, err error) {
	if e.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: tool handle panicked: %v", datatypes.ErrInternal, rec)
		}
	}()
	return handler(ctx, params)
}

// planErrorKind maps a plan-phase error onto its taxonomy name for event
// data.
func planErrorKind(err error) string {
	switch {
	case errors.Is(err, datatypes.ErrCyclicPlan):
		return "CyclicPlan"
	case errors.Is(err, datatypes.ErrDanglingReference):
		return "DanglingReference"
	default:
		return "MalformedPlan"
	}
}

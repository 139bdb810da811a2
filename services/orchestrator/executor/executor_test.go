// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeRegistry struct {
	mu    sync.Mutex
	tools map[string]*datatypes.ToolRecord

	// synthErr is returned by Synthesize alongside synthRec. When
	// synthRec is non-nil the tool is registered regardless.
	synthErr   error
	synthRec   func(name string, observed datatypes.ParameterSchema) *datatypes.ToolRecord
	synthCalls []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tools: map[string]*datatypes.ToolRecord{}}
}

func (f *fakeRegistry) add(name string, h datatypes.Handler, schema datatypes.ParameterSchema) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[name] = &datatypes.ToolRecord{
		Name:       name,
		Schema:     schema,
		Handler:    h,
		Provenance: datatypes.ProvenanceBuiltIn,
	}
}

func (f *fakeRegistry) Resolve(name string) (*datatypes.ToolRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", datatypes.ErrUnknownTool, name)
	}
	return rec, nil
}

func (f *fakeRegistry) Synthesize(_ context.Context, name string, observed datatypes.ParameterSchema) (*datatypes.ToolRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls = append(f.synthCalls, name)
	var rec *datatypes.ToolRecord
	if f.synthRec != nil {
		rec = f.synthRec(name, observed)
	}
	if rec != nil {
		f.tools[name] = rec
	}
	return rec, f.synthErr
}

func (f *fakeRegistry) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tools))
	for n := range f.tools {
		names = append(names, n)
	}
	return names
}

type collectEmitter struct {
	mu     sync.Mutex
	events []datatypes.ExecutionEvent
}

func (c *collectEmitter) Emit(ev datatypes.ExecutionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectEmitter) phases() []datatypes.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]datatypes.Phase, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Phase
	}
	return out
}

func (c *collectEmitter) last() datatypes.ExecutionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func echoHandler(_ context.Context, params map[string]any) (any, error) {
	return map[string]any{"echo": params}, nil
}

func newExecutor(t *testing.T, reg *fakeRegistry, mutate ...func(*Options)) *Executor {
	t.Helper()
	opts := Options{Registry: reg}
	for _, m := range mutate {
		m(&opts)
	}
	exec, err := New(opts)
	require.NoError(t, err)
	return exec
}

// ---------------------------------------------------------------------------
// Construction and chat mode
// ---------------------------------------------------------------------------

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestChatOnlyShortCircuit(t *testing.T) {
	exec := newExecutor(t, newFakeRegistry())
	em := &collectEmitter{}

	res, err := exec.Execute(context.Background(), Input{
		Plan: &datatypes.Plan{PlanID: "p1", ChatOnly: true, UserText: "hello there"},
	}, em)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.ChatMode())
	assert.Empty(t, res.NodeResults)

	require.Equal(t, []datatypes.Phase{datatypes.PhaseChatReply}, em.phases())
	assert.Equal(t, datatypes.StatusSuccess, em.last().Status)
	assert.Equal(t, res.FinalOutput, em.last().Message)
}

type stubResponder struct {
	reply string
	err   error
}

func (s stubResponder) Reply(context.Context, string) (string, error) { return s.reply, s.err }

func TestChatResponderFailureFallsBack(t *testing.T) {
	exec := newExecutor(t, newFakeRegistry(), func(o *Options) {
		o.Responder = stubResponder{err: errors.New("model offline")}
	})
	em := &collectEmitter{}

	res, err := exec.Execute(context.Background(), Input{
		Plan: &datatypes.Plan{ChatOnly: true, UserText: "thanks a lot"},
	}, em)

	require.NoError(t, err)
	assert.Equal(t, fallbackReply("thanks a lot"), res.FinalOutput)
}

// ---------------------------------------------------------------------------
// Plan execution
// ---------------------------------------------------------------------------

func TestLinearPlanChainsOutputs(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("search", func(_ context.Context, params map[string]any) (any, error) {
		return map[string]any{
			"results": []any{"r1", "r2"},
			"message": "search succeeded, found 2 results",
		}, nil
	}, nil)

	var gotText any
	reg.add("report", func(_ context.Context, params map[string]any) (any, error) {
		gotText = params["text"]
		return map[string]any{"reportContent": "# Findings"}, nil
	}, datatypes.ParameterSchema{{Name: "text", Type: "string", Required: true}})

	plan := &datatypes.Plan{
		PlanID: "p-linear",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "search", Params: map[string]any{"query": "go concurrency"}},
			{ID: "b", ToolName: "report", Params: map[string]any{"text": "$a.output"},
				Output: datatypes.OutputDescriptor{Key: "reportContent"}},
		},
	}

	em := &collectEmitter{}
	res, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, em)

	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.NodeResults, 2)
	assert.Equal(t, "# Findings", res.FinalOutput)

	// The whole-value reference was reshaped for the string target.
	s, ok := gotText.(string)
	require.True(t, ok, "adapter should hand report a string, got %T", gotText)
	assert.NotEmpty(t, s)

	assert.Equal(t, []datatypes.Phase{
		datatypes.PhasePipelineStart,
		datatypes.PhaseNodeStart, datatypes.PhaseNodeSuccess,
		datatypes.PhaseNodeStart, datatypes.PhaseNodeSuccess,
		datatypes.PhasePipelineEnd,
	}, em.phases())
	assert.Equal(t, true, em.last().Data["success"])
}

func TestEmptyPlanEmitsSinglePipelineEnd(t *testing.T) {
	em := &collectEmitter{}
	res, err := newExecutor(t, newFakeRegistry()).Execute(context.Background(), Input{
		Plan: &datatypes.Plan{PlanID: "p-empty"},
	}, em)

	require.ErrorIs(t, err, datatypes.ErrEmptyPlan)
	assert.False(t, res.Success)
	require.Equal(t, []datatypes.Phase{datatypes.PhasePipelineEnd}, em.phases())
	assert.Equal(t, false, em.last().Data["success"])
	assert.Equal(t, "EmptyPlan", em.last().Data["error"])
}

func TestCyclicPlanEmitsSystemErrorOnly(t *testing.T) {
	plan := &datatypes.Plan{
		PlanID: "p-cycle",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "x", Params: map[string]any{"in": "$b.output"}},
			{ID: "b", ToolName: "y", Params: map[string]any{"in": "$a.output"}},
		},
	}
	em := &collectEmitter{}
	res, err := newExecutor(t, newFakeRegistry()).Execute(context.Background(), Input{Plan: plan}, em)

	require.ErrorIs(t, err, datatypes.ErrCyclicPlan)
	assert.False(t, res.Success)
	require.Equal(t, []datatypes.Phase{datatypes.PhaseSystemError}, em.phases())
	assert.Equal(t, "CyclicPlan", em.last().Data["kind"])
}

func TestDanglingReferenceEmitsSystemError(t *testing.T) {
	plan := &datatypes.Plan{
		PlanID: "p-dangle",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "x", Params: map[string]any{"in": "$ghost.output"}},
		},
	}
	em := &collectEmitter{}
	_, err := newExecutor(t, newFakeRegistry()).Execute(context.Background(), Input{Plan: plan}, em)

	require.ErrorIs(t, err, datatypes.ErrDanglingReference)
	require.Equal(t, []datatypes.Phase{datatypes.PhaseSystemError}, em.phases())
	assert.Equal(t, "DanglingReference", em.last().Data["kind"])
}

func TestNodeErrorStopsPlan(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("boom", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend unavailable")
	}, nil)
	reg.add("never", echoHandler, nil)

	plan := &datatypes.Plan{
		PlanID: "p-fail",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "boom", Params: map[string]any{}},
			{ID: "b", ToolName: "never", Params: map[string]any{"in": "$a.output"}},
		},
	}
	em := &collectEmitter{}
	res, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, em)

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.NodeResults)
	assert.Equal(t, []datatypes.Phase{
		datatypes.PhasePipelineStart,
		datatypes.PhaseNodeStart,
		datatypes.PhaseNodeError,
		datatypes.PhasePipelineEnd,
	}, em.phases())
	assert.Equal(t, "a", em.last().Data["failed_node"])
}

func TestHandlerPanicIsContained(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("panicky", func(context.Context, map[string]any) (any, error) {
		panic("nil map write")
	}, nil)

	plan := &datatypes.Plan{
		PlanID:     "p-panic",
		Components: []datatypes.Component{{ID: "a", ToolName: "panicky", Params: map[string]any{}}},
	}
	res, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, &collectEmitter{})

	require.ErrorIs(t, err, datatypes.ErrInternal)
	assert.False(t, res.Success)
}

func TestNodeTimeoutCancelsHandler(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("slow", func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil)

	exec := newExecutor(t, reg, func(o *Options) { o.NodeTimeout = 10 * time.Millisecond })
	plan := &datatypes.Plan{
		PlanID:     "p-slow",
		Components: []datatypes.Component{{ID: "a", ToolName: "slow", Params: map[string]any{}}},
	}
	_, err := exec.Execute(context.Background(), Input{Plan: plan}, &collectEmitter{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancellationDiscardsPartialOutputs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	reg := newFakeRegistry()
	reg.add("first", func(context.Context, map[string]any) (any, error) {
		cancel()
		return map[string]any{"status": "ok"}, nil
	}, nil)
	reg.add("second", echoHandler, nil)

	plan := &datatypes.Plan{
		PlanID: "p-cancel",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "first", Params: map[string]any{}},
			{ID: "b", ToolName: "second", Params: map[string]any{"in": "$a.output"}},
		},
	}
	em := &collectEmitter{}
	res, err := newExecutor(t, reg).Execute(ctx, Input{Plan: plan}, em)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.Empty(t, res.NodeResults)
	assert.Equal(t, "cancelled", em.last().Data["reason"])
	assert.Equal(t, datatypes.PhasePipelineEnd, em.last().Phase)
}

// ---------------------------------------------------------------------------
// Synthesis on miss
// ---------------------------------------------------------------------------

func TestUnknownToolTriggersSynthesis(t *testing.T) {
	reg := newFakeRegistry()
	reg.synthRec = func(name string, observed datatypes.ParameterSchema) *datatypes.ToolRecord {
		return &datatypes.ToolRecord{
			Name:       name,
			Schema:     observed,
			Handler:    echoHandler,
			Provenance: datatypes.ProvenanceSynthesized,
		}
	}

	plan := &datatypes.Plan{
		PlanID:     "p-synth",
		Components: []datatypes.Component{{ID: "a", ToolName: "novelTool", Params: map[string]any{"q": "x"}}},
	}
	res, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, &collectEmitter{})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"novelTool"}, reg.synthCalls)
}

func TestSynthesisBudgetExhausted(t *testing.T) {
	reg := newFakeRegistry()
	reg.synthRec = func(name string, observed datatypes.ParameterSchema) *datatypes.ToolRecord {
		return &datatypes.ToolRecord{Name: name, Handler: echoHandler, Provenance: datatypes.ProvenanceSynthesized}
	}
	exec := newExecutor(t, reg, func(o *Options) { o.MaxSynthDepth = 1 })

	plan := &datatypes.Plan{
		PlanID: "p-budget",
		Components: []datatypes.Component{
			{ID: "a", ToolName: "toolOne", Params: map[string]any{}},
			{ID: "b", ToolName: "toolTwo", Params: map[string]any{}},
		},
	}
	_, err := exec.Execute(context.Background(), Input{Plan: plan}, &collectEmitter{})

	require.ErrorIs(t, err, datatypes.ErrUnknownTool)
	assert.Equal(t, []string{"toolOne"}, reg.synthCalls)
}

func TestSynthesisSaveFailureIsNonFatal(t *testing.T) {
	reg := newFakeRegistry()
	reg.synthErr = fmt.Errorf("%w: disk full", datatypes.ErrSave)
	reg.synthRec = func(name string, observed datatypes.ParameterSchema) *datatypes.ToolRecord {
		return &datatypes.ToolRecord{Name: name, Handler: echoHandler, Provenance: datatypes.ProvenanceSynthesized}
	}

	plan := &datatypes.Plan{
		PlanID:     "p-save",
		Components: []datatypes.Component{{ID: "a", ToolName: "flaky", Params: map[string]any{}}},
	}
	em := &collectEmitter{}
	res, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, em)

	require.NoError(t, err)
	assert.True(t, res.Success)

	var nodeSuccess datatypes.ExecutionEvent
	for _, ev := range em.events {
		if ev.Phase == datatypes.PhaseNodeSuccess {
			nodeSuccess = ev
		}
	}
	assert.Contains(t, nodeSuccess.Data["save_warning"], "disk full")
}

func TestSynthesisFailureIsFatal(t *testing.T) {
	reg := newFakeRegistry()
	reg.synthErr = errors.New("backend down")

	plan := &datatypes.Plan{
		PlanID:     "p-nosynth",
		Components: []datatypes.Component{{ID: "a", ToolName: "ghost", Params: map[string]any{}}},
	}
	_, err := newExecutor(t, reg).Execute(context.Background(), Input{Plan: plan}, &collectEmitter{})
	require.ErrorIs(t, err, datatypes.ErrUnknownTool)
}

// ---------------------------------------------------------------------------
// Parser path
// ---------------------------------------------------------------------------

type stubParser struct {
	plan *datatypes.Plan
	err  error
}

func (s stubParser) Parse(context.Context, string, []string) (*datatypes.Plan, error) {
	return s.plan, s.err
}

func TestParserPathRunsParsedPlan(t *testing.T) {
	reg := newFakeRegistry()
	reg.add("echo", echoHandler, nil)

	exec := newExecutor(t, reg, func(o *Options) {
		o.Parser = stubParser{plan: &datatypes.Plan{
			PlanID:     "p-parsed",
			Components: []datatypes.Component{{ID: "a", ToolName: "echo", Params: map[string]any{"q": "hi"}}},
		}}
	})

	res, err := exec.Execute(context.Background(), Input{UserText: "do the thing"}, &collectEmitter{})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestParserErrorEmitsSystemError(t *testing.T) {
	exec := newExecutor(t, newFakeRegistry(), func(o *Options) {
		o.Parser = stubParser{err: errors.New("model returned garbage")}
	})
	em := &collectEmitter{}
	res, err := exec.Execute(context.Background(), Input{UserText: "???"}, em)

	require.Error(t, err)
	assert.False(t, res.Success)
	require.Equal(t, []datatypes.Phase{datatypes.PhaseSystemError}, em.phases())
	assert.Equal(t, "ParserError", em.last().Data["kind"])
}

func TestNoParserNoPlanIsMalformed(t *testing.T) {
	exec := newExecutor(t, newFakeRegistry())
	_, err := exec.Execute(context.Background(), Input{UserText: "anything"}, &collectEmitter{})
	require.ErrorIs(t, err, datatypes.ErrMalformedPlan)
}

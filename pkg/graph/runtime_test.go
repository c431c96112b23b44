package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/movi/pkg/models"
)

// trace records node execution order via the state message.
func traceNode(name string, visited *[]string) NodeFunc {
	return func(_ context.Context, _ *models.FlowState) error {
		*visited = append(*visited, name)
		return nil
	}
}

func newTestRuntime(visited *[]string) *Runtime {
	r := New("start", "end", "fallback")
	r.Register("start", traceNode("start", visited))
	r.Register("end", traceNode("end", visited))
	r.Register("fallback", traceNode("fallback", visited))
	return r
}

func TestRunFollowsUnconditionalEdges(t *testing.T) {
	var visited []string
	r := newTestRuntime(&visited)
	r.Register("middle", traceNode("middle", &visited))
	r.Connect("start", "middle", nil)
	r.Connect("middle", "end", nil)
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	r.Run(context.Background(), &models.FlowState{})

	assert.Equal(t, []string{"start", "middle", "end"}, visited)
}

func TestRunFirstPassingPredicateWins(t *testing.T) {
	var visited []string
	r := newTestRuntime(&visited)
	r.Register("a", traceNode("a", &visited))
	r.Register("b", traceNode("b", &visited))

	r.Connect("start", "a", func(s *models.FlowState) bool { return s.UserID == 1 })
	r.Connect("start", "b", func(s *models.FlowState) bool { return true })
	r.Connect("a", "end", nil)
	r.Connect("b", "end", nil)
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	r.Run(context.Background(), &models.FlowState{UserID: 1})
	assert.Equal(t, []string{"start", "a", "end"}, visited)

	visited = nil
	r.Run(context.Background(), &models.FlowState{UserID: 2})
	assert.Equal(t, []string{"start", "b", "end"}, visited)
}

func TestRunNextNodeOverridesEdges(t *testing.T) {
	var visited []string
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, s *models.FlowState) error {
		visited = append(visited, "start")
		s.NextNode = "detour"
		return nil
	})
	r.Register("detour", traceNode("detour", &visited))
	r.Register("end", traceNode("end", &visited))
	r.Register("fallback", traceNode("fallback", &visited))
	r.Connect("start", "end", nil)
	r.Connect("detour", "end", nil)
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	r.Run(context.Background(), &models.FlowState{})

	assert.Equal(t, []string{"start", "detour", "end"}, visited)
}

func TestRunNodeErrorReroutesToFallback(t *testing.T) {
	var visited []string
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, _ *models.FlowState) error {
		return errors.New("boom")
	})
	r.Register("end", traceNode("end", &visited))
	r.Register("fallback", traceNode("fallback", &visited))
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	s := r.Run(context.Background(), &models.FlowState{})

	assert.Equal(t, []string{"fallback", "end"}, visited)
	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrDatabase, s.Error.Kind)
	assert.Contains(t, s.Error.Message, "boom")
}

func TestRunNodePanicIsCaptured(t *testing.T) {
	var visited []string
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, _ *models.FlowState) error {
		panic("kaboom")
	})
	r.Register("end", traceNode("end", &visited))
	r.Register("fallback", traceNode("fallback", &visited))
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	s := r.Run(context.Background(), &models.FlowState{})

	assert.Equal(t, []string{"fallback", "end"}, visited)
	require.NotNil(t, s.Error)
	assert.Contains(t, s.Error.Message, "kaboom")
}

func TestRunPreservesNodeLocalError(t *testing.T) {
	// A node that captured its own error and then failed must not have the
	// captured error overwritten by the runtime.
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, s *models.FlowState) error {
		s.SetError(models.ErrTripNotFound, "no such trip")
		return errors.New("secondary failure")
	})
	r.Register("end", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Register("fallback", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	s := r.Run(context.Background(), &models.FlowState{})

	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrTripNotFound, s.Error.Kind)
}

func TestRunUnroutableNodeForcesTerminal(t *testing.T) {
	var visited []string
	r := newTestRuntime(&visited)
	// start has no outgoing edges at all.
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	s := r.Run(context.Background(), &models.FlowState{})

	assert.Equal(t, []string{"start", "end"}, visited)
	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrGraphCycle, s.Error.Kind)
}

func TestRunIterationCapProducesEnvelope(t *testing.T) {
	var endRuns int
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Register("loop", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Register("end", func(_ context.Context, _ *models.FlowState) error {
		endRuns++
		return nil
	})
	r.Register("fallback", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Connect("start", "loop", nil)
	r.Connect("loop", "loop", nil)
	r.Connect("fallback", "end", nil)
	require.NoError(t, r.Validate())

	s := r.Run(context.Background(), &models.FlowState{})

	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrGraphCycle, s.Error.Kind)
	assert.Equal(t, 1, endRuns, "terminal must still run exactly once")
}

func TestValidateRejectsUnknownEndpoints(t *testing.T) {
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Register("end", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Register("fallback", func(_ context.Context, _ *models.FlowState) error { return nil })
	r.Connect("start", "ghost", nil)

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New("start", "end", "fallback")
	r.Register("start", func(_ context.Context, _ *models.FlowState) error { return nil })
	assert.Panics(t, func() {
		r.Register("start", func(_ context.Context, _ *models.FlowState) error { return nil })
	})
}

// Package agent implements the orchestration graph: intent parsing, target
// resolution, consequence analysis, selection providers, wizards, action
// execution, and result formatting, all threaded through a shared Flow State.
package agent

import (
	"context"

	"github.com/fleetops/movi/pkg/catalog"
	"github.com/fleetops/movi/pkg/config"
	"github.com/fleetops/movi/pkg/graph"
	"github.com/fleetops/movi/pkg/llm"
	"github.com/fleetops/movi/pkg/models"
	"github.com/fleetops/movi/pkg/services"
	"github.com/fleetops/movi/pkg/tools"
)

// Node names. The runtime starts at NodeParseIntent and always terminates at
// NodeReportResult.
const (
	NodeParseIntent       = "parse_intent"
	NodeResolveTarget     = "resolve_target"
	NodeCheckConsequences = "check_consequences"
	NodeWizardStep        = "wizard_step"
	NodeDriverSelection   = "driver_selection_provider"
	NodeVehicleSelection  = "vehicle_selection_provider"
	NodeExecuteAction     = "execute_action"
	NodeFallback          = "fallback"
	NodeReportResult      = "report_result"
)

// Agent owns the graph nodes and their shared dependencies.
type Agent struct {
	cfg      config.AgentConfig
	llm      llm.Client
	store    *tools.Store
	sessions *services.SessionService

	runtime *graph.Runtime
}

// New wires an Agent and registers its graph. Call Run per request.
func New(cfg config.AgentConfig, llmClient llm.Client, store *tools.Store, sessions *services.SessionService) (*Agent, error) {
	a := &Agent{
		cfg:      cfg,
		llm:      llmClient,
		store:    store,
		sessions: sessions,
	}
	if err := a.buildGraph(); err != nil {
		return nil, err
	}
	return a, nil
}

// buildGraph registers every node and the conditional edges between them.
// Edge order matters: the first passing predicate wins.
func (a *Agent) buildGraph() error {
	r := graph.New(NodeParseIntent, NodeReportResult, NodeFallback)

	r.Register(NodeParseIntent, a.parseIntent)
	r.Register(NodeResolveTarget, a.resolveTarget)
	r.Register(NodeCheckConsequences, a.checkConsequences)
	r.Register(NodeWizardStep, a.wizardStepNode)
	r.Register(NodeDriverSelection, a.provideDriverSelection)
	r.Register(NodeVehicleSelection, a.provideVehicleSelection)
	r.Register(NodeExecuteAction, a.executeAction)
	r.Register(NodeFallback, a.fallbackNode)
	r.Register(NodeReportResult, a.reportResult)

	r.Connect(NodeParseIntent, NodeWizardStep, wizardOwnsTurn)
	r.Connect(NodeParseIntent, NodeFallback, hasError)
	r.Connect(NodeParseIntent, NodeReportResult, needsClarification)
	r.Connect(NodeParseIntent, NodeFallback, actionUnknown)
	r.Connect(NodeParseIntent, NodeResolveTarget, nil)

	r.Connect(NodeResolveTarget, NodeFallback, hasError)
	r.Connect(NodeResolveTarget, NodeReportResult, needsClarification)
	r.Connect(NodeResolveTarget, NodeDriverSelection, needsDriverSelection)
	r.Connect(NodeResolveTarget, NodeVehicleSelection, needsVehicleSelection)
	r.Connect(NodeResolveTarget, NodeCheckConsequences, nil)

	r.Connect(NodeCheckConsequences, NodeFallback, hasError)
	r.Connect(NodeCheckConsequences, NodeReportResult, needsConfirmation)
	r.Connect(NodeCheckConsequences, NodeExecuteAction, nil)

	r.Connect(NodeDriverSelection, NodeReportResult, nil)
	r.Connect(NodeVehicleSelection, NodeReportResult, nil)
	r.Connect(NodeWizardStep, NodeReportResult, nil)
	r.Connect(NodeExecuteAction, NodeReportResult, nil)
	r.Connect(NodeFallback, NodeReportResult, nil)

	a.runtime = r
	return r.Validate()
}

// Run drives one request through the graph. The returned state always
// carries a FinalOutput.
func (a *Agent) Run(ctx context.Context, state *models.FlowState) *models.FlowState {
	return a.runtime.Run(ctx, state)
}

// Routing predicates. Pure functions of state, evaluated in edge order.

func hasError(s *models.FlowState) bool { return s.Error != nil }

func needsClarification(s *models.FlowState) bool { return s.NeedsClarification }

func needsConfirmation(s *models.FlowState) bool { return s.NeedsConfirmation }

func actionUnknown(s *models.FlowState) bool {
	return s.Intent.Action == catalog.ActionUnknown || s.Intent.Action == ""
}

// wizardOwnsTurn routes to the wizard node when a wizard is mid-flight or
// the parsed action starts one.
func wizardOwnsTurn(s *models.FlowState) bool {
	if s.Wizard != nil && !s.Wizard.Cancelled {
		return true
	}
	if s.Error != nil {
		return false
	}
	action, ok := catalog.Lookup(s.Intent.Action)
	if !ok || action.Flow == "" {
		return false
	}
	// Hybrid actions like create_stop run directly when the parser already
	// captured their required parameters; the wizard is the missing-input path.
	if action.Category != catalog.CategoryWizard && len(missingParams(action, &s.Intent)) == 0 {
		return false
	}
	return true
}

// needsDriverSelection fires when an assign_driver arrived without its
// driver. The parser deliberately does not demand the driver up front; the
// provider builds the option list instead.
func needsDriverSelection(s *models.FlowState) bool {
	if s.Intent.Action != "assign_driver" {
		return false
	}
	_, ok := intParam(s.Intent.Parameters, "driver_id")
	return !ok
}

func needsVehicleSelection(s *models.FlowState) bool {
	if s.Intent.Action != "assign_vehicle" {
		return false
	}
	_, ok := intParam(s.Intent.Parameters, "vehicle_id")
	return !ok
}

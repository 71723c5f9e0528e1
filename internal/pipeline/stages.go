// Package pipeline owns prospect stage changes: the stage graph, the rules for
// moving along it, and the atomic write of a stage change with its activity event.
package pipeline

import (
	"fmt"

	"github.com/jonathan/outreach-agent/internal/types"
)

// StageDefinition describes one stage and the stages reachable from it without override.
type StageDefinition struct {
	Stage types.Stage
	Next  []types.Stage
}

// StageGraph is the adjacency list of the pipeline. Every non-terminal stage
// advances one step forward or drops to dismissed.
var StageGraph = map[types.Stage]StageDefinition{
	types.StageNew: {
		Stage: types.StageNew,
		Next:  []types.Stage{types.StageContacted, types.StageDismissed},
	},
	types.StageContacted: {
		Stage: types.StageContacted,
		Next:  []types.Stage{types.StageSiteGenerated, types.StageDismissed},
	},
	types.StageSiteGenerated: {
		Stage: types.StageSiteGenerated,
		Next:  []types.Stage{types.StageCampaignSuggested, types.StageDismissed},
	},
	types.StageCampaignSuggested: {
		Stage: types.StageCampaignSuggested,
		Next:  []types.Stage{types.StageCampaignActive, types.StageDismissed},
	},
	types.StageCampaignActive: {
		Stage: types.StageCampaignActive,
		Next:  []types.Stage{types.StageConverted, types.StageDismissed},
	},
	types.StageConverted: {Stage: types.StageConverted},
	types.StageDismissed: {Stage: types.StageDismissed},
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to types.Stage) bool {
	def, ok := StageGraph[from]
	if !ok {
		return false
	}
	for _, next := range def.Next {
		if next == to {
			return true
		}
	}
	return false
}

// Successor returns the forward stage after from, if any.
func Successor(from types.Stage) (types.Stage, bool) {
	for _, next := range StageGraph[from].Next {
		if next != types.StageDismissed {
			return next, true
		}
	}
	return "", false
}

// ValidateGraph checks that the graph covers every stage, that terminal stages
// have no edges and that every stage is reachable from new.
func ValidateGraph() error {
	for _, st := range types.Stages {
		def, ok := StageGraph[st]
		if !ok {
			return fmt.Errorf("stage %s missing from graph", st)
		}
		if st.Terminal() && len(def.Next) > 0 {
			return fmt.Errorf("terminal stage %s has outgoing edges", st)
		}
		for _, next := range def.Next {
			if _, ok := StageGraph[next]; !ok {
				return fmt.Errorf("stage %s points to unknown stage %s", st, next)
			}
		}
	}

	seen := map[types.Stage]bool{types.StageNew: true}
	queue := []types.Stage{types.StageNew}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range StageGraph[cur].Next {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, st := range types.Stages {
		if !seen[st] {
			return fmt.Errorf("stage %s is unreachable", st)
		}
	}
	return nil
}

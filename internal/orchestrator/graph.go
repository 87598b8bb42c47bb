package orchestrator

import "fmt"

// stageNode is one node of the per-split stage dependency graph. Declaring
// dependencies explicitly (rather than hard-coding a linear sequence) is
// what lets the orchestrator's topological sort, not a human, decide
// execution order — new stages only need to declare what they depend on.
type stageNode struct {
	name      string
	dependsOn []string
}

// topoSort returns nodes in dependency order, breaking ties by name so the
// same graph always yields the same order (determinism matters here: the
// order splits are processed in determines speaker_id numbering per §5).
func topoSort(nodes []stageNode) ([]string, error) {
	byName := make(map[string]stageNode, len(nodes))
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string)

	for _, n := range nodes {
		byName[n.name] = n
		if _, ok := indegree[n.name]; !ok {
			indegree[n.name] = 0
		}
	}
	for _, n := range nodes {
		for _, dep := range n.dependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", n.name, dep)
			}
			indegree[n.name]++
			dependents[dep] = append(dependents[dep], n.name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = insertSorted(ready, name)
		}
	}

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("stage graph has a cycle")
	}
	return order, nil
}

// insertSorted keeps ready in ascending name order so topoSort's output is
// stable across runs with the same graph.
func insertSorted(ready []string, name string) []string {
	i := 0
	for i < len(ready) && ready[i] < name {
		i++
	}
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = name
	return ready
}

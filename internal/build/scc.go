package build

import (
	"slices"
)

// SortedSCCs returns the strongly connected components of the import graph
// restricted to ids, dependencies first. Members of a component are
// sorted, and ties between independent components are broken by id so the
// order is deterministic.
func SortedSCCs(graph map[string]*State, ids []string) [][]string {
	in := make(map[string]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	adj := make(map[string][]string, len(ids))
	for _, id := range ids {
		for _, dep := range graph[id].Dependencies {
			if in[dep] {
				adj[id] = append(adj[id], dep)
			}
		}
	}

	// Tarjan's algorithm emits a component only after every component
	// reachable from it, which is exactly dependency order.
	type nodeInfo struct {
		index   int
		lowlink int
		onStack bool
	}
	info := map[string]*nodeInfo{}
	index := 0
	var stack []string
	var result [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		ni := &nodeInfo{index: index, lowlink: index, onStack: true}
		info[v] = ni
		index++
		stack = append(stack, v)

		for _, w := range adj[v] {
			wInfo, visited := info[w]
			if !visited {
				strongconnect(w)
				ni.lowlink = min(ni.lowlink, info[w].lowlink)
			} else if wInfo.onStack {
				ni.lowlink = min(ni.lowlink, wInfo.index)
			}
		}

		if ni.lowlink == ni.index {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				info[w].onStack = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			result = append(result, scc)
		}
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range sorted {
		if _, visited := info[id]; !visited {
			strongconnect(id)
		}
	}
	return result
}

// GraphIDs returns the sorted ids of every module in the graph.
func GraphIDs(graph map[string]*State) []string {
	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

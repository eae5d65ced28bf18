package schema

import (
	"fmt"
	"strings"
)

// RelationshipGraph represents the foreign-key dependency graph between entities
type RelationshipGraph struct {
	order []string
	nodes map[string]*EntityMetadata
	edges map[string][]string // entity -> entities it references
}

// NewRelationshipGraph creates a new relationship graph. Iteration follows the
// order of the given entities so results are deterministic.
func NewRelationshipGraph(entities []*EntityMetadata) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: make(map[string]*EntityMetadata, len(entities)),
		edges: make(map[string][]string),
	}

	for _, e := range entities {
		graph.order = append(graph.order, e.Name)
		graph.nodes[e.Name] = e
	}

	// Build edges from foreign-key carrying relationships; self references
	// do not constrain ordering
	for _, e := range entities {
		for _, rel := range e.Relationships {
			if rel.CarriesForeignKey() && rel.Target != e.Name {
				graph.edges[e.Name] = appendUnique(graph.edges[e.Name], rel.Target)
			}
		}
	}

	return graph
}

// DetectCycles detects circular dependencies in the relationship graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if recursionStack[neighbor] {
				cycleStart := -1
				for i, n := range path {
					if n == neighbor {
						cycleStart = i
						break
					}
				}
				if cycleStart >= 0 {
					cycle := make([]string, len(path)-cycleStart)
					copy(cycle, path[cycleStart:])
					cycles = append(cycles, cycle)
				}
				return true
			}
		}

		recursionStack[node] = false
		return false
	}

	for _, node := range g.order {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns entities in dependency order (referenced first)
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int, len(g.order))
	for _, node := range g.order {
		outDegree[node] = len(g.edges[node])
	}

	reverseEdges := make(map[string][]string)
	for _, source := range g.order {
		for _, target := range g.edges[source] {
			reverseEdges[target] = append(reverseEdges[target], source)
		}
	}

	queue := []string{}
	for _, node := range g.order {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := []string{}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.order) {
		cycles := g.DetectCycles()
		if len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected: %s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// GetDependencies returns the entities directly referenced by an entity
func (g *RelationshipGraph) GetDependencies(entity string) []string {
	deps, exists := g.edges[entity]
	if !exists {
		return []string{}
	}
	return deps
}

// GetDependents returns the entities that directly reference an entity
func (g *RelationshipGraph) GetDependents(entity string) []string {
	dependents := []string{}
	for _, node := range g.order {
		for _, dep := range g.edges[node] {
			if dep == entity {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// formatCycles formats cycle information for error messages
func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fmt.Sprintf("%s -> %s", strings.Join(cycle, " -> "), cycle[0]))
	}
	return b.String()
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

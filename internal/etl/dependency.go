package etl

import (
	"slices"
	"strings"
)

// dependencyGraph maps node names to the names that must be processed first.
// Nodes keep the order in which they were first declared.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{edges: map[string][]string{}}
}

func (g *dependencyGraph) addNode(name string, deps ...string) {
	existing, ok := g.edges[name]
	if !ok {
		g.nodes = append(g.nodes, name)
	}
	for _, d := range deps {
		if !slices.Contains(existing, d) {
			existing = append(existing, d)
		}
	}
	g.edges[name] = existing
}

// sort returns the node names in topological order. Dependencies that are not
// nodes themselves are treated as already satisfied and are not returned.
func (g *dependencyGraph) sort() ([]string, error) {
	sorted := make([]string, 0, len(g.nodes))
	visited := make(map[string]bool, len(g.nodes))

	var visit func(name string, ancestors []string) error
	visit = func(name string, ancestors []string) error {
		chain := append(slices.Clone(ancestors), name)
		visited[name] = true
		deps, ok := g.edges[name]
		if !ok {
			return nil
		}
		for _, dep := range deps {
			if i := slices.Index(chain, dep); i >= 0 {
				return &CycleError{Chain: append(slices.Clone(chain[i:]), dep)}
			}
			if visited[dep] {
				continue
			}
			if err := visit(dep, chain); err != nil {
				return err
			}
		}
		if !slices.Contains(sorted, name) {
			sorted = append(sorted, name)
		}
		return nil
	}

	for _, n := range g.nodes {
		if visited[n] {
			continue
		}
		if err := visit(n, nil); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// dependencies lists the prerequisites of u, deduplicated in order of first appearance.
func dependencies(u *unit, all []*unit) []string {
	var deps []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !slices.Contains(deps, n) {
				deps = append(deps, n)
			}
		}
	}

	add(u.AddedDependencies...)
	if u.hasEmbed {
		if u.EmbedInRoot || len(u.embedPath) == 1 {
			add(u.ToCollection)
		} else {
			parentPath := strings.Join(u.embedPath[:len(u.embedPath)-1], ".")
			for _, other := range all {
				if other.EmbedIn == parentPath {
					add(other.FromTable)
				}
			}
		}
	}
	for _, name := range u.columnNames() {
		if col := u.Columns[name]; col.Translator != nil {
			add(col.Translator.SourceCollection)
		}
	}
	return deps
}

// orderUnits sorts the units so every prerequisite runs before its dependents.
// Units sharing a node are emitted in input order, collection units first.
func orderUnits(units []*unit) ([]*unit, error) {
	g := newDependencyGraph()
	for _, u := range units {
		if u.IgnoreDependencies {
			g.addNode(u.nodeName())
			continue
		}
		g.addNode(u.nodeName(), dependencies(u, units)...)
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}

	out := make([]*unit, 0, len(units))
	for _, name := range order {
		for _, u := range units {
			if !u.hasEmbed && u.ToCollection == name {
				out = append(out, u)
			}
		}
		for _, u := range units {
			if u.hasEmbed && u.FromTable == name {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

package querycache

import (
	"slices"
	"sync"

	"github.com/fastygo/portal/domain"
)

type nodeKind uint8

const (
	mutationNode nodeKind = iota + 1
	tagNode
	queryNode
)

type node struct {
	kind nodeKind
	name string
}

// Graph is a directed dependency graph from mutation kinds, through tags, to
// query kinds. A mutation makes stale every query reachable from it.
type Graph struct {
	mu    sync.RWMutex
	edges map[node][]node
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[node][]node)}
}

// Provides records that results of query carry the given tags.
func (g *Graph) Provides(query string, tags ...domain.Tag) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, tag := range tags {
		g.link(node{tagNode, string(tag)}, node{queryNode, query})
	}
	return g
}

// Invalidates records that a successful mutation invalidates the given tags.
func (g *Graph) Invalidates(mutation string, tags ...domain.Tag) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, tag := range tags {
		g.link(node{mutationNode, mutation}, node{tagNode, string(tag)})
	}
	return g
}

// Affected returns the query kinds reachable from mutation, sorted.
func (g *Graph) Affected(mutation string) []string {
	return g.reach(node{mutationNode, mutation})
}

// TaggedQueries returns the query kinds that provide any of tags, sorted.
func (g *Graph) TaggedQueries(tags ...domain.Tag) []string {
	var out []string
	for _, tag := range tags {
		out = append(out, g.reach(node{tagNode, string(tag)})...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (g *Graph) reach(start node) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[node]bool{start: true}
	queue := []node{start}
	var queries []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[n] {
			if visited[next] {
				continue
			}
			visited[next] = true
			if next.kind == queryNode {
				queries = append(queries, next.name)
			}
			queue = append(queue, next)
		}
	}
	slices.Sort(queries)
	return queries
}

func (g *Graph) link(from, to node) {
	if slices.Contains(g.edges[from], to) {
		return
	}
	g.edges[from] = append(g.edges[from], to)
}

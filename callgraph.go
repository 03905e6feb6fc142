package pta

import (
	"fmt"

	"github.com/polaris-analysis/pta/ir"
)

// CallEdge connects a context-sensitive call site to a context-sensitive
// callee.
type CallEdge struct {
	Site   *CSCallSite
	Callee *CSMethod
	Kind   ir.CallKind
}

func (e *CallEdge) String() string {
	return fmt.Sprintf("%v -%v-> %v", e.Site, e.Kind, e.Callee)
}

type callEdgeKey struct {
	site   *CSCallSite
	callee *CSMethod
}

// CallGraph is the on-the-fly constructed call graph. Nodes are
// context-sensitive methods; edges carry the call site and the call kind.
// It only grows during solving.
type CallGraph struct {
	edges     []*CallEdge
	edgeSet   map[callEdgeKey]struct{}
	calleesOf map[*CSCallSite][]*CallEdge
	callersOf map[*CSMethod][]*CallEdge
	reachable []*CSMethod
}

func newCallGraph() *CallGraph {
	return &CallGraph{
		edgeSet:   make(map[callEdgeKey]struct{}),
		calleesOf: make(map[*CSCallSite][]*CallEdge),
		callersOf: make(map[*CSMethod][]*CallEdge),
	}
}

// addEdge inserts the edge, reporting whether it is new.
func (g *CallGraph) addEdge(e *CallEdge) bool {
	key := callEdgeKey{site: e.Site, callee: e.Callee}
	if _, found := g.edgeSet[key]; found {
		return false
	}
	g.edgeSet[key] = struct{}{}
	g.edges = append(g.edges, e)
	g.calleesOf[e.Site] = append(g.calleesOf[e.Site], e)
	g.callersOf[e.Callee] = append(g.callersOf[e.Callee], e)
	return true
}

func (g *CallGraph) addReachable(m *CSMethod) {
	g.reachable = append(g.reachable, m)
}

// Edges returns all call edges in discovery order.
func (g *CallGraph) Edges() []*CallEdge { return g.edges }

// Reachable returns all reachable context-sensitive methods in discovery
// order.
func (g *CallGraph) Reachable() []*CSMethod { return g.reachable }

// CalleesOf returns the edges out of a context-sensitive call site.
func (g *CallGraph) CalleesOf(cs *CSCallSite) []*CallEdge { return g.calleesOf[cs] }

// CallersOf returns the edges into a context-sensitive method.
func (g *CallGraph) CallersOf(m *CSMethod) []*CallEdge { return g.callersOf[m] }

// ReachableMethods returns the context-insensitive projection of the
// reachable set: each method once, in first-discovery order.
func (g *CallGraph) ReachableMethods() []*ir.Method {
	seen := make(map[*ir.Method]bool, len(g.reachable))
	var methods []*ir.Method
	for _, m := range g.reachable {
		if !seen[m.Method] {
			seen[m.Method] = true
			methods = append(methods, m.Method)
		}
	}
	return methods
}

// MethodEdge is a context-insensitive call edge projection.
type MethodEdge struct {
	Site   *ir.Invoke
	Callee *ir.Method
	Kind   ir.CallKind
}

// MethodEdges projects the call graph onto plain call sites and methods,
// deduplicating edges that differ only in context.
func (g *CallGraph) MethodEdges() []MethodEdge {
	type key struct {
		site   *ir.Invoke
		callee *ir.Method
	}
	seen := make(map[key]bool, len(g.edges))
	var edges []MethodEdge
	for _, e := range g.edges {
		k := key{site: e.Site.Site, callee: e.Callee.Method}
		if !seen[k] {
			seen[k] = true
			edges = append(edges, MethodEdge{Site: e.Site.Site, Callee: e.Callee.Method, Kind: e.Kind})
		}
	}
	return edges
}

package pta

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/polaris-analysis/pta/ir"
)

// Plugin observes analysis lifecycle and discovery events and may, in
// response, call back into the solver (AddPFGEdge, AddPointsTo,
// MarkReachable, AddCallEdge, Heap().MockObj) to inject constraints.
//
// The solver-plugin relation is a hook contract, not a subclass relation:
// embed [NopPlugin] to get default no-op implementations and override the
// hooks of interest.
type Plugin interface {
	// OnStart fires before entry points are seeded.
	OnStart(s *Solver)
	// OnNewMethod fires the first time a method becomes reachable in any
	// context.
	OnNewMethod(m *ir.Method)
	// OnNewCSMethod fires for every newly reachable (method, context)
	// pair.
	OnNewCSMethod(m *CSMethod)
	// OnNewCallEdge fires for every call edge added to the call graph.
	OnNewCallEdge(e *CallEdge)
	// OnNewPointsToSet fires after a delta has been propagated from p.
	OnNewPointsToSet(p *Pointer, delta *PTSet)
	// OnUnresolvedCall fires when dispatch finds no target (recv is nil
	// for static and dynamic call sites).
	OnUnresolvedCall(recv *Obj, site *CSCallSite)
	// OnFinish fires when the worklist is empty, before the result is
	// frozen.
	OnFinish(s *Solver)
}

// NopPlugin implements Plugin with no-ops.
type NopPlugin struct{}

func (NopPlugin) OnStart(*Solver)                  {}
func (NopPlugin) OnNewMethod(*ir.Method)           {}
func (NopPlugin) OnNewCSMethod(*CSMethod)          {}
func (NopPlugin) OnNewCallEdge(*CallEdge)          {}
func (NopPlugin) OnNewPointsToSet(*Pointer, *PTSet) {}
func (NopPlugin) OnUnresolvedCall(*Obj, *CSCallSite) {}
func (NopPlugin) OnFinish(*Solver)                 {}

// bus fans hooks out to the registered plugins in registration order. A
// panicking plugin is logged and skipped so it cannot mask the others;
// plugins signal fatal conditions through (*Solver).Abort, which the
// solver surfaces after the current worklist pop.
type bus struct {
	s       *Solver
	plugins []Plugin
}

func (b *bus) each(hook string, f func(Plugin)) {
	for _, p := range b.plugins {
		b.dispatch(hook, p, f)
	}
}

func (b *bus) dispatch(hook string, p Plugin, f func(Plugin)) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			perr := &PluginError{Plugin: fmt.Sprintf("%T", p), Hook: hook, Err: err}
			log.WithError(perr).Error("Plugin hook failed; continuing. ")
		}
	}()
	f(p)
}

func (b *bus) onStart() {
	b.each("OnStart", func(p Plugin) { p.OnStart(b.s) })
}

func (b *bus) onNewMethod(m *ir.Method) {
	b.each("OnNewMethod", func(p Plugin) { p.OnNewMethod(m) })
}

func (b *bus) onNewCSMethod(m *CSMethod) {
	b.each("OnNewCSMethod", func(p Plugin) { p.OnNewCSMethod(m) })
}

func (b *bus) onNewCallEdge(e *CallEdge) {
	b.each("OnNewCallEdge", func(p Plugin) { p.OnNewCallEdge(e) })
}

func (b *bus) onNewPointsToSet(pt *Pointer, delta *PTSet) {
	b.each("OnNewPointsToSet", func(p Plugin) { p.OnNewPointsToSet(pt, delta) })
}

func (b *bus) onUnresolvedCall(recv *Obj, site *CSCallSite) {
	b.each("OnUnresolvedCall", func(p Plugin) { p.OnUnresolvedCall(recv, site) })
}

func (b *bus) onFinish() {
	b.each("OnFinish", func(p Plugin) { p.OnFinish(b.s) })
}

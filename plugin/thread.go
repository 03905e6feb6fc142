package plugin

import (
	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// Thread models thread spawning: a call to Thread.start dispatches to the
// run method of the receiver objects, and Thread.currentThread returns
// every thread object seen so far, seeded with the synthetic main thread.
type Thread struct {
	pta.NopPlugin

	s      *pta.Solver
	thread *ir.Class

	// threadObjs are objects that may be returned by currentThread.
	threadObjs []*pta.Obj
	// currentThreadResults are the result pointers of reachable
	// currentThread call sites.
	currentThreadResults []*pta.Pointer
	// watchedStarts are the `this` pointers of reachable Thread.start
	// methods; objects arriving there spawn their run method.
	watchedStarts []*pta.Pointer
	started       map[*pta.Obj]bool
}

func NewThread() *Thread { return &Thread{} }

func (t *Thread) OnStart(s *pta.Solver) {
	t.s = s
	t.thread = s.Hierarchy().Lookup(ThreadClassName)
	if t.thread != nil {
		t.threadObjs = append(t.threadObjs,
			s.Heap().MockObj("main thread", t.thread))
	}
}

func (t *Thread) OnNewCallEdge(e *pta.CallEdge) {
	if t.thread == nil {
		return
	}

	callee := e.Callee.Method
	switch {
	case callee.Name == StartMethodName && t.isThreadClass(callee.Class):
		// run() fires with the started thread object as receiver. The
		// dispatch happens per receiver object as they arrive in the
		// points-to set of start's `this`.
		if callee.This != nil {
			t.watchStart(e.Callee)
		}

	case callee.Name == CurrentThreadMethodName && callee.Static && t.isThreadClass(callee.Class):
		if res := e.Site.Site.Result; res != nil {
			p := t.s.CSManager().CSVar(e.Site.Ctx, res)
			t.currentThreadResults = append(t.currentThreadResults, p)
			t.s.AddPointsTo(p, t.threadObjs...)
		}
	}
}

func (t *Thread) isThreadClass(cls *ir.Class) bool {
	return ir.Subtype(cls, t.thread)
}

// watchStart drains the receivers Thread.start already has and
// subscribes to the ones still to arrive.
func (t *Thread) watchStart(start *pta.CSMethod) {
	this := t.s.CSManager().CSVar(start.Ctx, start.Method.This)
	this.PointsTo().ForEach(func(id pta.ObjID) {
		t.startThread(t.s.Heap().ObjByID(id))
	})
	t.watchedStarts = append(t.watchedStarts, this)
}

func (t *Thread) OnNewPointsToSet(p *pta.Pointer, delta *pta.PTSet) {
	for _, w := range t.watchedStarts {
		if w == p {
			delta.ForEach(func(id pta.ObjID) {
				t.startThread(t.s.Heap().ObjByID(id))
			})
		}
	}
}

func (t *Thread) startThread(o *pta.Obj) {
	if t.started == nil {
		t.started = make(map[*pta.Obj]bool)
	}
	if t.started[o] {
		return
	}
	t.started[o] = true

	run := ir.Dispatch(o.Type, ir.MethodRef{Class: t.thread, Name: RunMethodName})
	if run == nil {
		return
	}

	cm := t.s.MarkReachable(t.s.EmptyContext(), run)
	if run.This != nil {
		t.s.AddPointsTo(t.s.CSManager().CSVar(cm.Ctx, run.This), o)
	}

	t.threadObjs = append(t.threadObjs, o)
	for _, res := range t.currentThreadResults {
		t.s.AddPointsTo(res, o)
	}
}

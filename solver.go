package pta

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/polaris-analysis/pta/internal/queue"
	"github.com/polaris-analysis/pta/ir"
)

// Solver runs the context-sensitive subset-based pointer analysis. It is
// single-use: configure (selector, heap model, plugins) before Solve,
// then Solve drains the worklist to a fixpoint and freezes the result.
type Solver struct {
	prog     *ir.Program
	opts     Options
	selector Selector
	pool     contextPool
	heap     HeapModel
	csm      *CSManager
	cg       *CallGraph
	plugins  bus

	work       queue.Queue[workItem]
	methodSeen map[*ir.Method]bool

	// useDelta distinguishes the default solver (incremental delta
	// propagation) from the simple reference solver, which re-propagates
	// full sets and exists for cross-checking.
	useDelta bool

	started bool
	frozen  bool
	fatal   error
}

type workItem struct {
	p     *Pointer
	delta *PTSet
}

// NewSolver validates the options and the program and prepares a solver.
func NewSolver(prog *ir.Program, opts Options) (*Solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := prog.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrontEnd, err)
	}

	selector, err := ParseCS(opts.CS)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		prog:       prog,
		opts:       opts,
		selector:   selector,
		csm:        newCSManager(),
		cg:         newCallGraph(),
		methodSeen: make(map[*ir.Method]bool),
		useDelta:   opts.Solver == SolverDefault,
	}
	s.heap = newAllocSiteHeap(opts, prog.Hierarchy)
	s.plugins.s = s
	return s, nil
}

// Register appends plugins to the bus. Hooks fire in registration order;
// the order is observable but the fixpoint does not depend on it.
func (s *Solver) Register(plugins ...Plugin) {
	if s.started {
		panic(fmt.Errorf("%w: plugin registered after solve started", ErrInternal))
	}
	s.plugins.plugins = append(s.plugins.plugins, plugins...)
}

// Accessors used by plugins and the result view.

func (s *Solver) Program() *ir.Program     { return s.prog }
func (s *Solver) Hierarchy() *ir.Hierarchy { return s.prog.Hierarchy }
func (s *Solver) Options() Options         { return s.opts }
func (s *Solver) Heap() HeapModel          { return s.heap }
func (s *Solver) CSManager() *CSManager    { return s.csm }
func (s *Solver) CallGraph() *CallGraph    { return s.cg }

// EmptyContext returns the distinguished insensitive context.
func (s *Solver) EmptyContext() *Context { return s.pool.Empty() }

// Abort marks the analysis as failed with a fatal error. The error is
// surfaced after the current worklist pop completes, leaving solver
// invariants intact.
func (s *Solver) Abort(err error) {
	if s.fatal == nil {
		s.fatal = err
	}
}

// Solve runs the analysis to its fixpoint. Cancellation of ctx (or expiry
// of the configured timeout) is checked between worklist pops and
// surfaces as ErrCancelled; the partial state is not freezable.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	if s.started {
		return nil, fmt.Errorf("%w: solver is single-use", ErrInternal)
	}
	s.started = true

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	log.WithFields(log.Fields{
		"cs":     s.selector.Name(),
		"solver": s.opts.Solver,
	}).Info("Starting pointer analysis... ")

	s.plugins.onStart()

	for _, m := range s.prog.Entries {
		s.MarkReachable(s.pool.Empty(), m)
	}

	pops := 0
	for !s.work.Empty() {
		if err := ctx.Err(); err != nil {
			log.Warn("Pointer analysis cancelled after ", pops, " worklist pops. ")
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		it := s.work.Pop()
		pops++
		s.propagate(it.p, it.delta)
		s.plugins.onNewPointsToSet(it.p, it.delta)

		if s.fatal != nil {
			return nil, s.fatal
		}
	}

	s.plugins.onFinish()
	if s.fatal != nil {
		return nil, s.fatal
	}
	s.frozen = true

	log.WithFields(log.Fields{
		"pops":      pops,
		"reachable": len(s.cg.Reachable()),
		"objects":   s.heap.NumObjs(),
	}).Info("Pointer analysis reached fixpoint. ")

	return &Result{csm: s.csm, cg: s.cg, heap: s.heap, opts: s.opts}, nil
}

// propagate pushes a delta across the outgoing edges of p and, for
// receiver variables, materializes the per-object edges and pending calls
// the delta enables.
func (s *Solver) propagate(p *Pointer, delta *PTSet) {
	log.Tracef("propagate %v += %v", p, delta)

	// Edges appended during the loop are flushed with the full current
	// set at insertion, so the snapshot taken by range is sufficient.
	for _, e := range p.edges {
		s.propagateAlong(e, delta)
	}

	if p.Kind == PVar && p.hooks != nil {
		delta.ForEach(func(id ObjID) {
			o := s.heap.ObjByID(id)
			h := p.hooks
			for _, cs := range h.invokes {
				s.processCall(cs, o)
			}
			for _, ld := range h.loads {
				s.AddPFGEdge(s.csm.InstanceField(o, ld.Field),
					s.csm.CSVar(p.Ctx, ld.To), EdgeLoad, nil)
			}
			for _, st := range h.stores {
				s.AddPFGEdge(s.csm.CSVar(p.Ctx, st.From),
					s.csm.InstanceField(o, st.Field), EdgeStore, nil)
			}
			for _, ld := range h.aloads {
				s.AddPFGEdge(s.csm.ArrayIndex(o),
					s.csm.CSVar(p.Ctx, ld.To), EdgeArrayLoad, nil)
			}
			for _, st := range h.astores {
				s.AddPFGEdge(s.csm.CSVar(p.Ctx, st.From),
					s.csm.ArrayIndex(o), EdgeArrayStore, nil)
			}
		})
	}
}

func (s *Solver) propagateAlong(e Edge, delta *PTSet) {
	if e.Filter == nil {
		s.addPointsTo(e.Target, delta)
		return
	}
	if filtered := s.filter(delta, e.Filter); filtered != nil {
		s.addPointsTo(e.Target, filtered)
	}
}

// filter restricts the set to objects whose type is a subtype of typ.
// Returns nil when no object passes.
func (s *Solver) filter(set *PTSet, typ ir.Type) *PTSet {
	var filtered *PTSet
	set.ForEach(func(id ObjID) {
		if ir.Subtype(s.heap.ObjByID(id).Type, typ) {
			if filtered == nil {
				filtered = new(PTSet)
			}
			filtered.Add(id)
		}
	})
	return filtered
}

// AddPFGEdge inserts a pointer-flow edge. A newly inserted edge with a
// non-empty source set immediately enqueues the (filtered) current set at
// the target, so edge addition and delta propagation commute.
func (s *Solver) AddPFGEdge(src, dst *Pointer, kind EdgeKind, filter ir.Type) {
	if !src.addEdge(Edge{Target: dst, Kind: kind, Filter: filter}) {
		return
	}
	if !src.pts.IsEmpty() {
		s.propagateAlong(Edge{Target: dst, Kind: kind, Filter: filter}, &src.pts)
	}
}

// AddPointsTo adds objects into the points-to set of p, scheduling
// propagation of whatever was new.
func (s *Solver) AddPointsTo(p *Pointer, objs ...*Obj) {
	var set PTSet
	for _, o := range objs {
		set.Add(o.ID)
	}
	s.addPointsTo(p, &set)
}

func (s *Solver) addPointsTo(p *Pointer, set *PTSet) {
	if s.frozen {
		panic(fmt.Errorf("%w: points-to update after freeze", ErrInternal))
	}

	delta := p.pts.AddAll(set)
	if delta == nil {
		return
	}
	if !s.useDelta {
		// Reference solver: re-propagate the full set instead of the
		// increment.
		delta = p.pts.Copy()
	}
	s.work.Push(workItem{p: p, delta: delta})
}

// MarkReachable interns (m, ctx) and, the first time, records it in the
// call graph, broadcasts the discovery hooks and processes the method
// body. Plugins use it to simulate implicit calls.
func (s *Solver) MarkReachable(ctx *Context, m *ir.Method) *CSMethod {
	cm := s.csm.CSMethod(ctx, m)
	if cm.reachable {
		return cm
	}
	cm.reachable = true
	s.cg.addReachable(cm)
	log.Debugf("reachable: %v", cm)

	if !s.methodSeen[m] {
		s.methodSeen[m] = true
		s.plugins.onNewMethod(m)
	}
	s.plugins.onNewCSMethod(cm)

	if s.opts.OnlyApp && !m.Class.Application {
		// Library bodies are not expanded under only-app confinement.
		return cm
	}
	s.processMethod(cm)
	return cm
}

// processMethod materializes the statement-derived constraints of a
// newly reachable context-sensitive method.
func (s *Solver) processMethod(cm *CSMethod) {
	ctx := cm.Ctx
	for _, st := range cm.Method.Body {
		switch st := st.(type) {
		case *ir.New:
			hctx := s.selector.SelectHeapContext(&s.pool, ctx, st.Site)
			o := s.heap.Obj(st.Site, hctx)
			s.AddPointsTo(s.csm.CSVar(ctx, st.Result), o)

		case *ir.Copy:
			s.AddPFGEdge(s.csm.CSVar(ctx, st.From), s.csm.CSVar(ctx, st.To),
				EdgeCopy, nil)

		case *ir.Cast:
			s.AddPFGEdge(s.csm.CSVar(ctx, st.From), s.csm.CSVar(ctx, st.To),
				EdgeCast, st.Type)

		case *ir.LoadField:
			if st.Base == nil || st.Field.Static {
				s.AddPFGEdge(s.csm.StaticField(st.Field),
					s.csm.CSVar(ctx, st.To), EdgeStaticLoad, nil)
			} else {
				s.registerLoadHook(s.csm.CSVar(ctx, st.Base), st)
			}

		case *ir.StoreField:
			if st.Base == nil || st.Field.Static {
				s.AddPFGEdge(s.csm.CSVar(ctx, st.From),
					s.csm.StaticField(st.Field), EdgeStaticStore, nil)
			} else {
				s.registerStoreHook(s.csm.CSVar(ctx, st.Base), st)
			}

		case *ir.LoadArray:
			s.registerArrayLoadHook(s.csm.CSVar(ctx, st.Base), st)

		case *ir.StoreArray:
			s.registerArrayStoreHook(s.csm.CSVar(ctx, st.Base), st)

		case *ir.Invoke:
			cs := s.csm.CSCallSite(cm, st)
			switch st.Kind {
			case ir.CallStatic:
				callee := st.Ref.Resolve()
				if callee == nil {
					s.plugins.onUnresolvedCall(nil, cs)
					continue
				}
				cctx := s.selector.SelectContext(&s.pool, cs, nil)
				s.AddCallEdge(cs, s.csm.CSMethod(cctx, callee), st.Kind)

			case ir.CallDynamic:
				s.plugins.onUnresolvedCall(nil, cs)

			default:
				s.registerInvokeHook(s.csm.CSVar(ctx, st.Base), cs)
			}

		case *ir.Return, *ir.Throw, *ir.Catch:
			// Returns are wired per call edge; exceptional flow is a
			// plugin concern.
		}
	}
}

// Hook registration applies the hook to the receiver's current points-to
// set immediately, which keeps registration and propagation commutative.

func (s *Solver) registerInvokeHook(recv *Pointer, cs *CSCallSite) {
	recv.varHooks().invokes = append(recv.hooks.invokes, cs)
	recv.pts.ForEach(func(id ObjID) { s.processCall(cs, s.heap.ObjByID(id)) })
}

func (s *Solver) registerLoadHook(base *Pointer, st *ir.LoadField) {
	base.varHooks().loads = append(base.hooks.loads, st)
	base.pts.ForEach(func(id ObjID) {
		s.AddPFGEdge(s.csm.InstanceField(s.heap.ObjByID(id), st.Field),
			s.csm.CSVar(base.Ctx, st.To), EdgeLoad, nil)
	})
}

func (s *Solver) registerStoreHook(base *Pointer, st *ir.StoreField) {
	base.varHooks().stores = append(base.hooks.stores, st)
	base.pts.ForEach(func(id ObjID) {
		s.AddPFGEdge(s.csm.CSVar(base.Ctx, st.From),
			s.csm.InstanceField(s.heap.ObjByID(id), st.Field), EdgeStore, nil)
	})
}

func (s *Solver) registerArrayLoadHook(base *Pointer, st *ir.LoadArray) {
	base.varHooks().aloads = append(base.hooks.aloads, st)
	base.pts.ForEach(func(id ObjID) {
		s.AddPFGEdge(s.csm.ArrayIndex(s.heap.ObjByID(id)),
			s.csm.CSVar(base.Ctx, st.To), EdgeArrayLoad, nil)
	})
}

func (s *Solver) registerArrayStoreHook(base *Pointer, st *ir.StoreArray) {
	base.varHooks().astores = append(base.hooks.astores, st)
	base.pts.ForEach(func(id ObjID) {
		s.AddPFGEdge(s.csm.CSVar(base.Ctx, st.From),
			s.csm.ArrayIndex(s.heap.ObjByID(id)), EdgeArrayStore, nil)
	})
}

// processCall resolves an instance call for one receiver object and wires
// the resulting call edge.
func (s *Solver) processCall(cs *CSCallSite, recv *Obj) {
	iv := cs.Site

	var callee *ir.Method
	switch iv.Kind {
	case ir.CallVirtual, ir.CallInterface:
		callee = ir.Dispatch(recv.Type, iv.Ref)
	case ir.CallSpecial:
		callee = iv.Ref.Resolve()
	default:
		return
	}

	if callee == nil {
		s.plugins.onUnresolvedCall(recv, cs)
		return
	}

	cctx := s.selector.SelectContext(&s.pool, cs, recv)
	csCallee := s.csm.CSMethod(cctx, callee)

	s.AddCallEdge(cs, csCallee, iv.Kind)

	// Every dispatching receiver flows into this, also when the edge
	// already existed for an earlier object.
	if callee.This != nil {
		s.AddPointsTo(s.csm.CSVar(cctx, callee.This), recv)
	}
}

// AddCallEdge records a call edge. The first insertion marks the callee
// reachable, broadcasts the discovery and wires the argument, parameter
// and return edges. Plugins use it for synthetic dispatches.
func (s *Solver) AddCallEdge(cs *CSCallSite, callee *CSMethod, kind ir.CallKind) {
	e := &CallEdge{Site: cs, Callee: callee, Kind: kind}
	if !s.cg.addEdge(e) {
		return
	}
	log.Debugf("call edge: %v -> %v", cs, callee)
	s.plugins.onNewCallEdge(e)
	s.MarkReachable(callee.Ctx, callee.Method)

	iv := cs.Site
	m := callee.Method
	for i, arg := range iv.Args {
		if i < len(m.Params) {
			s.AddPFGEdge(s.csm.CSVar(cs.Ctx, arg),
				s.csm.CSVar(callee.Ctx, m.Params[i]), EdgeParam, nil)
		}
	}
	if iv.Result != nil {
		for _, r := range m.Rets {
			s.AddPFGEdge(s.csm.CSVar(callee.Ctx, r),
				s.csm.CSVar(cs.Ctx, iv.Result), EdgeReturn, nil)
		}
	}
}

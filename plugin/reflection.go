package plugin

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/segmentio/fasthash/fnv1a"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// Reflection resolves reflective call sites. Two strategies are
// available: propagation of string constants into Class.forName and
// Class.newInstance, and replay of an externally recorded resolution log
// mapping call sites to their observed targets.
type Reflection struct {
	pta.NopPlugin

	inference string
	s         *pta.Solver

	// forNameSites maps the argument pointer of a reachable forName call
	// to the call sites consuming it.
	forNameSites map[*pta.Pointer][]*pta.CSCallSite
	// classObjs maps synthetic java.lang.Class objects to the class they
	// reify.
	classObjs map[*pta.Obj]*ir.Class

	// logEntries maps "method\tindex" of a call site to target methods.
	logEntries map[logKey][]string
}

type logKey struct {
	method string
	index  int
}

func NewReflection(inference, logPath string) (*Reflection, error) {
	r := &Reflection{
		inference:    inference,
		forNameSites: make(map[*pta.Pointer][]*pta.CSCallSite),
		classObjs:    make(map[*pta.Obj]*ir.Class),
	}
	if logPath != "" {
		if err := r.loadLog(logPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// loadLog parses a tab-separated reflection log: one line per resolved
// call, `<containing method>\t<statement index>\t<class>#<method>`, where
// the statement index is the position of the call in the containing
// method's body. Duplicate lines are dropped by hash.
func (r *Reflection) loadLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading reflection log: %w", err)
	}
	defer f.Close()

	r.logEntries = make(map[logKey][]string)
	seen := make(map[uint64]bool)

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if h := fnv1a.HashString64(line); seen[h] {
			continue
		} else {
			seen[h] = true
		}

		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			log.Warn("Malformed reflection log line: ", line)
			continue
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			log.Warn("Malformed reflection log index: ", line)
			continue
		}
		key := logKey{method: parts[0], index: idx}
		r.logEntries[key] = append(r.logEntries[key], parts[2])
	}
	return sc.Err()
}

func (r *Reflection) OnStart(s *pta.Solver) {
	r.s = s
}

func (r *Reflection) OnNewCSMethod(cm *pta.CSMethod) {
	// Both inference strategies (string-constant and solar) resolve the
	// same way, through propagated string constants. A loaded log is
	// replayed under every strategy, including off.
	if r.inference != pta.ReflectionOff {
		r.registerForNameSites(cm)
	}
	if r.logEntries != nil {
		r.replayLog(cm)
	}
}

func (r *Reflection) registerForNameSites(cm *pta.CSMethod) {
	for _, st := range cm.Method.Body {
		iv, ok := st.(*ir.Invoke)
		if !ok || iv.Kind != ir.CallStatic || len(iv.Args) == 0 {
			continue
		}
		if iv.Ref.Name != ForNameMethodName || iv.Ref.Class.Name != ClassClassName {
			continue
		}

		cs := r.s.CSManager().CSCallSite(cm, iv)
		arg := r.s.CSManager().CSVar(cm.Ctx, iv.Args[0])
		r.forNameSites[arg] = append(r.forNameSites[arg], cs)
		arg.PointsTo().ForEach(func(id pta.ObjID) {
			r.resolveForName(cs, r.s.Heap().ObjByID(id))
		})
	}
}

func (r *Reflection) OnNewPointsToSet(p *pta.Pointer, delta *pta.PTSet) {
	sites := r.forNameSites[p]
	if len(sites) == 0 {
		return
	}
	delta.ForEach(func(id pta.ObjID) {
		o := r.s.Heap().ObjByID(id)
		for _, cs := range sites {
			r.resolveForName(cs, o)
		}
	})
}

// resolveForName turns a string constant flowing into Class.forName into
// the reified class object, triggering class initialization.
func (r *Reflection) resolveForName(cs *pta.CSCallSite, o *pta.Obj) {
	site := o.Site
	if site == nil || !site.IsConst {
		return
	}
	cls := r.s.Hierarchy().Lookup(site.StringConst)
	if cls == nil {
		log.Debug("Class.forName of unknown class ", site.StringConst)
		return
	}

	if clinit := cls.Clinit(); clinit != nil {
		r.s.MarkReachable(r.s.EmptyContext(), clinit)
	}

	if res := cs.Site.Result; res != nil {
		var classType ir.Type = cls
		if cc := r.s.Hierarchy().Lookup(ClassClassName); cc != nil {
			classType = cc
		}
		classObj := r.s.Heap().MockObj("class "+cls.Name, classType)
		r.classObjs[classObj] = cls
		r.s.AddPointsTo(r.s.CSManager().CSVar(cs.Ctx, res), classObj)
	}
}

// OnUnresolvedCall models Class.newInstance on reified class objects:
// the result points to a synthetic instance whose constructor becomes
// reachable.
func (r *Reflection) OnUnresolvedCall(recv *pta.Obj, cs *pta.CSCallSite) {
	if recv == nil || cs.Site.Ref.Name != NewInstanceMethodName {
		return
	}
	cls, found := r.classObjs[recv]
	if !found {
		return
	}

	obj := r.s.Heap().MockObj("reflective instance of "+cls.Name, cls)
	if res := cs.Site.Result; res != nil {
		r.s.AddPointsTo(r.s.CSManager().CSVar(cs.Ctx, res), obj)
	}

	if init := cls.Method(ir.InitName); init != nil {
		cm := r.s.MarkReachable(r.s.EmptyContext(), init)
		if init.This != nil {
			r.s.AddPointsTo(r.s.CSManager().CSVar(cm.Ctx, init.This), obj)
		}
	}
}

// replayLog adds the logged call edges for the call sites of a newly
// reachable method.
func (r *Reflection) replayLog(cm *pta.CSMethod) {
	for i, st := range cm.Method.Body {
		iv, ok := st.(*ir.Invoke)
		if !ok {
			continue
		}
		targets := r.logEntries[logKey{method: cm.Method.String(), index: i}]
		for _, target := range targets {
			clsName, mName, found := strings.Cut(target, "#")
			if !found {
				log.Warn("Malformed reflection log target: ", target)
				continue
			}
			cls := r.s.Hierarchy().Lookup(clsName)
			if cls == nil {
				continue
			}
			callee := cls.Method(mName)
			if callee == nil {
				continue
			}

			cs := r.s.CSManager().CSCallSite(cm, iv)
			csCallee := r.s.CSManager().CSMethod(r.s.EmptyContext(), callee)
			r.s.AddCallEdge(cs, csCallee, ir.CallDynamic)
		}
	}
}

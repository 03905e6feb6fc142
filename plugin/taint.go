package plugin

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/segmentio/fasthash/fnv1a"
	"gopkg.in/yaml.v3"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/ir"
)

// TaintConfig is the YAML taint specification.
type TaintConfig struct {
	// Sources are methods whose results carry taint.
	Sources []TaintSource `yaml:"sources"`
	// Sinks are methods whose designated argument must not be tainted.
	Sinks []TaintSink `yaml:"sinks"`
	// Transfers are methods propagating taint between their operands.
	Transfers []TaintTransfer `yaml:"transfers"`
}

// TaintSource names a source method; the optional type overrides the
// type of the generated taint objects.
type TaintSource struct {
	Method string `yaml:"method"`
	Type   string `yaml:"type"`
}

// TaintSink names a sink method and the zero-based argument index checked
// for taint.
type TaintSink struct {
	Method string `yaml:"method"`
	Index  int    `yaml:"index"`
}

// TaintTransfer names a method forwarding taint from an argument
// (From >= 0) or the receiver (From == -1) to its result.
type TaintTransfer struct {
	Method string `yaml:"method"`
	From   int    `yaml:"from"`
}

// Finding is a source-to-sink flow discovered by the taint analysis.
type Finding struct {
	Source string
	Sink   *pta.CSCallSite
	Index  int
}

func (f Finding) String() string {
	return fmt.Sprintf("taint from %s reaches arg %d of %v", f.Source, f.Index, f.Sink)
}

// Taint marks the results of configured source methods with synthetic
// taint objects, propagates them through the points-to relation (and the
// configured transfer methods) and reports the sink arguments they reach.
type Taint struct {
	pta.NopPlugin

	cfg TaintConfig
	s   *pta.Solver

	sources   map[string]TaintSource
	sinks     map[string][]TaintSink
	transfers map[string][]TaintTransfer

	// taintObjs maps taint objects to the description of their source.
	taintObjs map[*pta.Obj]string
	// sinkArgs are the argument pointers to check at the end of the
	// analysis.
	sinkArgs []sinkArg

	findings []Finding
	seen     map[uint64]bool
}

type sinkArg struct {
	arg   *pta.Pointer
	site  *pta.CSCallSite
	index int
}

func NewTaint(cfg TaintConfig) *Taint {
	t := &Taint{
		cfg:       cfg,
		sources:   make(map[string]TaintSource),
		sinks:     make(map[string][]TaintSink),
		transfers: make(map[string][]TaintTransfer),
		taintObjs: make(map[*pta.Obj]string),
		seen:      make(map[uint64]bool),
	}
	for _, s := range cfg.Sources {
		t.sources[s.Method] = s
	}
	for _, s := range cfg.Sinks {
		t.sinks[s.Method] = append(t.sinks[s.Method], s)
	}
	for _, tr := range cfg.Transfers {
		t.transfers[tr.Method] = append(t.transfers[tr.Method], tr)
	}
	return t
}

// NewTaintFromFile loads the YAML taint specification at path.
func NewTaintFromFile(path string) (*Taint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taint config: %w", err)
	}
	var cfg TaintConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing taint config: %w", err)
	}
	return NewTaint(cfg), nil
}

func (t *Taint) OnStart(s *pta.Solver) {
	t.s = s
}

func (t *Taint) OnNewCallEdge(e *pta.CallEdge) {
	callee := e.Callee.Method.String()
	iv := e.Site.Site
	csm := t.s.CSManager()

	if src, found := t.sources[callee]; found && iv.Result != nil {
		typ := t.taintType(src, iv.Result)
		desc := fmt.Sprintf("taint %v", e.Site)
		obj := t.s.Heap().MockObj(desc, typ)
		t.taintObjs[obj] = e.Site.String()
		t.s.AddPointsTo(csm.CSVar(e.Site.Ctx, iv.Result), obj)
	}

	for _, sink := range t.sinks[callee] {
		if sink.Index < len(iv.Args) {
			t.sinkArgs = append(t.sinkArgs, sinkArg{
				arg:   csm.CSVar(e.Site.Ctx, iv.Args[sink.Index]),
				site:  e.Site,
				index: sink.Index,
			})
		}
	}

	for _, tr := range t.transfers[callee] {
		if iv.Result == nil {
			continue
		}
		var from *ir.Var
		if tr.From < 0 {
			from = iv.Base
		} else if tr.From < len(iv.Args) {
			from = iv.Args[tr.From]
		}
		if from != nil {
			t.s.AddPFGEdge(csm.CSVar(e.Site.Ctx, from),
				csm.CSVar(e.Site.Ctx, iv.Result), pta.EdgeCopy, nil)
		}
	}
}

func (t *Taint) taintType(src TaintSource, res *ir.Var) ir.Type {
	if src.Type != "" {
		if cls := t.s.Hierarchy().Lookup(src.Type); cls != nil {
			return cls
		}
	}
	if res.Type != nil {
		return res.Type
	}
	return t.s.Hierarchy().Lookup(ObjectClassName)
}

func (t *Taint) OnFinish(*pta.Solver) {
	for _, sa := range t.sinkArgs {
		sa.arg.PointsTo().ForEach(func(id pta.ObjID) {
			o := t.s.Heap().ObjByID(id)
			src, tainted := t.taintObjs[o]
			if !tainted {
				return
			}

			key := fnv1a.HashString64(fmt.Sprintf("%s\x00%v\x00%d", src, sa.site, sa.index))
			if t.seen[key] {
				return
			}
			t.seen[key] = true

			f := Finding{Source: src, Sink: sa.site, Index: sa.index}
			t.findings = append(t.findings, f)
			log.Warn("Taint flow: ", f, ". ")
		})
	}
}

// Findings returns the discovered source-to-sink flows in discovery
// order.
func (t *Taint) Findings() []Finding { return t.findings }

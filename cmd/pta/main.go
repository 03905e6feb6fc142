package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/owenrumney/go-sarif/sarif"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/polaris-analysis/pta"
	"github.com/polaris-analysis/pta/plugin"
	"github.com/polaris-analysis/pta/progutil"
)

var (
	opts      = pta.DefaultOptions()
	timeout   time.Duration
	sarifPath string
	printPTS  bool
	verbose   bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "pta <program.yml>",
		Short: "Context-sensitive pointer analysis",
		Long: "pta runs a whole-program, context-sensitive pointer analysis over a\n" +
			"YAML program description and reports points-to sets, the call graph\n" +
			"and taint findings.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.CS, "cs", opts.CS,
		"context sensitivity: ci, k-call, k-obj or k-type (k in 1..9)")
	flags.StringVar(&opts.Solver, "solver", opts.Solver,
		"solver variant: default or simple")
	flags.BoolVar(&opts.OnlyApp, "only-app", false,
		"confine discovery to application classes")
	flags.BoolVar(&opts.DistinguishStringConstants, "distinguish-string-constants", false,
		"one abstract object per string literal")
	flags.BoolVar(&opts.MergeStringObjects, "merge-string-objects", false,
		"coalesce string allocations")
	flags.BoolVar(&opts.MergeStringBuilders, "merge-string-builders", false,
		"coalesce string builder allocations")
	flags.BoolVar(&opts.MergeExceptionObjects, "merge-exception-objects", false,
		"coalesce exception allocations by type")
	flags.StringVar(&opts.TaintConfig, "taint-config", "",
		"taint specification; enables the taint plugin")
	flags.StringVar(&opts.ReflectionInference, "reflection-inference", opts.ReflectionInference,
		"reflection strategy: off, string-constant or solar")
	flags.StringVar(&opts.ReflectionLog, "reflection-log", "",
		"externally recorded reflection resolution log")
	flags.DurationVar(&timeout, "timeout", 0, "wall-clock budget, e.g. 30s")
	flags.StringVar(&sarifPath, "sarif", "", "write taint findings as SARIF to `file`")
	flags.BoolVar(&printPTS, "print-pts", false, "print per-variable points-to sets")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pta:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	opts.Timeout = timeout

	prog, err := progutil.LoadProgramFile(path)
	if err != nil {
		return err
	}

	solver, err := pta.NewSolver(prog, opts)
	if err != nil {
		return err
	}

	set, err := plugin.RegisterDefaults(solver)
	if err != nil {
		return err
	}

	res, err := solver.Solve(context.Background())
	if err != nil {
		return err
	}

	report(res, set)

	if sarifPath != "" && set.Taint != nil {
		if err := writeSarif(sarifPath, set.Taint.Findings()); err != nil {
			return err
		}
	}

	if set.Taint != nil && len(set.Taint.Findings()) > 0 {
		return fmt.Errorf("%d taint flows found", len(set.Taint.Findings()))
	}
	return nil
}

func report(res *pta.Result, set *plugin.Set) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)

	cg := res.CallGraph()
	header.Println("Call graph")
	fmt.Printf("  %d reachable methods (%d with context), %d edges\n",
		len(cg.ReachableMethods()), len(cg.Reachable()), len(cg.Edges()))
	for _, e := range cg.MethodEdges() {
		fmt.Printf("  %v --%v--> %v\n", e.Site, e.Kind, e.Callee)
	}

	if printPTS {
		header.Println("Points-to sets")
		for _, p := range res.Vars() {
			objs := res.PointsTo(p)
			if len(objs) == 0 {
				continue
			}
			fmt.Printf("  %v -> {", p)
			for i, o := range objs {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Printf("%v", o)
			}
			fmt.Println("}")
		}
	}

	if set.Taint != nil {
		header.Println("Taint")
		findings := set.Taint.Findings()
		if len(findings) == 0 {
			good.Println("  no taint flows")
		}
		for _, f := range findings {
			bad.Printf("  %v\n", f)
		}
	}
}

func writeSarif(path string, findings []plugin.Finding) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}

	run := sarif.NewRun("pta", "https://github.com/polaris-analysis/pta")
	run.AddRule("taint-flow").
		WithDescription("Tainted data reaches a sink")
	for _, f := range findings {
		run.AddResult("taint-flow").
			WithLevel("error").
			WithMessage(sarif.NewTextMessage(f.String())).
			WithLocation(sarif.NewLocationWithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewSimpleArtifactLocation(f.Sink.Site.In.String())).
					WithRegion(sarif.NewSimpleRegion(1, 1)),
			))
	}
	report.AddRun(run)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.PrettyWrite(f)
}

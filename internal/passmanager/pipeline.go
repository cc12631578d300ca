// Package passmanager drives the transform passes to a fixed point
// over every function in an ssa.Module, recomputing invalidated
// analyses between passes through the shared analysis.Cache.
package passmanager

import (
	"fmt"

	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
	"rvcc/internal/transform"
)

// OptLevel selects which pass list Pipeline.Run drives to a fixed point.
type OptLevel int

const (
	O0 OptLevel = iota
	O1
)

// Pipeline manages an ordered sequence of transform.Pass values.
type Pipeline struct {
	passes []transform.Pass
	// MaxIterations bounds the fixed-point loop per function, guarding
	// against a pass pair that reports "changed" forever.
	MaxIterations int
}

// NewPipeline builds the ordered pass list for level. O0 returns an
// empty pipeline: no optimization, straight to lowering.
func NewPipeline(level OptLevel) *Pipeline {
	p := &Pipeline{MaxIterations: 20}
	if level == O0 {
		return p
	}

	p.AddPass(transform.StandardizeBinary{})
	p.AddPass(transform.Mem2Reg{})
	p.AddPass(transform.LoopSimplifyForm{})
	p.AddPass(transform.LCSSA{})
	p.AddPass(transform.LICM{})
	p.AddPass(transform.InductionVariables{})
	p.AddPass(transform.ConstLoopUnroll{MaxExpansion: 8})
	p.AddPass(transform.LoopUnroll{Factor: 4})
	p.AddPass(transform.LoopUnswitch{})
	p.AddPass(transform.DeadInstEliminate{})

	return p
}

// AddPass appends a pass to the pipeline.
func (p *Pipeline) AddPass(pass transform.Pass) {
	p.passes = append(p.passes, pass)
}

// Run drives every pass, per function, to a fixed point: each
// function is re-walked through the whole pass list until a full
// iteration leaves it unchanged, or MaxIterations is hit.
func (p *Pipeline) Run(m *ssa.Module, cache *analysis.Cache) {
	fmt.Printf("Running %d optimization passes...\n", len(p.passes))

	for _, fn := range m.Funcs {
		if fn.Blocks == nil {
			continue // declaration only, no body to optimize
		}
		p.runFunction(fn, cache)
	}
}

func (p *Pipeline) runFunction(fn *ssa.Function, cache *analysis.Cache) {
	for iter := 0; iter < p.MaxIterations; iter++ {
		anyChanged := false
		for _, pass := range p.passes {
			if pass.Run(fn, cache) {
				fmt.Printf("  - %s: changed %s\n", pass.Name(), fn.Name)
				anyChanged = true
			}
		}
		if !anyChanged {
			return
		}
	}
}

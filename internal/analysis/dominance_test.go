package analysis

import (
	"testing"

	"rvcc/internal/ssa"
)

// buildDiamond builds A -> {B, C} -> D and returns the blocks.
func buildDiamond(t *testing.T) (fn *ssa.Function, a, b, c, d *ssa.Block) {
	t.Helper()
	m := ssa.NewModule()
	fn = m.NewFunction("diamond", m.Types.Void(), nil, false)
	a = fn.NewBlock("A")
	b = fn.NewBlock("B")
	c = fn.NewBlock("C")
	d = fn.NewBlock("D")

	ssa.At(a).Branch(m.ConstBool(true), b, c)
	ssa.At(b).Jump(d)
	ssa.At(c).Jump(d)
	ssa.At(d).Ret(nil)
	fn.RefreshCFG()
	return
}

func TestDominanceDiamond(t *testing.T) {
	fn, a, b, c, d := buildDiamond(t)
	dom := computeDominance(fn)

	if dom.IDom(b) != a {
		t.Errorf("expected idom(B) = A")
	}
	if dom.IDom(c) != a {
		t.Errorf("expected idom(C) = A")
	}
	if dom.IDom(d) != a {
		t.Errorf("expected idom(D) = A")
	}

	fb := dom.Frontier(b)
	if len(fb) != 1 || fb[0] != d {
		t.Errorf("expected dominance_frontier(B) = {D}, got %v", fb)
	}
	fc := dom.Frontier(c)
	if len(fc) != 1 || fc[0] != d {
		t.Errorf("expected dominance_frontier(C) = {D}, got %v", fc)
	}

	// Round-trip check: idom(B) is one of the blocks returned by
	// dominators(B).
	for _, blk := range []*ssa.Block{b, c, d} {
		doms := dom.Dominators(blk)
		found := false
		for _, x := range doms {
			if x == dom.IDom(blk) {
				found = true
			}
		}
		if !found {
			t.Errorf("idom(%s) not in dominators(%s)", blk.Label, blk.Label)
		}
	}
}

func TestLoopForestSimple(t *testing.T) {
	m := ssa.NewModule()
	fn := m.NewFunction("loopy", m.Types.Void(), nil, false)
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")

	ssa.At(entry).Jump(header)
	ssa.At(header).Branch(m.ConstBool(true), body, exit)
	ssa.At(body).Jump(header)
	ssa.At(exit).Ret(nil)
	fn.RefreshCFG()

	dom := computeDominance(fn)
	lf := computeLoopForest(fn, dom)

	if len(lf.Top) != 1 {
		t.Fatalf("expected exactly one top-level loop, got %d", len(lf.Top))
	}
	loop := lf.Top[0]
	if loop.Header != header {
		t.Errorf("expected loop header to be 'header' block")
	}
	if !loop.Contains(body) {
		t.Errorf("expected loop to contain body block")
	}
	if len(loop.Exits) != 1 || loop.Exits[0] != exit {
		t.Errorf("expected loop exit to be 'exit' block")
	}
}

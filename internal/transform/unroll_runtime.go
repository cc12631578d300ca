package transform

import (
	"fmt"
	"strings"

	"rvcc/internal/analysis"
	"rvcc/internal/ssa"
)

// LoopUnroll unrolls an innermost loop whose trip count is only known
// at run time. The iteration space is split into Factor-sized chunks:
// guard arithmetic derives a chunk-aligned bound from the loop's own
// exit comparison, a kernel loop executes Factor body copies
// back-to-back per test of that bound (the inner copies' exit checks
// collapse to plain jumps), and the original loop survives as the
// remainder, finishing the leftover iterations under its original
// condition.
type LoopUnroll struct {
	Factor int
}

func (LoopUnroll) Name() string { return "LoopUnroll" }

// maxKernelInstrs bounds kernel growth: a loop whose body times the
// unroll factor exceeds this stays rolled.
const maxKernelInstrs = 256

func (p LoopUnroll) Run(fn *ssa.Function, cache *analysis.Cache) bool {
	factor := p.Factor
	if factor <= 1 {
		factor = 4
	}
	lf := cache.Loops(fn)
	scev := cache.SCEV(fn)
	changed := false

	for _, l := range lf.AllLoops() {
		if len(l.Children) != 0 || l.Preheader == nil || l.Latch == nil {
			continue
		}
		if alreadyUnrolled(l) {
			continue
		}
		if unrollRuntime(fn, l, factor, scev) {
			changed = true
		}
	}

	if changed {
		fn.RefreshCFG()
		cache.SetDirty(fn)
	}
	return changed
}

// alreadyUnrolled reports whether l contains a block produced by a
// previous unroll of either flavor (a kernel copy or a tagged
// remainder). The label tag is the marker: without this check the
// fixed-point pipeline would re-unroll its own output every iteration
// and grow the function geometrically.
func alreadyUnrolled(l *analysis.Loop) bool {
	for _, b := range l.BlockSlice() {
		if strings.Contains(b.Label, ".unroll") {
			return true
		}
	}
	return false
}

// copyInfo is the per-iteration-copy bookkeeping used by unrollConst.
type copyInfo struct {
	header, latch *ssa.Block
	phis          []*ssa.Instruction
	blockMap      map[*ssa.Block]*ssa.Block
	valMap        map[*ssa.Instruction]ssa.Value
}

func buildCopies(fn *ssa.Function, l *analysis.Loop, count int, tag string) ([]*ssa.Instruction, []copyInfo) {
	basePhis := append([]*ssa.Instruction{}, l.Header.Phis()...)
	copies := make([]copyInfo, count)
	copies[0] = copyInfo{header: l.Header, latch: l.Latch, phis: basePhis}

	blocks := l.BlockSlice()
	for k := 1; k < count; k++ {
		bm, vm := cloneBlocks(fn, blocks, fmt.Sprintf("%s%d", tag, k), l.Preheader)
		phis := make([]*ssa.Instruction, len(basePhis))
		for i, p := range basePhis {
			phis[i] = vm[p].(*ssa.Instruction)
		}
		copies[k] = copyInfo{header: bm[l.Header], latch: bm[l.Latch], phis: phis, blockMap: bm, valMap: vm}
	}
	return basePhis, copies
}

// extendExitPhis gives every LCSSA exit Phi one incoming entry per
// extra copy, mirroring the value the original exiting predecessor
// supplied, so every copy's own (live) exit edge stays well-formed.
func extendExitPhis(l *analysis.Loop, copies []copyInfo) {
	for _, exitBlk := range l.Exits {
		for _, phi := range exitBlk.Phis() {
			for _, origExiting := range l.Exiting {
				origVal, ok := phi.IncomingFrom(origExiting)
				if !ok {
					continue
				}
				for k := 1; k < len(copies); k++ {
					exitingK, ok := copies[k].blockMap[origExiting]
					if !ok {
						continue
					}
					ssa.AddIncoming(phi, exitingK, remapThrough(origVal, copies[k].valMap))
				}
			}
		}
	}
}

// kernelCopy is one cloned loop body making up the unrolled kernel.
type kernelCopy struct {
	bm map[*ssa.Block]*ssa.Block
	vm map[*ssa.Instruction]ssa.Value
}

// unrollRuntime performs the kernel/remainder split on l, reporting
// whether the loop matched the required shape. On success the CFG is:
//
//	preheader -> K0.header (guarded by the chunk-aligned bound)
//	K0 body -> K1 ... -> K{U-1} body -> K0.header   (straight line)
//	K0.header exit edge -> original header            (the remainder)
//	original loop unchanged -> original exit
func unrollRuntime(fn *ssa.Function, l *analysis.Loop, factor int, scev *analysis.SCEVInfo) bool {
	// Shape: a single exit reached only from the header, whose
	// terminator compares a recognized induction Phi against a
	// run-time bound with an ordered predicate.
	if len(l.Exits) != 1 || len(l.Exiting) != 1 || l.Exiting[0] != l.Header {
		return false
	}
	exit := l.Exits[0]
	if len(exit.Preds) != 1 {
		return false
	}
	term := l.Header.Terminator()
	if term == nil || term.Op != ssa.OpBranch {
		return false
	}
	cond, ok := term.Operands[0].Value.(*ssa.Instruction)
	if !ok || cond.Op != ssa.OpIcmp {
		return false
	}
	if cond.Pred == ssa.PredEQ || cond.Pred == ssa.PredNE {
		return false
	}
	iv, ok := cond.Operands[0].Value.(*ssa.Instruction)
	if !ok || iv.Op != ssa.OpPhi || iv.Block != l.Header {
		return false
	}
	expr, ok := scev.Of(iv)
	if !ok || !expr.Valid || expr.Step == 0 {
		return false
	}
	switch cond.Pred {
	case ssa.PredLT, ssa.PredLE:
		if expr.Step <= 0 {
			return false
		}
	case ssa.PredGT, ssa.PredGE:
		if expr.Step >= 0 {
			return false
		}
	}
	bound := cond.Operands[1].Value
	if _, isConst := bound.(*ssa.ConstInt); isConst {
		return false // compile-time trip count: ConstLoopUnroll's job
	}
	size := 0
	for _, b := range l.BlockSlice() {
		size += len(b.Instructions)
	}
	if size*factor > maxKernelInstrs {
		return false
	}

	// A Phi whose latch value is itself never changes; fold it to its
	// initial value so the copies don't carry it around.
	for _, phi := range append([]*ssa.Instruction{}, l.Header.Phis()...) {
		if lv, ok := phi.IncomingFrom(l.Latch); ok && lv == ssa.Value(phi) {
			pv, _ := phi.IncomingFrom(l.Preheader)
			ssa.ReplaceAllUsesWith(phi, pv)
			phi.ClearOperands()
			l.Header.Remove(phi)
		}
	}
	basePhis := append([]*ssa.Instruction{}, l.Header.Phis()...)
	blocks := l.BlockSlice()

	// Clone the kernel copies. Copy 0 keeps its preheader Phi entries
	// (it is the kernel's own header); the inner copies drop them, as
	// their Phis are about to dissolve into straight-line values.
	copies := make([]kernelCopy, factor)
	for k := 0; k < factor; k++ {
		drop := l.Preheader
		if k == 0 {
			drop = nil
		}
		bm, vm := cloneBlocks(fn, blocks, fmt.Sprintf(".unroll%d", k), drop)
		copies[k] = kernelCopy{bm: bm, vm: vm}
	}
	k0Header := copies[0].bm[l.Header]

	// The preheader now enters the kernel, and the original header's
	// Phis take their values from the kernel header instead.
	l.Preheader.Terminator().RetargetTerminator(l.Header, k0Header)
	for _, phi := range basePhis {
		c0phi := copies[0].vm[phi].(*ssa.Instruction)
		phi.RemovePhiIncoming(l.Preheader)
		ssa.AddIncoming(phi, k0Header, c0phi)
	}

	installKernelGuard(fn, cond, copies[0], factor, expr)

	// The kernel's exit edge hands off to the remainder loop.
	c0branch := copies[0].vm[term].(*ssa.Instruction)
	c0branch.RetargetTerminator(exit, l.Header)

	// Straight-line the inner copies: each previous latch jumps into
	// the next copy, whose Phis become the previous copy's
	// end-of-iteration values and whose exit check becomes a Jump.
	for k := 1; k < factor; k++ {
		prev, cur := copies[k-1], copies[k]
		prev.bm[l.Latch].Terminator().RetargetTerminator(prev.bm[l.Header], cur.bm[l.Header])

		for _, phi := range basePhis {
			curPhi := cur.vm[phi].(*ssa.Instruction)
			latchVal, _ := phi.IncomingFrom(l.Latch)
			replacement := remapThrough(latchVal, prev.vm)
			ssa.ReplaceAllUsesWith(curPhi, replacement)
			curPhi.ClearOperands()
			cur.bm[l.Header].Remove(curPhi)
			cur.vm[phi] = replacement
		}

		curBr := cur.vm[term].(*ssa.Instruction)
		inSide := curBr.TrueBlock
		if inSide == exit {
			inSide = curBr.FalseBlock
		}
		blk := curBr.Block
		curBr.ClearOperands()
		blk.Remove(curBr)
		ssa.At(blk).Jump(inSide)
	}

	// Close the kernel's own back edge: the last copy's latch returns
	// to the kernel header with the last copy's updated values.
	last := copies[factor-1]
	last.bm[l.Latch].Terminator().RetargetTerminator(last.bm[l.Header], k0Header)
	for _, phi := range basePhis {
		c0phi := copies[0].vm[phi].(*ssa.Instruction)
		latchVal, _ := phi.IncomingFrom(l.Latch)
		c0phi.RemovePhiIncoming(copies[0].bm[l.Latch])
		ssa.AddIncoming(c0phi, last.bm[l.Latch], remapThrough(latchVal, last.vm))
	}

	// Tag the remainder (the original loop) so the next pipeline
	// iteration recognizes it as unroll residue.
	for _, b := range blocks {
		b.Label += ".unroll.rem"
	}
	return true
}

// installKernelGuard rewrites the kernel header's exit comparison to
// test against a chunk-aligned bound instead of the loop's own:
//
//	bound' = (N - init) / (factor*step) * (factor*step) + init - step
//
// so the kernel only admits iterations that have a full factor-sized
// chunk left; anything past bound' falls through to the remainder.
func installKernelGuard(fn *ssa.Function, cond *ssa.Instruction, k0 kernelCopy, factor int, expr *analysis.SCEVExpr) {
	m := fn.Module
	i32 := m.Types.I32()
	chunk := int64(factor) * expr.Step

	c0cond := k0.vm[cond].(*ssa.Instruction)
	c0iv := c0cond.Operands[0].Value
	n := c0cond.Operands[1].Value
	header := c0cond.Block

	ib := ssa.At(header)
	sub := ib.Binary(ssa.OpSub, i32, n, m.ConstInt(expr.Base))
	div := ib.Binary(ssa.OpDiv, i32, sub, m.ConstInt(chunk))
	mul := ib.Binary(ssa.OpMul, i32, div, m.ConstInt(chunk))
	add := ib.Binary(ssa.OpAdd, i32, mul, m.ConstInt(expr.Base))
	aligned := ib.Binary(ssa.OpAdd, i32, add, m.ConstInt(-expr.Step))
	guard := ib.Icmp(cond.Pred, c0iv, aligned)
	for _, inst := range []*ssa.Instruction{sub, div, mul, add, aligned, guard} {
		moveBefore(header, inst, c0cond)
	}

	ssa.ReplaceAllUsesWith(c0cond, guard)
	c0cond.ClearOperands()
	header.Remove(c0cond)
	k0.vm[cond] = guard
}

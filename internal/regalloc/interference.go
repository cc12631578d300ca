package regalloc

import "rvcc/internal/lir"

// node is one interference-graph node: a live virtual variable, or
// (PreColored) a physical register itself. Move-related and
// non-move-related neighbor sets are tracked separately because only
// the former are coalescing candidates. Coalesced records every node
// folded into this one; the allocator commits coalesces and restarts
// on actual spill instead of ever un-coalescing.
type node struct {
	Var        *lir.Variable // nil for a PreColored node
	PreColored bool
	Reg        string // the physical register a PreColored node represents

	MoveNeighbors    map[*node]bool
	NonMoveNeighbors map[*node]bool
	Coalesced        []*node

	onStack   bool
	IsSpilled bool
	Color     string

	// spill-cost inputs, accumulated while building the graph.
	useCount  int
	defCount  int
	loopDepth int
}

func newNode(v *lir.Variable) *node {
	return &node{Var: v, MoveNeighbors: map[*node]bool{}, NonMoveNeighbors: map[*node]bool{}}
}

func newPreColored(reg string) *node {
	n := newNode(nil)
	n.PreColored = true
	n.Reg = reg
	n.Color = reg
	return n
}

// degree is the non-move-related neighbor count used by simplify/
// spill/select.
func (n *node) degree() int { return len(n.NonMoveNeighbors) }

// graph is one class's (int or float) interference graph for a
// function: every live variable's node plus one PreColored node per
// physical register in that class's pool.
type graph struct {
	isFloat bool
	regs    []string
	nodes   map[*lir.Variable]*node
	colors  map[string]*node // PreColored nodes keyed by register name
}

func buildGraph(fn *lir.Function, isFloat bool, regs []string) *graph {
	computeLiveness(fn, isFloat)
	depths := loopDepths(fn)

	g := &graph{isFloat: isFloat, regs: regs, nodes: map[*lir.Variable]*node{}, colors: map[string]*node{}}
	for _, r := range regs {
		g.colors[r] = newPreColored(r)
	}

	nodeFor := func(v *lir.Variable) *node {
		if n, ok := g.nodes[v]; ok {
			return n
		}
		n := newNode(v)
		g.nodes[v] = n
		return n
	}

	addInterfere := func(a, b *node) {
		if a == b {
			return
		}
		a.NonMoveNeighbors[b] = true
		b.NonMoveNeighbors[a] = true
		delete(a.MoveNeighbors, b)
		delete(b.MoveNeighbors, a)
	}
	addMove := func(a, b *node) {
		if a == b {
			return
		}
		if a.NonMoveNeighbors[b] {
			return
		}
		a.MoveNeighbors[b] = true
		b.MoveNeighbors[a] = true
	}

	for _, b := range fn.Blocks {
		depth := depths[b]
		live := map[*lir.Variable]bool{}
		for v := range b.LiveOut {
			live[v] = true
		}
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			inst := b.Instrs[i]

			mv, isMove := inst.(*lir.Move)
			var moveSrcVar *lir.Variable
			if isMove && !mv.Src.IsImm && allocatable(mv.Src.Var, isFloat) {
				moveSrcVar = mv.Src.Var
			}

			def := inst.Defs()
			if allocatable(def, isFloat) {
				dn := nodeFor(def)
				dn.defCount++
				dn.loopDepth = maxInt(dn.loopDepth, depth)
				for lv := range live {
					if lv == moveSrcVar {
						continue // the move's own source never interferes with its dest
					}
					addInterfere(dn, nodeFor(lv))
				}
				if moveSrcVar != nil {
					addMove(dn, nodeFor(moveSrcVar))
				}
				delete(live, def)
			}

			if _, isCall := inst.(*lir.Call); isCall {
				callerRegs := CallerSavedInt
				if isFloat {
					callerRegs = CallerSavedFloat
				}
				for lv := range live {
					ln := nodeFor(lv)
					for _, r := range callerRegs {
						// CallerSavedInt still names t6 for documentation
						// accuracy even though it is held back from the
						// colorable pool (see IntRegs); g.colors has no
						// node for a register that was never added as a
						// color, so skip it here.
						if cn, ok := g.colors[r]; ok {
							addInterfere(ln, cn)
						}
					}
				}
			}

			for _, u := range inst.Uses() {
				if !allocatable(u, isFloat) {
					continue
				}
				un := nodeFor(u)
				un.useCount++
				un.loopDepth = maxInt(un.loopDepth, depth)
				live[u] = true
			}
		}
	}
	return g
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

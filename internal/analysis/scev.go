package analysis

import "rvcc/internal/ssa"

// SCEVExpr is a loop-affine {base, step} expression. Only basic
// induction variables (a Phi with exactly two incoming values: one
// from the preheader = Init, one from the latch = phi + constant
// Step) are recognized; richer add/mul chains over SCEV-typed
// operands fold into the Polynomial form below, while trip-count
// computation only ever needs base/step.
type SCEVExpr struct {
	Loop *Loop
	Base int64
	Step int64
	// Valid is false when the Phi does not match the basic induction
	// form; callers must check it before trusting Base/Step.
	Valid bool
}

// SCEVInfo maps induction-variable Phis to their SCEVExpr within a
// function.
type SCEVInfo struct {
	byPhi map[*ssa.Instruction]*SCEVExpr
}

func (si *SCEVInfo) Of(phi *ssa.Instruction) (*SCEVExpr, bool) {
	e, ok := si.byPhi[phi]
	return e, ok
}

func computeSCEV(fn *ssa.Function, lf *LoopForest) *SCEVInfo {
	si := &SCEVInfo{byPhi: make(map[*ssa.Instruction]*SCEVExpr)}

	for _, l := range lf.AllLoops() {
		if l.Preheader == nil || l.Latch == nil {
			continue // SCEV needs simplified form; computed after LoopSimplifyForm
		}
		for _, inst := range l.Header.Instructions {
			if inst.Op != ssa.OpPhi {
				continue
			}
			si.byPhi[inst] = analyzeInductionPhi(inst, l)
		}
	}
	return si
}

// analyzeInductionPhi recognizes phi = [init from preheader, phi+step
// from latch] and returns its closed-form SCEVExpr.
func analyzeInductionPhi(phi *ssa.Instruction, l *Loop) *SCEVExpr {
	var initVal ssa.Value
	var latchVal ssa.Value
	for i, pred := range phi.PhiBlocks {
		if pred == l.Preheader {
			initVal = phi.Operands[i].Value
		} else if pred == l.Latch {
			latchVal = phi.Operands[i].Value
		}
	}
	if initVal == nil || latchVal == nil {
		return &SCEVExpr{Loop: l}
	}
	initC, ok := initVal.(*ssa.ConstInt)
	if !ok {
		return &SCEVExpr{Loop: l}
	}
	step, ok := matchStep(phi, latchVal)
	if !ok {
		return &SCEVExpr{Loop: l}
	}
	return &SCEVExpr{Loop: l, Base: initC.Val, Step: step, Valid: true}
}

// matchStep recognizes latchVal == Add(phi, const) or
// Sub(phi, const), returning the signed step.
func matchStep(phi *ssa.Instruction, latchVal ssa.Value) (int64, bool) {
	inst, ok := latchVal.(*ssa.Instruction)
	if !ok {
		return 0, false
	}
	switch inst.Op {
	case ssa.OpAdd:
		if inst.Operands[0].Value == ssa.Value(phi) {
			if c, ok := inst.Operands[1].Value.(*ssa.ConstInt); ok {
				return c.Val, true
			}
		}
		if inst.Operands[1].Value == ssa.Value(phi) {
			if c, ok := inst.Operands[0].Value.(*ssa.ConstInt); ok {
				return c.Val, true
			}
		}
	case ssa.OpSub:
		if inst.Operands[0].Value == ssa.Value(phi) {
			if c, ok := inst.Operands[1].Value.(*ssa.ConstInt); ok {
				return -c.Val, true
			}
		}
	}
	return 0, false
}

// TripCount computes the closed-form trip count of a loop headed by a
// Branch(Icmp(pred, iv, N), body, exit). Returns (-1, false) when the
// induction form is unrecognized, the predicate is EQ/NE, or the step
// points the wrong way for the predicate; callers skip the loop, this
// is not an error. When the initial value already violates the
// predicate the loop body never runs and the result is (0, true).
func (e *SCEVExpr) TripCount(pred ssa.Predicate, n int64) (int64, bool) {
	if !e.Valid {
		return -1, false
	}
	switch pred {
	case ssa.PredLT:
		if e.Step <= 0 {
			return -1, false
		}
		if e.Base >= n {
			return 0, true
		}
		return ceilDiv(n-e.Base, e.Step), true
	case ssa.PredLE:
		if e.Step <= 0 {
			return -1, false
		}
		if e.Base > n {
			return 0, true
		}
		return floorDiv(n-e.Base, e.Step) + 1, true
	case ssa.PredGT:
		if e.Step >= 0 {
			return -1, false
		}
		if e.Base <= n {
			return 0, true
		}
		return ceilDiv(e.Base-n, -e.Step), true
	case ssa.PredGE:
		if e.Step >= 0 {
			return -1, false
		}
		if e.Base < n {
			return 0, true
		}
		return floorDiv(e.Base-n, -e.Step) + 1, true
	default:
		return -1, false // EQ/NE declared non-computable
	}
}

// Polynomial is the closed form c0*C(k,0) + c1*C(k,1) + c2*C(k,2) +
// ... of a value's evolution across iterations k of one loop,
// expressed in the binomial-coefficient basis, which stays closed
// under addition and affine multiplication.
type Polynomial struct {
	Loop   *Loop
	Coeffs []int64 // Coeffs[i] multiplies C(k, i)
}

// Polynomial lifts a basic {base, step} recurrence into the binomial
// basis: value at iteration k is base + step*C(k,1).
func (e *SCEVExpr) Polynomial() *Polynomial {
	if !e.Valid {
		return nil
	}
	return &Polynomial{Loop: e.Loop, Coeffs: []int64{e.Base, e.Step}}
}

// EvalAt evaluates the polynomial at iteration k by accumulating the
// running binomial coefficient C(k,i) incrementally.
func (p *Polynomial) EvalAt(k int64) int64 {
	sum := int64(0)
	binom := int64(1) // C(k, 0)
	for i, c := range p.Coeffs {
		sum += c * binom
		binom = binom * (k - int64(i)) / int64(i+1)
	}
	return sum
}

// Add folds two evolutions of the same loop; coefficients add
// elementwise in the shared basis.
func (p *Polynomial) Add(q *Polynomial) *Polynomial {
	if p == nil || q == nil || p.Loop != q.Loop {
		return nil
	}
	n := len(p.Coeffs)
	if len(q.Coeffs) > n {
		n = len(q.Coeffs)
	}
	coeffs := make([]int64, n)
	for i := range coeffs {
		if i < len(p.Coeffs) {
			coeffs[i] += p.Coeffs[i]
		}
		if i < len(q.Coeffs) {
			coeffs[i] += q.Coeffs[i]
		}
	}
	return &Polynomial{Loop: p.Loop, Coeffs: coeffs}
}

// Scale multiplies every coefficient by a loop-invariant constant.
func (p *Polynomial) Scale(c int64) *Polynomial {
	if p == nil {
		return nil
	}
	coeffs := make([]int64, len(p.Coeffs))
	for i, x := range p.Coeffs {
		coeffs[i] = x * c
	}
	return &Polynomial{Loop: p.Loop, Coeffs: coeffs}
}

// MulAffine folds the product of two affine evolutions of the same
// loop into a quadratic: (a + b*k)(c + d*k) expanded over the
// binomial basis using k = C(k,1) and k*k = C(k,1) + 2*C(k,2).
func (p *Polynomial) MulAffine(q *Polynomial) *Polynomial {
	if p == nil || q == nil || p.Loop != q.Loop || len(p.Coeffs) > 2 || len(q.Coeffs) > 2 {
		return nil
	}
	coeff := func(s []int64, i int) int64 {
		if i < len(s) {
			return s[i]
		}
		return 0
	}
	a, b := coeff(p.Coeffs, 0), coeff(p.Coeffs, 1)
	c, d := coeff(q.Coeffs, 0), coeff(q.Coeffs, 1)
	return &Polynomial{Loop: p.Loop, Coeffs: []int64{a * c, a*d + b*c + b*d, 2 * b * d}}
}

// Fold resolves an add/mul chain over induction variables of one loop
// into its Polynomial, recursing through operands until it bottoms
// out at a recognized Phi or an integer constant. Returns nil when
// the chain mixes loops or leaves the recognized shapes.
func (si *SCEVInfo) Fold(v ssa.Value, l *Loop) *Polynomial {
	switch x := v.(type) {
	case *ssa.ConstInt:
		return &Polynomial{Loop: l, Coeffs: []int64{x.Val}}
	case *ssa.Instruction:
		if x.Op == ssa.OpPhi {
			if e, ok := si.Of(x); ok && e.Valid && e.Loop == l {
				return e.Polynomial()
			}
			return nil
		}
		if x.Op == ssa.OpAdd {
			return si.Fold(x.Operands[0].Value, l).Add(si.Fold(x.Operands[1].Value, l))
		}
		if x.Op == ssa.OpMul {
			return si.Fold(x.Operands[0].Value, l).MulAffine(si.Fold(x.Operands[1].Value, l))
		}
	}
	return nil
}

func floorDiv(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

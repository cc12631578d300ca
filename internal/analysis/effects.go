package analysis

import "rvcc/internal/ssa"

// FuncEffects summarizes what a function can do to state outside its
// own frame, propagated over the call graph until stable.
type FuncEffects struct {
	IsRecursive   bool
	IsLeaf        bool
	MemoryRead    bool
	MemoryWrite   bool
	MemoryAlloc   bool
	IORead        bool
	IOWrite       bool
	HasSideEffect bool // writes through a pointer argument
}

// NoState reports whether the function is pure modulo IO: no memory
// or pointer-argument writes, no allocation.
func (e *FuncEffects) NoState() bool {
	return !e.MemoryWrite && !e.HasSideEffect && !e.MemoryAlloc
}

// IsFree reports whether a call to this function is free of IO,
// memory writes, and side effects on pointer arguments. Dead-code
// elimination may delete an unused Call iff its callee is free.
func (e *FuncEffects) IsFree() bool {
	return !e.IORead && !e.IOWrite && !e.MemoryWrite && !e.HasSideEffect
}

// EffectsInfo is the whole-module map from Function to its summary.
type EffectsInfo struct {
	byFunc map[*ssa.Function]*FuncEffects
}

func (ei *EffectsInfo) Of(fn *ssa.Function) *FuncEffects {
	if e, ok := ei.byFunc[fn]; ok {
		return e
	}
	return &FuncEffects{} // declarations: conservative all-false except via ioNames below
}

// ioRuntimeNames lists the runtime helpers that perform IO.
var ioRuntimeNames = map[string]bool{"putf": true, "putint": true, "putfloat": true}

func computeEffects(m *ssa.Module) *EffectsInfo {
	ei := &EffectsInfo{byFunc: make(map[*ssa.Function]*FuncEffects)}

	callees := make(map[*ssa.Function][]*ssa.Function)

	for _, fn := range m.Funcs {
		e := &FuncEffects{IsLeaf: true}
		ei.byFunc[fn] = e
		if fn.Declare {
			if ioRuntimeNames[fn.Name] {
				e.IOWrite = true
			}
			if fn.Name == "memset" {
				e.MemoryWrite = true
			}
			continue
		}
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				switch inst.Op {
				case ssa.OpStore:
					addr := inst.Operands[0].Value
					// A store into this function's own Alloc (directly or
					// through GEP/BitCast) stays inside its frame.
					base := addr
					for {
						bi, ok := base.(*ssa.Instruction)
						if !ok || (bi.Op != ssa.OpGEP && bi.Op != ssa.OpBitCast) {
							break
						}
						base = bi.Operands[0].Value
					}
					if bi, ok := base.(*ssa.Instruction); !ok || bi.Op != ssa.OpAlloc {
						e.MemoryWrite = true
					}
					if isArgDerived(addr, fn) {
						e.HasSideEffect = true
					}
				case ssa.OpLoad:
					if _, isGlobal := inst.Operands[0].Value.(*ssa.Global); isGlobal {
						e.MemoryRead = true
					}
				case ssa.OpAlloc:
					e.MemoryAlloc = true
				case ssa.OpCall:
					e.IsLeaf = false
					callees[fn] = append(callees[fn], inst.Callee)
					if inst.Callee == fn {
						e.IsRecursive = true
					}
					if ioRuntimeNames[inst.Callee.Name] {
						e.IOWrite = true
					}
				}
			}
		}
	}

	// Propagate along the call graph until stable; a simple worklist
	// to a fixed point is correct for cyclic call graphs too.
	changed := true
	for changed {
		changed = false
		for fn, callList := range callees {
			e := ei.byFunc[fn]
			for _, callee := range callList {
				ce := ei.byFunc[callee]
				if ce == nil {
					continue
				}
				if ce.MemoryWrite && !e.MemoryWrite {
					e.MemoryWrite, changed = true, true
				}
				if ce.MemoryRead && !e.MemoryRead {
					e.MemoryRead, changed = true, true
				}
				if ce.MemoryAlloc && !e.MemoryAlloc {
					e.MemoryAlloc, changed = true, true
				}
				if ce.IORead && !e.IORead {
					e.IORead, changed = true, true
				}
				if ce.IOWrite && !e.IOWrite {
					e.IOWrite, changed = true, true
				}
				if ce.HasSideEffect && !e.HasSideEffect {
					// A callee writing through one of ITS pointer
					// arguments only implies a side effect on the
					// caller's arguments when the caller forwarded one
					// of its own pointer arguments as that argument;
					// conservatively, treat any such callee as
					// side-effecting from the caller's perspective too.
					e.HasSideEffect, changed = true, true
				}
			}
		}
	}

	return ei
}

// isArgDerived reports whether v is (or was derived via GEP/BitCast
// from) one of fn's own pointer arguments.
func isArgDerived(v ssa.Value, fn *ssa.Function) bool {
	for {
		switch t := v.(type) {
		case *ssa.Argument:
			for _, a := range fn.Args {
				if a == t {
					return true
				}
			}
			return false
		case *ssa.Instruction:
			if t.Op == ssa.OpGEP || t.Op == ssa.OpBitCast {
				v = t.Operands[0].Value
				continue
			}
			return false
		default:
			return false
		}
	}
}

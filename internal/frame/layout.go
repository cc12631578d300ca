package frame

import (
	"sort"

	"rvcc/internal/lir"
)

// computeLayout walks fn.Vars once and assigns every Functional
// variable an offset relative to its own s0. Bottom (most negative, nearest sp) to top (nearest s0): the
// outgoing-argument stack area, then ordinary locals/spills, then the
// callee-saved save area, then the saved-ra slot at the very top. An
// Incoming overflow parameter instead gets a positive offset — see
// lir.Variable.ArgSlot's doc comment for why the two addressing
// directions agree on one physical address.
func computeLayout(fn *lir.Function) *Frame {
	fr := &Frame{Offsets: map[*lir.Variable]int64{}}

	var locals []*lir.Variable
	outgoingByIdx := map[int][]*lir.Variable{}
	var incoming []*lir.Variable
	maxOutIdx := -1

	for _, v := range fn.Vars {
		if v.Lifetime != lir.Functional {
			continue
		}
		switch v.ArgSlot {
		case lir.OutgoingArg:
			outgoingByIdx[v.ArgIdx] = append(outgoingByIdx[v.ArgIdx], v)
			if v.ArgIdx > maxOutIdx {
				maxOutIdx = v.ArgIdx
			}
		case lir.IncomingArg:
			incoming = append(incoming, v)
		default:
			locals = append(locals, v)
		}
	}

	cursor := int64(0)

	// ra slot, nearest s0.
	cursor -= 8
	raOffset := cursor

	// the caller's own s0, saved unconditionally: every function
	// establishes a frame pointer, so s0 — itself callee-saved — must
	// always be preserved here regardless of whether internal/regalloc
	// happened to color anything else into a callee-saved register.
	cursor -= 8
	savedS0Offset := cursor

	// callee-saved save area, next down.
	calleeSaved := append([]string{}, fn.UsedCalleeSaved...)
	calleeSavedOffsets := map[string]int64{}
	for _, reg := range sortedStrings(calleeSaved) {
		cursor -= 8
		calleeSavedOffsets[reg] = cursor
	}

	// ordinary locals/spills, in deterministic name order.
	for _, v := range sortedVars(locals) {
		cursor -= slotSize(v)
		fr.Offsets[v] = cursor
	}

	// outgoing call-argument overflow area, the lowest addresses —
	// every call's idx'th overflow slot shares one offset, since calls
	// never overlap in time. The 16-byte alignment padding sits above
	// this area, so slot 0 is exactly the final sp (the callee's s0).
	outgoingBytes := int64(0)
	if maxOutIdx >= 0 {
		outgoingBytes = int64(maxOutIdx+1) * 8
	}
	outgoingBase := -align16(-(cursor - outgoingBytes))
	for idx, vars := range outgoingByIdx {
		off := outgoingBase + int64(idx)*8
		for _, v := range vars {
			fr.Offsets[v] = off
		}
	}
	cursor = outgoingBase

	fr.Size = align16(-cursor)
	fr.raOffset = raOffset
	fr.savedS0Offset = savedS0Offset
	fr.calleeSavedOffsets = calleeSavedOffsets
	fr.UsedCalleeSaved = calleeSaved

	// incoming overflow parameters: positive offset from this
	// function's own s0, 8 bytes per slot in original parameter order
	// (stackIdx in internal/regalloc's bindParams already numbers them
	// that way).
	for _, v := range incoming {
		fr.Offsets[v] = int64(v.ArgIdx) * 8
	}

	return fr
}

func sortedStrings(ss []string) []string {
	out := append([]string{}, ss...)
	sort.Strings(out)
	return out
}

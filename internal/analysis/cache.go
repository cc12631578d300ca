// Package analysis implements the compiler's analysis infrastructure:
// control-flow graph + dominance + dominance frontier + post-order +
// dom-tree (dominance.go), loop forest (loop.go), alias analysis
// (alias.go), function-effect analysis (effects.go), and SCEV
// (scev.go).
//
// Analyses are read-only and cached; a transform that mutates the IR
// calls Cache.SetDirty(fn) (or, for whole-call-graph edits,
// Cache.SetDirtyEffects()) and the next query recomputes from
// scratch. Reanalysis is always full, never a partial update.
package analysis

import "rvcc/internal/ssa"

// Cache is a per-Module store of the analyses above, each keyed (and
// invalidated) at function granularity except EffectsInfo, which is
// whole-program because it is computed over the call graph.
type Cache struct {
	dom     map[*ssa.Function]*DomInfo
	domDirt map[*ssa.Function]bool

	loop     map[*ssa.Function]*LoopForest
	loopDirt map[*ssa.Function]bool

	alias     map[*ssa.Function]*AliasInfo
	aliasDirt map[*ssa.Function]bool

	scev     map[*ssa.Function]*SCEVInfo
	scevDirt map[*ssa.Function]bool

	effects     *EffectsInfo
	effectsDirt bool
}

func NewCache() *Cache {
	return &Cache{
		dom:      make(map[*ssa.Function]*DomInfo),
		domDirt:  make(map[*ssa.Function]bool),
		loop:     make(map[*ssa.Function]*LoopForest),
		loopDirt: make(map[*ssa.Function]bool),
		alias:    make(map[*ssa.Function]*AliasInfo),
		aliasDirt: make(map[*ssa.Function]bool),
		scev:     make(map[*ssa.Function]*SCEVInfo),
		scevDirt: make(map[*ssa.Function]bool),
		effectsDirt: true,
	}
}

// SetDirty invalidates every per-function analysis cached for fn. Call
// after any pass that changes fn's CFG or instruction stream.
func (c *Cache) SetDirty(fn *ssa.Function) {
	c.domDirt[fn] = true
	c.loopDirt[fn] = true
	c.aliasDirt[fn] = true
	c.scevDirt[fn] = true
}

// SetDirtyEffects invalidates the whole-program function-effect
// summary; call after a transform edits the call graph (adds/removes
// a Call, inlines, etc.) per Design Notes ("unless the change crossed
// function boundaries").
func (c *Cache) SetDirtyEffects() {
	c.effectsDirt = true
}

func (c *Cache) Dominance(fn *ssa.Function) *DomInfo {
	if info, ok := c.dom[fn]; ok && !c.domDirt[fn] {
		return info
	}
	info := computeDominance(fn)
	c.dom[fn] = info
	c.domDirt[fn] = false
	return info
}

func (c *Cache) Loops(fn *ssa.Function) *LoopForest {
	if info, ok := c.loop[fn]; ok && !c.loopDirt[fn] {
		return info
	}
	info := computeLoopForest(fn, c.Dominance(fn))
	c.loop[fn] = info
	c.loopDirt[fn] = false
	return info
}

func (c *Cache) Alias(fn *ssa.Function) *AliasInfo {
	if info, ok := c.alias[fn]; ok && !c.aliasDirt[fn] {
		return info
	}
	info := computeAlias(fn)
	c.alias[fn] = info
	c.aliasDirt[fn] = false
	return info
}

func (c *Cache) SCEV(fn *ssa.Function) *SCEVInfo {
	if info, ok := c.scev[fn]; ok && !c.scevDirt[fn] {
		return info
	}
	info := computeSCEV(fn, c.Loops(fn))
	c.scev[fn] = info
	c.scevDirt[fn] = false
	return info
}

func (c *Cache) Effects(m *ssa.Module) *EffectsInfo {
	if c.effects != nil && !c.effectsDirt {
		return c.effects
	}
	c.effects = computeEffects(m)
	c.effectsDirt = false
	return c.effects
}

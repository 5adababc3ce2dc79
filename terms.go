package dmrg

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/block"
	"github.com/fumin/dmrg/ndarray"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

type side byte

const (
	onLeft side = iota
	onRight
)

func (s side) other() side { return 1 - s }

// operand is a coupling string acting on one side.
// An adjoint operand reads the stored coupling with bra and ket swapped and transposes it.
type operand struct {
	str     sq.String
	adjoint bool
}

func op(s sq.String) operand  { return operand{str: s} }
func adj(s sq.String) operand { return operand{str: s, adjoint: true} }

// shift is the change of the side's electron count.
func (o operand) shift() sector.Key {
	if o.adjoint {
		return o.str.Shift().Neg()
	}
	return o.str.Shift()
}

func (o operand) tensor(b block.Block, source, target sector.Key) *ndarray.Array {
	if o.adjoint {
		return b.Coupling(o.str, source, target)
	}
	return b.Coupling(o.str, target, source)
}

// weight is the coefficient of a term at left-local orbitals l and right-local orbitals r.
type weight func(l, r []int) float64

type dressing struct {
	op operand
	w  weight
}

// cross is Σ_{o,q} w(o,q) X(o) ⊗ Y(q) with X the plain operand on the outer side
// and Y the dressed operands on the other side.
// The dressed operands share their shift and adjointness.
type cross struct {
	outer   side
	plain   operand
	dressed []dressing
}

// shifts returns the per-side shifts of x.
func (x cross) shifts() (left, right sector.Key) {
	inner := x.dressed[0].op.shift()
	if x.outer == onLeft {
		return x.plain.shift(), inner
	}
	return inner, x.plain.shift()
}

// local is a single-block operator on one side times the identity on the other.
type local struct {
	side side
	get  func(ket sector.Key) *mat.Dense
}

// process moves a source pair (L, R) to the target pair (L+dl, R+dr).
type process struct {
	dl, dr  sector.Key
	locals  []local
	crosses []cross
}

func key(alpha, beta int) sector.Key { return sector.Key{Alpha: alpha, Beta: beta} }

// compose sums procs over every pair of sector ket into an operator mapping ket to ket + shift.
func (c *Composer) compose(name string, ket, shift sector.Key, procs []process) *Operator {
	start := time.Now()
	bra := ket.Add(shift)
	if !c.idx.Contains(bra) {
		panic(fmt.Sprintf("%s from %v: no sector %v", name, ket, bra))
	}
	out := mat.NewDense(c.idx.Info(bra).NStates, c.idx.Info(ket).NStates, nil)

	var skipped, absent int
	for _, sp := range c.idx.Pairs(ket) {
		for _, p := range procs {
			tp, ok := c.idx.Lookup(bra, sp.Left.Key.Add(p.dl), sp.Right.Key.Add(p.dr))
			if !ok {
				skipped++
				continue
			}
			dst := blockOf(out, tp, sp)
			for _, l := range p.locals {
				if !c.addLocal(dst, l, sp) {
					absent++
				}
			}
			for _, x := range p.crosses {
				if !c.addCross(dst, x, sp, tp) {
					absent++
				}
			}
		}
	}

	c.logger.Debug(name, zap.Stringer("ket", ket), zap.Stringer("bra", bra), zap.Int("skipped", skipped), zap.Int("absent", absent), zap.Duration("elapsed", time.Since(start)))
	return &Operator{Bra: bra, Ket: ket, Dense: out, idx: c.idx}
}

func (c *Composer) addLocal(dst *mat.Dense, l local, sp sector.Pair) bool {
	switch l.side {
	case onLeft:
		m := l.get(sp.Left.Key)
		if m == nil {
			return false
		}
		kronAdd(dst, identity(sp.Right.NStates), m, 1)
	case onRight:
		m := l.get(sp.Right.Key)
		if m == nil {
			return false
		}
		kronAdd(dst, m, identity(sp.Left.NStates), 1)
	}
	return true
}

// sideOf returns the block and the source and target sectors of one side of a transition.
func (c *Composer) sideOf(s side, sp, tp sector.Pair) (block.Block, sector.Key, sector.Key) {
	if s == onLeft {
		return c.left, sp.Left.Key, tp.Left.Key
	}
	return c.right, sp.Right.Key, tp.Right.Key
}

func (c *Composer) addCross(dst *mat.Dense, x cross, sp, tp sector.Pair) bool {
	pb, ps, pt := c.sideOf(x.outer, sp, tp)
	plain := x.plain.tensor(pb, ps, pt)
	if plain == nil {
		return false
	}

	db, ds, dt := c.sideOf(x.outer.other(), sp, tp)
	type present struct {
		t   *ndarray.Array
		w   weight
		orb []int
	}
	dressed := make([]present, 0, len(x.dressed))
	for _, d := range x.dressed {
		if t := d.op.tensor(db, ds, dt); t != nil {
			dressed = append(dressed, present{t: t, w: d.w, orb: make([]int, d.op.str.Len())})
		}
	}
	if len(dressed) == 0 {
		return false
	}
	dshape := dressed[0].t.Shape()
	dadjoint := x.dressed[0].op.adjoint

	outer := make([]int, x.plain.str.Len())
	acc := make([]float64, dressed[0].t.SlabSize())
	for o := range plain.NumSlabs() {
		ndarray.Unravel(outer, o, pb.Norb())

		clear(acc)
		var nonzero bool
		for _, d := range dressed {
			for q := range d.t.NumSlabs() {
				ndarray.Unravel(d.orb, q, db.Norb())
				var w float64
				if x.outer == onLeft {
					w = d.w(outer, d.orb)
				} else {
					w = d.w(d.orb, outer)
				}
				if w == 0 {
					continue
				}
				floats.AddScaled(acc, w, d.t.Slab(q))
				nonzero = true
			}
		}
		if !nonzero {
			continue
		}

		pm := slabMatrix(plain.Slab(o), plain.Shape(), x.plain.adjoint)
		dm := slabMatrix(acc, dshape, dadjoint)
		if x.outer == onLeft {
			kronAdd(dst, dm, pm, 1)
		} else {
			kronAdd(dst, pm, dm, 1)
		}
	}
	return true
}

// slabMatrix views a column-major (shape[0], shape[1]) slab as a (target, source) matrix.
func slabMatrix(slab []float64, shape []int, adjoint bool) mat.Matrix {
	m := mat.NewDense(shape[1], shape[0], slab)
	if adjoint {
		return m
	}
	return m.T()
}

// kronAdd adds f * (right ⊗ left) to dst, the composite index being left-fastest.
func kronAdd(dst *mat.Dense, right, left mat.Matrix, f float64) {
	var k mat.Dense
	k.Kronecker(right, left)
	if f != 1 {
		k.Scale(f, &k)
	}
	dst.Add(dst, &k)
}

// contract adds f * Σ_o S[tl, sl, o] G(o) to dst, where G(o) is the (tr, sr) element
// G[tr, sr, o] of g, or G[sr, tr, o] if adjoint.
func contract(dst *mat.Dense, s, g *ndarray.Array, adjoint bool, f float64) {
	if s.NumSlabs() != g.NumSlabs() {
		panic(fmt.Sprintf("contracting %v with %v", s.Shape(), g.Shape()))
	}
	ntl, nsl := s.Shape()[0], s.Shape()[1]
	g0, g1 := g.Shape()[0], g.Shape()[1]

	// x[(tl, sl), (g0, g1)] = Σ_o s[tl, sl, o] g[g0, g1, o]
	sm := mat.NewDense(s.NumSlabs(), ntl*nsl, s.Data())
	gm := mat.NewDense(g.NumSlabs(), g0*g1, g.Data())
	var x mat.Dense
	x.Mul(sm.T(), gm)

	for c1 := range g1 {
		for c0 := range g0 {
			tr, sr := c0, c1
			if adjoint {
				tr, sr = c1, c0
			}
			col := c0 + c1*g0
			for sl := range nsl {
				for tl := range ntl {
					i, j := tl+tr*ntl, sl+sr*nsl
					dst.Set(i, j, dst.At(i, j)+f*x.At(tl+sl*ntl, col))
				}
			}
		}
	}
}

// blockOf is the (target pair, source pair) block of m, sharing its storage.
func blockOf(m *mat.Dense, tp, sp sector.Pair) *mat.Dense {
	return m.Slice(tp.Offset, tp.Offset+tp.NStates(), sp.Offset, sp.Offset+sp.NStates()).(*mat.Dense)
}

func identity(n int) *mat.DiagDense {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return mat.NewDiagDense(n, ones)
}

package dmrg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

// ParticleHoleShift is bra key minus ket key of a particle-hole operator.
func ParticleHoleShift(ch sq.Channel) sector.Key {
	if ch == sq.AlphaBeta {
		return key(-1, 1)
	}
	return key(0, 0)
}

// PairShift is bra key minus ket key of a pair operator.
func PairShift(ch sq.Channel) sector.Key {
	switch ch {
	case sq.AlphaAlpha:
		return key(-2, 0)
	case sq.BetaBeta:
		return key(0, -2)
	case sq.AlphaBeta:
		return key(-1, -1)
	default:
		panic(fmt.Sprintf("%v", ch))
	}
}

// ParticleHole returns the particle-hole operator of channel ch on sector key
// with environment orbitals i and j.
func (c *Composer) ParticleHole(ch sq.Channel, key sector.Key, i, j int) *Operator {
	c.external(i)
	c.external(j)
	var procs []process
	switch ch {
	case sq.AlphaAlpha:
		procs = c.particleHoleSame(sq.Alpha, i, j)
	case sq.BetaBeta:
		procs = c.particleHoleSame(sq.Beta, i, j)
	case sq.AlphaBeta:
		procs = c.particleHoleAB(i, j)
	default:
		panic(fmt.Sprintf("%v", ch))
	}
	return c.compose("particle-hole "+ch.String(), key, ParticleHoleShift(ch), procs)
}

// Pair returns the pair operator of channel ch on sector key with environment orbitals i and j.
func (c *Composer) Pair(ch sq.Channel, key sector.Key, i, j int) *Operator {
	c.external(i)
	c.external(j)
	var procs []process
	switch ch {
	case sq.AlphaAlpha:
		procs = c.pairSame(sq.Alpha, i, j)
	case sq.BetaBeta:
		procs = c.pairSame(sq.Beta, i, j)
	case sq.AlphaBeta:
		procs = c.pairAB(i, j)
	default:
		panic(fmt.Sprintf("%v", ch))
	}
	return c.compose("pair "+ch.String(), key, PairShift(ch), procs)
}

func channelOf(s sq.Spin) sq.Channel {
	if s == sq.Alpha {
		return sq.AlphaAlpha
	}
	return sq.BetaBeta
}

func creator(s sq.Spin) sq.String { return sq.Of(s.Create()) }

// particleHoleSame moves an electron of the given spin across the blocks either way.
// Electrons of the same spin carry the exchange-corrected weight.
func (c *Composer) particleHoleSame(spin sq.Spin, i, j int) []process {
	v, L, R := c.v, c.lo, c.ro
	ch := channelOf(spin)
	leftQ := func(k sector.Key) *mat.Dense { return c.lops.ParticleHole(ch, k, i, j) }
	rightQ := func(k sector.Key) *mat.Dense { return c.rops.ParticleHole(ch, k, i, j) }

	// Weights of moving an electron from left to right and back, for the given spin of the mover.
	toRight := func(mover sq.Spin) weight {
		if mover == spin {
			return func(l, r []int) float64 { return -(v(R(r[0]), i, L(l[0]), j) - v(R(r[0]), L(l[0]), i, j)) }
		}
		return func(l, r []int) float64 { return -v(R(r[0]), i, L(l[0]), j) }
	}
	toLeft := func(mover sq.Spin) weight {
		if mover == spin {
			return func(l, r []int) float64 { return v(L(l[0]), i, R(r[0]), j) - v(L(l[0]), R(r[0]), i, j) }
		}
		return func(l, r []int) float64 { return v(L(l[0]), i, R(r[0]), j) }
	}

	procs := []process{{
		dl: key(0, 0), dr: key(0, 0),
		locals: []local{{side: onRight, get: rightQ}, {side: onLeft, get: leftQ}},
	}}
	for _, mover := range []sq.Spin{sq.Beta, sq.Alpha} {
		d := mover.Shift()
		s := creator(mover)
		procs = append(procs, process{dl: d.Neg(), dr: d, crosses: []cross{{
			outer: onRight, plain: op(s),
			dressed: []dressing{{op: adj(s), w: toRight(mover)}},
		}}})
	}
	for _, mover := range []sq.Spin{sq.Beta, sq.Alpha} {
		d := mover.Shift()
		s := creator(mover)
		procs = append(procs, process{dl: d, dr: d.Neg(), crosses: []cross{{
			outer: onRight, plain: adj(s),
			dressed: []dressing{{op: op(s), w: toLeft(mover)}},
		}}})
	}
	return procs
}

func (c *Composer) particleHoleAB(i, j int) []process {
	v, L, R := c.v, c.lo, c.ro
	leftQ := func(k sector.Key) *mat.Dense { return c.lops.ParticleHole(sq.AlphaBeta, k, i, j) }
	rightQ := func(k sector.Key) *mat.Dense { return c.rops.ParticleHole(sq.AlphaBeta, k, i, j) }
	return []process{
		{dl: key(0, 0), dr: key(-1, 1), locals: []local{{side: onRight, get: rightQ}}},
		{dl: key(-1, 0), dr: key(0, 1), crosses: []cross{{
			outer: onRight, plain: op(sq.B),
			dressed: []dressing{{op: adj(sq.A), w: func(l, r []int) float64 { return v(R(r[0]), L(l[0]), i, j) }}},
		}}},
		{dl: key(-1, 1), dr: key(0, 0), locals: []local{{side: onLeft, get: leftQ}}},
		{dl: key(0, 1), dr: key(-1, 0), crosses: []cross{{
			outer: onRight, plain: adj(sq.A),
			dressed: []dressing{{op: op(sq.B), w: func(l, r []int) float64 { return -v(L(l[0]), R(r[0]), i, j) }}},
		}}},
	}
}

// pairSame removes two electrons of the given spin, one from each block or both from one.
func (c *Composer) pairSame(spin sq.Spin, i, j int) []process {
	v, L, R := c.v, c.lo, c.ro
	ch := channelOf(spin)
	leftP := func(k sector.Key) *mat.Dense { return c.lops.Pair(ch, k, i, j) }
	rightP := func(k sector.Key) *mat.Dense { return c.rops.Pair(ch, k, i, j) }
	d := spin.Shift().Neg()
	s := creator(spin)
	return []process{
		{dl: d, dr: d, crosses: []cross{{
			outer: onRight, plain: adj(s),
			dressed: []dressing{{op: adj(s), w: func(l, r []int) float64 { return v(L(l[0]), R(r[0]), i, j) - v(R(r[0]), L(l[0]), i, j) }}},
		}}},
		{dl: key(0, 0), dr: d.Add(d), locals: []local{{side: onRight, get: rightP}}},
		{dl: d.Add(d), dr: key(0, 0), locals: []local{{side: onLeft, get: leftP}}},
	}
}

func (c *Composer) pairAB(i, j int) []process {
	v, L, R := c.v, c.lo, c.ro
	leftP := func(k sector.Key) *mat.Dense { return c.lops.Pair(sq.AlphaBeta, k, i, j) }
	rightP := func(k sector.Key) *mat.Dense { return c.rops.Pair(sq.AlphaBeta, k, i, j) }
	return []process{
		{dl: key(-1, -1), dr: key(0, 0), locals: []local{{side: onLeft, get: leftP}}},
		{dl: key(-1, 0), dr: key(0, -1), crosses: []cross{{
			outer: onRight, plain: adj(sq.B),
			dressed: []dressing{{op: adj(sq.A), w: func(l, r []int) float64 { return -v(R(r[0]), L(l[0]), i, j) }}},
		}}},
		{dl: key(0, 0), dr: key(-1, -1), locals: []local{{side: onRight, get: rightP}}},
		{dl: key(0, -1), dr: key(-1, 0), crosses: []cross{{
			outer: onRight, plain: adj(sq.A),
			dressed: []dressing{{op: adj(sq.B), w: func(l, r []int) float64 { return v(L(l[0]), R(r[0]), i, j) }}},
		}}},
	}
}

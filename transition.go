package dmrg

import (
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

// Transition returns the operator adding an electron of spin to sector key, dressed by the
// interactions with environment orbital i.
// It panics if key + spin is not a sector or i is not an environment orbital.
func (c *Composer) Transition(spin sq.Spin, key sector.Key, i int) *Operator {
	c.external(i)
	procs := c.transitionAlpha(i)
	if spin == sq.Beta {
		procs = c.transitionBeta(i)
	}
	return c.compose("transition "+spin.String(), key, spin.Shift(), procs)
}

func (c *Composer) transitionAlpha(i int) []process {
	v, L, R := c.v, c.lo, c.ro
	leftS := func(k sector.Key) *mat.Dense { return c.lops.Transition(sq.Alpha, k, i) }
	rightS := func(k sector.Key) *mat.Dense { return c.rops.Transition(sq.Alpha, k, i) }
	return []process{
		{dl: key(1, -1), dr: key(0, 1), crosses: []cross{{
			outer: onRight, plain: op(sq.B),
			dressed: []dressing{{op: adj(sq.BtA), w: func(l, r []int) float64 { return -v(i, R(r[0]), L(l[1]), L(l[0])) }}},
		}}},
		{dl: key(0, -1), dr: key(1, 1), crosses: []cross{{
			outer: onLeft, plain: adj(sq.B),
			dressed: []dressing{{op: adj(sq.BA), w: func(l, r []int) float64 { return v(i, R(r[0]), R(r[1]), L(l[0])) }}},
		}}},
		{dl: key(-1, 0), dr: key(2, 0), crosses: []cross{{
			outer: onLeft, plain: adj(sq.A),
			dressed: []dressing{{op: adj(sq.AA), w: func(l, r []int) float64 { return v(i, R(r[0]), R(r[1]), L(l[0])) }}},
		}}},
		{dl: key(1, 0), dr: key(0, 0), locals: []local{{side: onLeft, get: leftS}}, crosses: []cross{{
			outer: onLeft, plain: op(sq.A),
			dressed: []dressing{
				{op: op(sq.AtA), w: func(l, r []int) float64 {
					return v(i, R(r[0]), L(l[0]), R(r[1])) - v(i, L(l[0]), R(r[0]), R(r[1]))
				}},
				{op: op(sq.BtB), w: func(l, r []int) float64 { return v(i, R(r[0]), L(l[0]), R(r[1])) }},
			},
		}}},
		{dl: key(2, 0), dr: key(-1, 0), crosses: []cross{{
			outer: onRight, plain: adj(sq.A),
			dressed: []dressing{{op: adj(sq.AA), w: func(l, r []int) float64 { return v(i, L(l[0]), L(l[1]), R(r[0])) }}},
		}}},
		{dl: key(0, 0), dr: key(1, 0), locals: []local{{side: onRight, get: rightS}}, crosses: []cross{{
			outer: onRight, plain: op(sq.A),
			dressed: []dressing{
				{op: op(sq.AtA), w: func(l, r []int) float64 {
					return -(v(i, R(r[0]), L(l[0]), L(l[1])) - v(i, L(l[0]), R(r[0]), L(l[1])))
				}},
				{op: op(sq.BtB), w: func(l, r []int) float64 { return v(i, L(l[0]), R(r[0]), L(l[1])) }},
			},
		}}},
		{dl: key(0, 1), dr: key(1, -1), crosses: []cross{{
			outer: onLeft, plain: op(sq.B),
			dressed: []dressing{{op: adj(sq.BtA), w: func(l, r []int) float64 { return -v(i, L(l[0]), R(r[1]), R(r[0])) }}},
		}}},
		{dl: key(1, 1), dr: key(0, -1), crosses: []cross{{
			outer: onRight, plain: adj(sq.B),
			dressed: []dressing{{op: adj(sq.BA), w: func(l, r []int) float64 { return v(i, L(l[0]), L(l[1]), R(r[0])) }}},
		}}},
	}
}

func (c *Composer) transitionBeta(i int) []process {
	v, L, R := c.v, c.lo, c.ro
	leftS := func(k sector.Key) *mat.Dense { return c.lops.Transition(sq.Beta, k, i) }
	rightS := func(k sector.Key) *mat.Dense { return c.rops.Transition(sq.Beta, k, i) }
	return []process{
		{dl: key(-1, 1), dr: key(1, 0), crosses: []cross{{
			outer: onRight, plain: op(sq.A),
			dressed: []dressing{{op: op(sq.BtA), w: func(l, r []int) float64 { return -v(i, R(r[0]), L(l[0]), L(l[1])) }}},
		}}},
		{dl: key(0, -1), dr: key(0, 2), crosses: []cross{{
			outer: onLeft, plain: adj(sq.B),
			dressed: []dressing{{op: adj(sq.BB), w: func(l, r []int) float64 { return v(i, R(r[0]), R(r[1]), L(l[0])) }}},
		}}},
		{dl: key(1, 1), dr: key(-1, 0), crosses: []cross{{
			outer: onRight, plain: adj(sq.A),
			dressed: []dressing{{op: adj(sq.BA), w: func(l, r []int) float64 { return -v(i, L(l[1]), L(l[0]), R(r[0])) }}},
		}}},
		{dl: key(0, 1), dr: key(0, 0), locals: []local{{side: onLeft, get: leftS}}, crosses: []cross{{
			outer: onLeft, plain: op(sq.B),
			dressed: []dressing{
				{op: op(sq.BtB), w: func(l, r []int) float64 {
					return v(i, R(r[0]), L(l[0]), R(r[1])) - v(i, L(l[0]), R(r[0]), R(r[1]))
				}},
				{op: op(sq.AtA), w: func(l, r []int) float64 { return v(i, R(r[0]), L(l[0]), R(r[1])) }},
			},
		}}},
		{dl: key(1, 0), dr: key(-1, 1), crosses: []cross{{
			outer: onLeft, plain: op(sq.A),
			dressed: []dressing{{op: op(sq.BtA), w: func(l, r []int) float64 { return -v(i, L(l[0]), R(r[0]), R(r[1])) }}},
		}}},
		{dl: key(-1, 0), dr: key(1, 1), crosses: []cross{{
			outer: onLeft, plain: adj(sq.A),
			dressed: []dressing{{op: adj(sq.BA), w: func(l, r []int) float64 { return -v(i, R(r[1]), R(r[0]), L(l[0])) }}},
		}}},
		{dl: key(0, 0), dr: key(0, 1), locals: []local{{side: onRight, get: rightS}}, crosses: []cross{{
			outer: onRight, plain: op(sq.B),
			dressed: []dressing{
				{op: op(sq.BtB), w: func(l, r []int) float64 {
					return -(v(i, R(r[0]), L(l[0]), L(l[1])) - v(i, L(l[0]), R(r[0]), L(l[1])))
				}},
				{op: op(sq.AtA), w: func(l, r []int) float64 { return v(i, L(l[0]), R(r[0]), L(l[1])) }},
			},
		}}},
		{dl: key(0, 2), dr: key(0, -1), crosses: []cross{{
			outer: onRight, plain: adj(sq.B),
			dressed: []dressing{{op: adj(sq.BB), w: func(l, r []int) float64 { return v(i, L(l[0]), L(l[1]), R(r[0])) }}},
		}}},
	}
}

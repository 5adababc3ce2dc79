package dmrg

import (
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/block"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

// exchanges move electrons between the two blocks.
// The left side is an intra stack, the right side the adjoint of the listed couplings.
var exchanges = []struct {
	stack  block.Complement
	gammas []sq.String
}{
	{stack: block.QAB, gammas: []sq.String{sq.BtA}},
	{stack: block.PAA, gammas: []sq.String{sq.AA}},
	{stack: block.PBB, gammas: []sq.String{sq.BB}},
	{stack: block.PAB, gammas: []sq.String{sq.BA}},
	{stack: block.SA, gammas: []sq.String{sq.A}},
	{stack: block.DA, gammas: []sq.String{sq.AtAtA, sq.AtBtB}},
	{stack: block.SB, gammas: []sq.String{sq.B}},
	{stack: block.DB, gammas: []sq.String{sq.BtAtA, sq.BtBtB}},
}

// Hamiltonian returns the Hamiltonian of sector key.
// Each exchange between the blocks is assembled in one direction with a factor of two,
// and the result is symmetrized.
func (c *Composer) Hamiltonian(key sector.Key) *Operator {
	start := time.Now()
	n := c.idx.Info(key).NStates
	h := mat.NewDense(n, n, nil)

	var skipped int
	for _, sp := range c.idx.Pairs(key) {
		diag := blockOf(h, sp, sp)
		if hl := c.lops.Ham(sp.Left.Key); hl != nil {
			kronAdd(diag, identity(sp.Right.NStates), hl, 1)
		}
		if hr := c.rops.Ham(sp.Right.Key); hr != nil {
			kronAdd(diag, hr, identity(sp.Left.NStates), 1)
		}
		c.addStack(diag, block.QAA, []sq.String{sq.AtA}, false, sp, sp, 1)
		c.addStack(diag, block.QBB, []sq.String{sq.BtB}, false, sp, sp, 1)

		for _, x := range exchanges {
			d := x.stack.Shift()
			tp, ok := c.idx.Lookup(key, sp.Left.Key.Add(d), sp.Right.Key.Sub(d))
			if !ok {
				skipped++
				continue
			}
			c.addStack(blockOf(h, tp, sp), x.stack, x.gammas, true, sp, tp, 2)
		}
	}
	symmetrize(h)

	c.logger.Debug("hamiltonian", zap.Stringer("key", key), zap.Int("states", n), zap.Int("skipped", skipped), zap.Duration("elapsed", time.Since(start)))
	return &Operator{Bra: key, Ket: key, Dense: h, idx: c.idx}
}

// addStack contracts the intra stack of the source left sector with right couplings.
func (c *Composer) addStack(dst *mat.Dense, comp block.Complement, gammas []sq.String, adjoint bool, sp, tp sector.Pair, f float64) {
	st := c.iops.Stack(comp, sp.Left.Key)
	if st == nil {
		return
	}
	s := st.Canonical()
	for _, g := range gammas {
		t := c.right.Coupling(g, tp.Right.Key, sp.Right.Key)
		if adjoint {
			t = c.right.Coupling(g, sp.Right.Key, tp.Right.Key)
		}
		if t == nil {
			continue
		}
		contract(dst, s, t, adjoint, f)
	}
}

// symmetrize sets h to (h + hᵀ) / 2.
func symmetrize(h *mat.Dense) {
	var t mat.Dense
	t.CloneFrom(h.T())
	h.Add(h, &t)
	h.Scale(0.5, h)
}

// Package dmrg composes the operators of a composite block from the operators of its two halves.
package dmrg

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/block"
	"github.com/fumin/dmrg/integrals"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

// Composer builds the operators of the composite block made of a left and a right block.
// It is read-only after New and safe for concurrent use.
type Composer struct {
	idx   *sector.Index
	left  block.Block
	right block.Block
	ints  *integrals.Table
	part  integrals.Partition

	lops block.Operators
	iops block.Operators
	rops block.Operators

	logger *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger of debug timings, zap.NewNop by default.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) { c.logger = logger }
}

// New slices ints by part and asks build for the left, intra and right operator sets.
// It panics if part does not describe ints and the two blocks.
func New(idx *sector.Index, left, right block.Block, ints *integrals.Table, part integrals.Partition, build block.Builder, opts ...Option) (*Composer, error) {
	part.Validate(ints.Norb())
	if left.Norb() != part.Left || right.Norb() != part.Right {
		panic(fmt.Sprintf("partition %#v, blocks of %d and %d orbitals", part, left.Norb(), right.Norb()))
	}
	c := &Composer{idx: idx, left: left, right: right, ints: ints, part: part, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}

	lt, it, rt := ints.Split(part)
	var err error
	if c.lops, err = build.Build(block.RoleLeft, left, lt); err != nil {
		return nil, errors.Wrap(err, string(block.RoleLeft))
	}
	if c.iops, err = build.Build(block.RoleIntra, left, it); err != nil {
		return nil, errors.Wrap(err, string(block.RoleIntra))
	}
	if c.rops, err = build.Build(block.RoleRight, right, rt); err != nil {
		return nil, errors.Wrap(err, string(block.RoleRight))
	}

	c.logger.Info("composer", zap.Int("norb", ints.Norb()), zap.Int("env", part.Env), zap.Int("left", part.Left), zap.Int("right", part.Right), zap.Int("sectors", len(idx.Keys())))
	return c, nil
}

// Operator is the (Bra, Ket) sector block of a composite operator.
// Every other block of the operator is zero.
type Operator struct {
	Bra sector.Key
	Ket sector.Key
	*mat.Dense

	idx *sector.Index
}

// Block returns the (bra, ket) block.
// A pair of sectors violating the selection rule of the operator gets a fresh zero matrix.
// It panics for an allowed pair other than (Bra, Ket), which was not composed.
func (o *Operator) Block(bra, ket sector.Key) *mat.Dense {
	if bra.Sub(ket) != o.Bra.Sub(o.Ket) {
		return mat.NewDense(o.idx.Info(bra).NStates, o.idx.Info(ket).NStates, nil)
	}
	if bra != o.Bra || ket != o.Ket {
		panic(fmt.Sprintf("block %v %v not composed, have %v %v", bra, ket, o.Bra, o.Ket))
	}
	return o.Dense
}

// Hamiltonians composes the Hamiltonian of each sector in keys using at most workers goroutines.
// The only error is the cancellation of ctx.
func (c *Composer) Hamiltonians(ctx context.Context, keys []sector.Key, workers int) ([]*Operator, error) {
	start := time.Now()
	hs := make([]*Operator, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v", k))
			}
			hs[i] = c.Hamiltonian(k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Info("hamiltonians", zap.Int("sectors", len(keys)), zap.Int("workers", workers), zap.Duration("elapsed", time.Since(start)))
	return hs, nil
}

// Density returns <bra| D |ket> with ket a state of sector key and bra a state of key + spin.
// Only processes leaving one side untouched contribute;
// the element is zero when the untouched side is in different states.
func (c *Composer) Density(spin sq.Spin, key sector.Key, bra, ket, i, j, k int) float64 {
	sp := c.idx.Owner(key, ket)
	tp := c.idx.Owner(key.Add(spin.Shift()), bra)
	sl, sr := sp.Split(ket)
	tl, tr := tp.Split(bra)

	switch {
	case sp.Left.Key == tp.Left.Key:
		if sl != tl {
			return 0
		}
		return c.rops.Density(spin, sp.Right.Key, tr, sr, i, j, k)
	case sp.Right.Key == tp.Right.Key:
		if sr != tr {
			return 0
		}
		return c.lops.Density(spin, sp.Left.Key, tl, sl, i, j, k)
	}
	return 0
}

// external panics unless i is an environment orbital.
func (c *Composer) external(i int) {
	if i < 0 || i >= c.part.Env {
		panic(fmt.Sprintf("orbital %d outside the environment of %d orbitals", i, c.part.Env))
	}
}

// v is the two-electron integral at absolute orbital indices.
func (c *Composer) v(i, j, k, l int) float64 { return c.ints.At2(i, j, k, l) }

// lo and ro map block-local orbitals to absolute indices.
func (c *Composer) lo(a int) int { return a + c.part.LeftOffset() }
func (c *Composer) ro(p int) int { return p + c.part.RightOffset() }

package dmrg

import (
	"context"
	"fmt"
	"maps"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/block"
	"github.com/fumin/dmrg/integrals"
	"github.com/fumin/dmrg/ndarray"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

var allStrings = []sq.String{sq.A, sq.B, sq.AtA, sq.BtB, sq.BtA, sq.AA, sq.BB, sq.BA, sq.AtAtA, sq.AtBtB, sq.BtAtA, sq.BtBtB}

var channels = []sq.Channel{sq.AlphaAlpha, sq.BetaBeta, sq.AlphaBeta}

type fixture struct {
	idx   *sector.Index
	left  *block.Memory
	right *block.Memory
	ints  *integrals.Table
	part  integrals.Partition
	ops   map[block.Role]*block.Ops
}

// newFixture is a two orbital left block and a one orbital right block with random couplings and operators.
func newFixture(seed int64, couplings bool) *fixture {
	return newFixtureOf(seed, couplings, integrals.Partition{Env: 2, Left: 2, Right: 1})
}

// newFixtureOf is newFixture with the orbitals split by part.
func newFixtureOf(seed int64, couplings bool, part integrals.Partition) *fixture {
	rnd := rand.New(rand.NewSource(seed))
	f := &fixture{part: part}

	var lsectors, rsectors []sector.State
	for a := range 3 {
		for b := range 3 {
			lsectors = append(lsectors, sector.State{Key: key(a, b), NStates: 1 + (a+2*b)%2})
		}
	}
	for a := range f.part.Right + 1 {
		for b := range f.part.Right + 1 {
			rsectors = append(rsectors, sector.State{Key: key(a, b), NStates: 1})
		}
	}
	f.left = block.NewMemory(f.part.Left, lsectors)
	f.right = block.NewMemory(f.part.Right, rsectors)
	if couplings {
		randomCouplings(f.left, rnd)
		randomCouplings(f.right, rnd)
	}
	f.idx = sector.Enumerate(lsectors, rsectors)

	f.ints = integrals.New(f.part.Norb())
	for _, s := range [][]float64{f.ints.One(), f.ints.Two()} {
		for i := range s {
			s[i] = rnd.Float64() - 0.5
		}
	}

	f.ops = map[block.Role]*block.Ops{
		block.RoleLeft:  randomOps(f.left, f.part.Env, f.part.Right, rnd),
		block.RoleIntra: randomOps(f.left, f.part.Env, f.part.Right, rnd),
		block.RoleRight: randomOps(f.right, f.part.Env, f.part.Right, rnd),
	}
	return f
}

func (f *fixture) composer(t *testing.T) *Composer {
	c, err := New(f.idx, f.left, f.right, f.ints, f.part, block.BuilderFunc(func(role block.Role, b block.Block, tab *integrals.Table) (block.Operators, error) {
		return f.ops[role], nil
	}))
	require.NoError(t, err)
	return c
}

func randomCouplings(m *block.Memory, rnd *rand.Rand) {
	for _, str := range allStrings {
		for _, s := range m.Sectors() {
			bra := s.Key.Add(str.Shift())
			nb := m.NStates(bra)
			if nb == 0 {
				continue
			}
			a := ndarray.New(append([]int{nb, s.NStates}, repeat(m.Norb(), str.Len())...)...)
			for i := range a.Data() {
				a.Data()[i] = rnd.Float64() - 0.5
			}
			m.SetCoupling(str, bra, s.Key, a)
		}
	}
}

func randomOps(m *block.Memory, next, npartner int, rnd *rand.Rand) *block.Ops {
	ops := block.NewOps()
	for _, s := range m.Sectors() {
		k, ns := s.Key, s.NStates

		h := mat.NewDense(ns, ns, nil)
		for i := range ns {
			for j := range i + 1 {
				v := rnd.Float64() - 0.5
				h.Set(i, j, v)
				h.Set(j, i, v)
			}
		}
		ops.SetHam(k, h)

		for _, spin := range []sq.Spin{sq.Alpha, sq.Beta} {
			bra := k.Add(spin.Shift())
			nb := m.NStates(bra)
			if nb == 0 {
				continue
			}
			for i := range next {
				ops.SetTransition(spin, k, i, randomMatrix(nb, ns, rnd))
			}
			for b := range nb {
				for kt := range ns {
					ops.SetDensity(spin, k, b, kt, 1, 0, 1, rnd.Float64()-0.5)
				}
			}
		}

		for _, ch := range channels {
			for i := range next {
				for j := range next {
					if nb := m.NStates(k.Add(ParticleHoleShift(ch))); nb > 0 {
						ops.SetParticleHole(ch, k, i, j, randomMatrix(nb, ns, rnd))
					}
					if nb := m.NStates(k.Add(PairShift(ch))); nb > 0 {
						ops.SetPair(ch, k, i, j, randomMatrix(nb, ns, rnd))
					}
				}
			}
		}

		for _, c := range block.Complements() {
			nb := m.NStates(k.Add(c.Shift()))
			if nb == 0 {
				continue
			}
			a := ndarray.New(append([]int{nb, ns}, repeat(npartner, c.Norbs())...)...)
			for i := range a.Data() {
				a.Data()[i] = rnd.Float64() - 0.5
			}
			ops.SetStack(c, k, &block.Stack{Layout: block.Ordered, Data: a})
		}
	}
	return ops
}

// unordered stores every stack of o with its orbital axes reversed.
func unordered(o *block.Ops) *block.Ops {
	u := block.NewOps()
	maps.Copy(u.Mats, o.Mats)
	maps.Copy(u.Densities, o.Densities)
	for k, s := range o.Stacks {
		p := ndarray.ReverseTrailing(len(s.Data.Shape()), 2)
		u.Stacks[k] = &block.Stack{Layout: block.Unordered, Data: s.Data.Permute(p)}
	}
	return u
}

func randomMatrix(r, c int, rnd *rand.Rand) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			m.Set(i, j, rnd.Float64()-0.5)
		}
	}
	return m
}

func repeat(n, k int) []int {
	s := make([]int, k)
	for i := range s {
		s[i] = n
	}
	return s
}

func TestHamiltonianSymmetric(t *testing.T) {
	t.Parallel()
	tests := []struct {
		seed int64
	}{
		{seed: 1},
		{seed: 2},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.seed), func(t *testing.T) {
			t.Parallel()
			f := newFixture(test.seed, true)
			c := f.composer(t)
			for _, k := range f.idx.Keys() {
				h := c.Hamiltonian(k)
				n := f.idx.Info(k).NStates
				r, cols := h.Dims()
				require.Equal(t, n, r)
				require.Equal(t, n, cols)
				if !mat.Equal(h, h.T()) {
					t.Fatalf("sector %v not symmetric\n%v", k, mat.Formatted(h))
				}
			}
		})
	}
}

func TestHamiltonianLayouts(t *testing.T) {
	t.Parallel()
	f := newFixtureOf(3, true, integrals.Partition{Env: 1, Left: 2, Right: 2})
	ordered := f.composer(t)

	iops := f.ops[block.RoleIntra]
	f.ops[block.RoleIntra] = unordered(iops)
	reversed := f.composer(t)

	// Reversal must move stored elements for the comparison to mean anything.
	var moved int
	for k, s := range f.ops[block.RoleIntra].Stacks {
		if !slices.Equal(s.Data.Data(), iops.Stacks[k].Data.Data()) {
			moved++
		}
	}
	require.Positive(t, moved)

	for _, k := range f.idx.Keys() {
		a, b := ordered.Hamiltonian(k), reversed.Hamiltonian(k)
		require.Equal(t, a.RawMatrix().Data, b.RawMatrix().Data, "sector %v", k)
	}
}

func TestHamiltoniansConcurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(4, true)
	c := f.composer(t)
	keys := f.idx.Keys()

	hs, err := c.Hamiltonians(context.Background(), keys, 3)
	require.NoError(t, err)
	require.Len(t, hs, len(keys))
	for i, k := range keys {
		require.Equal(t, k, hs[i].Ket)
		if !mat.Equal(hs[i], c.Hamiltonian(k)) {
			t.Fatalf("sector %v differs from sequential composition", k)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Hamiltonians(ctx, keys, 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSelectionRules(t *testing.T) {
	t.Parallel()
	c := newFixture(5, false).composer(t)
	families := []struct {
		name  string
		shift sector.Key
		procs []process
	}{
		{name: "Sa", shift: sq.Alpha.Shift(), procs: c.transitionAlpha(0)},
		{name: "Sb", shift: sq.Beta.Shift(), procs: c.transitionBeta(0)},
		{name: "Qaa", shift: ParticleHoleShift(sq.AlphaAlpha), procs: c.particleHoleSame(sq.Alpha, 0, 1)},
		{name: "Qbb", shift: ParticleHoleShift(sq.BetaBeta), procs: c.particleHoleSame(sq.Beta, 0, 1)},
		{name: "Qab", shift: ParticleHoleShift(sq.AlphaBeta), procs: c.particleHoleAB(0, 1)},
		{name: "Paa", shift: PairShift(sq.AlphaAlpha), procs: c.pairSame(sq.Alpha, 0, 1)},
		{name: "Pbb", shift: PairShift(sq.BetaBeta), procs: c.pairSame(sq.Beta, 0, 1)},
		{name: "Pab", shift: PairShift(sq.AlphaBeta), procs: c.pairAB(0, 1)},
	}
	for _, fam := range families {
		seen := make(map[[2]sector.Key]bool)
		for _, p := range fam.procs {
			if p.dl.Add(p.dr) != fam.shift {
				t.Fatalf("%s process %v %v, expected total %v", fam.name, p.dl, p.dr, fam.shift)
			}
			if seen[[2]sector.Key{p.dl, p.dr}] {
				t.Fatalf("%s duplicated process %v %v", fam.name, p.dl, p.dr)
			}
			seen[[2]sector.Key{p.dl, p.dr}] = true

			for _, x := range p.crosses {
				dl, dr := x.shifts()
				if dl != p.dl || dr != p.dr {
					t.Fatalf("%s cross %v %v in process %v %v", fam.name, dl, dr, p.dl, p.dr)
				}
				for _, d := range x.dressed {
					if d.op.shift() != x.dressed[0].op.shift() || d.op.adjoint != x.dressed[0].op.adjoint {
						t.Fatalf("%s mixed dressing %#v", fam.name, x.dressed)
					}
				}
			}
		}
	}

	for _, x := range exchanges {
		for _, g := range x.gammas {
			if adj(g).shift() != x.stack.Shift().Neg() {
				t.Fatalf("%v with %v", x.stack, g)
			}
		}
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()
	f := newFixture(6, true)
	c := f.composer(t)
	for _, k := range f.idx.Keys() {
		for _, spin := range []sq.Spin{sq.Alpha, sq.Beta} {
			bra := k.Add(spin.Shift())
			if !f.idx.Contains(bra) {
				require.Panics(t, func() { c.Transition(spin, k, 1) })
				continue
			}
			s := c.Transition(spin, k, 1)
			require.Equal(t, bra, s.Bra)
			require.Equal(t, k, s.Ket)
			r, cols := s.Dims()
			require.Equal(t, f.idx.Info(bra).NStates, r)
			require.Equal(t, f.idx.Info(k).NStates, cols)

			zero := s.Block(k, k)
			require.Equal(t, 0.0, mat.Sum(zero))
			require.Equal(t, f.idx.Info(k).NStates, zero.RawMatrix().Rows)
			require.Same(t, s.Dense, s.Block(bra, k))
		}
	}
	require.Panics(t, func() { c.Transition(sq.Alpha, key(0, 0), f.part.Env) })
}

func TestParticleHoleLocal(t *testing.T) {
	t.Parallel()
	f := newFixture(7, false)
	f.ints = integrals.New(f.part.Norb())
	f.ints.Set1(-1, 0, 0)
	c := f.composer(t)
	lops, rops := f.ops[block.RoleLeft], f.ops[block.RoleRight]
	const i, j = 1, 0

	for _, k := range f.idx.Keys() {
		for _, ch := range channels {
			d := ParticleHoleShift(ch)
			bra := k.Add(d)
			if !f.idx.Contains(bra) {
				continue
			}
			q := c.ParticleHole(ch, k, i, j)

			expected := mat.NewDense(f.idx.Info(bra).NStates, f.idx.Info(k).NStates, nil)
			for _, sp := range f.idx.Pairs(k) {
				if tp, ok := f.idx.Lookup(bra, sp.Left.Key.Add(d), sp.Right.Key); ok {
					if ql := lops.ParticleHole(ch, sp.Left.Key, i, j); ql != nil {
						addProduct(expected, tp, sp, ql, nil)
					}
				}
				if tp, ok := f.idx.Lookup(bra, sp.Left.Key, sp.Right.Key.Add(d)); ok {
					if qr := rops.ParticleHole(ch, sp.Right.Key, i, j); qr != nil {
						addProduct(expected, tp, sp, nil, qr)
					}
				}
			}
			if !mat.Equal(expected, q) {
				t.Fatalf("%v %v\n%v\nexpected\n%v", ch, k, mat.Formatted(q), mat.Formatted(expected))
			}
		}
	}
}

// addProduct adds left ⊗ right into the (tp, sp) block of m, a nil factor being the identity.
func addProduct(m *mat.Dense, tp, sp sector.Pair, left, right *mat.Dense) {
	for sr := range sp.Right.NStates {
		for sl := range sp.Left.NStates {
			for tr := range tp.Right.NStates {
				for tl := range tp.Left.NStates {
					lv := delta(tl, sl)
					if left != nil {
						lv = left.At(tl, sl)
					}
					rv := delta(tr, sr)
					if right != nil {
						rv = right.At(tr, sr)
					}
					i, j := tp.Offset+tl+tr*tp.Left.NStates, sp.Offset+sl+sr*sp.Left.NStates
					m.Set(i, j, m.At(i, j)+lv*rv)
				}
			}
		}
	}
}

func delta(a, b int) float64 {
	if a == b {
		return 1
	}
	return 0
}

func TestDensity(t *testing.T) {
	t.Parallel()
	f := newFixture(8, true)
	c := f.composer(t)
	lops, rops := f.ops[block.RoleLeft], f.ops[block.RoleRight]

	var zeros int
	for _, k := range f.idx.Keys() {
		for _, spin := range []sq.Spin{sq.Alpha, sq.Beta} {
			bk := k.Add(spin.Shift())
			if !f.idx.Contains(bk) {
				continue
			}
			for ket := range f.idx.Info(k).NStates {
				for bra := range f.idx.Info(bk).NStates {
					sp, tp := f.idx.Owner(k, ket), f.idx.Owner(bk, bra)
					sl, sr := sp.Split(ket)
					tl, tr := tp.Split(bra)
					got := c.Density(spin, k, bra, ket, 1, 0, 1)

					var expected float64
					switch {
					case sp.Left.Key == tp.Left.Key && sl == tl:
						expected = rops.Density(spin, sp.Right.Key, tr, sr, 1, 0, 1)
					case sp.Left.Key == tp.Left.Key:
						zeros++
					case sp.Right.Key == tp.Right.Key && sr == tr:
						expected = lops.Density(spin, sp.Left.Key, tl, sl, 1, 0, 1)
					}
					if got != expected {
						t.Fatalf("%v %v <%d|%d> %f, expected %f", spin, k, bra, ket, got, expected)
					}
				}
			}
		}
	}
	require.Positive(t, zeros)
}

func TestTransitionLocal(t *testing.T) {
	t.Parallel()
	sectors := []sector.State{{Key: key(0, 0), NStates: 1}, {Key: key(1, 0), NStates: 1}}
	left, right := block.NewMemory(1, sectors), block.NewMemory(1, sectors)
	lops, rops := block.NewOps(), block.NewOps()
	lops.SetTransition(sq.Alpha, key(0, 0), 0, mat.NewDense(1, 1, []float64{0.5}))
	rops.SetTransition(sq.Alpha, key(0, 0), 0, mat.NewDense(1, 1, []float64{-2}))
	sets := map[block.Role]*block.Ops{block.RoleLeft: lops, block.RoleIntra: block.NewOps(), block.RoleRight: rops}

	part := integrals.Partition{Env: 1, Left: 1, Right: 1}
	c, err := New(sector.Enumerate(sectors, sectors), left, right, integrals.New(part.Norb()), part, block.BuilderFunc(func(role block.Role, b block.Block, tab *integrals.Table) (block.Operators, error) {
		require.Equal(t, 2, tab.Norb())
		return sets[role], nil
	}))
	require.NoError(t, err)

	s := c.Transition(sq.Alpha, key(0, 0), 0)
	require.Equal(t, []float64{-2, 0.5}, s.RawMatrix().Data)
}

func TestHamiltonianOnsite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		el, er float64
	}{
		{el: -1, er: 0.25},
		{el: 0.1, er: 0.2},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%f %f", test.el, test.er), func(t *testing.T) {
			t.Parallel()
			sectors := []sector.State{{Key: key(1, 0), NStates: 1}}
			left, right := block.NewMemory(1, sectors), block.NewMemory(1, sectors)
			lops, rops := block.NewOps(), block.NewOps()
			lops.SetHam(key(1, 0), mat.NewDense(1, 1, []float64{test.el}))
			rops.SetHam(key(1, 0), mat.NewDense(1, 1, []float64{test.er}))
			sets := map[block.Role]*block.Ops{block.RoleLeft: lops, block.RoleIntra: block.NewOps(), block.RoleRight: rops}

			part := integrals.Partition{Env: 0, Left: 1, Right: 1}
			c, err := New(sector.Enumerate(sectors, sectors), left, right, integrals.New(part.Norb()), part, block.BuilderFunc(func(role block.Role, b block.Block, tab *integrals.Table) (block.Operators, error) {
				return sets[role], nil
			}))
			require.NoError(t, err)

			h := c.Hamiltonian(key(2, 0))
			require.Equal(t, []float64{test.el + test.er}, h.RawMatrix().Data)
		})
	}
}

func TestPair(t *testing.T) {
	t.Parallel()
	f := newFixture(9, true)
	c := f.composer(t)
	var composed int
	for _, k := range f.idx.Keys() {
		for _, ch := range channels {
			bra := k.Add(PairShift(ch))
			if !f.idx.Contains(bra) {
				require.Panics(t, func() { c.Pair(ch, k, 0, 1) })
				continue
			}
			p := c.Pair(ch, k, 0, 1)
			require.Equal(t, bra, p.Bra)
			require.Equal(t, k, p.Ket)
			r, cols := p.Dims()
			require.Equal(t, f.idx.Info(bra).NStates, r)
			require.Equal(t, f.idx.Info(k).NStates, cols)

			zero := p.Block(k, k)
			require.Equal(t, 0.0, mat.Sum(zero))
			require.Same(t, p.Dense, p.Block(bra, k))
			composed++
		}
	}
	require.Positive(t, composed)
	require.Panics(t, func() { c.Pair(sq.AlphaAlpha, key(2, 0), 0, f.part.Env) })
}

// hop is a step of two environment orbitals and single orbital left and right blocks.
// Every sector holds one state, and the couplings and intra stacks are set by each test.
type hop struct {
	idx         *sector.Index
	left, right *block.Memory
	ints        *integrals.Table
	part        integrals.Partition
	iops        *block.Ops
}

func newHop() *hop {
	var sectors []sector.State
	for a := range 2 {
		for b := range 2 {
			sectors = append(sectors, sector.State{Key: key(a, b), NStates: 1})
		}
	}
	h := &hop{part: integrals.Partition{Env: 2, Left: 1, Right: 1}, iops: block.NewOps()}
	h.left = block.NewMemory(h.part.Left, sectors)
	h.right = block.NewMemory(h.part.Right, sectors)
	h.idx = sector.Enumerate(sectors, sectors)
	h.ints = integrals.New(h.part.Norb())
	for _, s := range [][]float64{h.ints.One(), h.ints.Two()} {
		for i := range s {
			s[i] = math.Sin(float64(i + 1))
		}
	}
	return h
}

func (h *hop) composer(t *testing.T) *Composer {
	sets := map[block.Role]*block.Ops{block.RoleLeft: block.NewOps(), block.RoleIntra: h.iops, block.RoleRight: block.NewOps()}
	c, err := New(h.idx, h.left, h.right, h.ints, h.part, block.BuilderFunc(func(role block.Role, b block.Block, tab *integrals.Table) (block.Operators, error) {
		return sets[role], nil
	}))
	require.NoError(t, err)
	return c
}

func scalar(v float64, norbs int) *ndarray.Array {
	return ndarray.FromData([]float64{v}, repeat(1, 2+norbs)...)
}

func couple(m *block.Memory, str sq.String, bra, ket sector.Key, v float64) {
	m.SetCoupling(str, bra, ket, scalar(v, str.Len()))
}

// element is the amplitude from the state of left sector sl and right sector sr
// to the state of left sector tl and right sector tr.
type element struct {
	tl, tr, sl, sr sector.Key
	v              float64
}

func TestCrossTerms(t *testing.T) {
	t.Parallel()
	const cl, cr = 0.3, -0.7
	// Absolute orbitals of the environment, the left and the right block.
	const i, j, L, R = 0, 1, 2, 3
	o, a, b, ab := key(0, 0), key(1, 0), key(0, 1), key(1, 1)

	tests := []struct {
		name    string
		setup   func(h *hop)
		compose func(c *Composer) *Operator
		want    func(v func(i, j, k, l int) float64) []element
	}{
		{
			name: "Sa outer left",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.AtA, a, a, cr)
			},
			compose: func(c *Composer) *Operator { return c.Transition(sq.Alpha, a, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: a, tr: a, sl: o, sr: a, v: cl * cr * (v(j, R, L, R) - v(j, L, R, R))}}
			},
		},
		{
			name: "Sa spin flip",
			setup: func(h *hop) {
				couple(h.left, sq.BtA, b, a, cl)
				couple(h.right, sq.B, b, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.Transition(sq.Alpha, b, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: a, tr: b, sl: b, sr: o, v: -cl * cr * v(j, R, L, L)}}
			},
		},
		{
			name: "Sb outer left",
			setup: func(h *hop) {
				couple(h.left, sq.B, b, o, cl)
				couple(h.right, sq.AtA, a, a, cr)
			},
			compose: func(c *Composer) *Operator { return c.Transition(sq.Beta, a, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: b, tr: a, sl: o, sr: a, v: cl * cr * v(j, R, L, R)}}
			},
		},
		{
			name: "Qaa",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.A, a, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.ParticleHole(sq.AlphaAlpha, a, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{
					{tl: o, tr: a, sl: a, sr: o, v: -(v(R, i, L, j) - v(R, L, i, j)) * cl * cr},
					{tl: a, tr: o, sl: o, sr: a, v: (v(L, i, R, j) - v(L, R, i, j)) * cl * cr},
				}
			},
		},
		{
			name: "Qbb moving alpha",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.A, a, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.ParticleHole(sq.BetaBeta, a, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{
					{tl: o, tr: a, sl: a, sr: o, v: -v(R, i, L, j) * cl * cr},
					{tl: a, tr: o, sl: o, sr: a, v: v(L, i, R, j) * cl * cr},
				}
			},
		},
		{
			name: "Qbb",
			setup: func(h *hop) {
				couple(h.left, sq.B, b, o, cl)
				couple(h.right, sq.B, b, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.ParticleHole(sq.BetaBeta, b, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{
					{tl: o, tr: b, sl: b, sr: o, v: -(v(R, i, L, j) - v(R, L, i, j)) * cl * cr},
					{tl: b, tr: o, sl: o, sr: b, v: (v(L, i, R, j) - v(L, R, i, j)) * cl * cr},
				}
			},
		},
		{
			name: "Qab",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.B, b, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.ParticleHole(sq.AlphaBeta, a, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: o, tr: b, sl: a, sr: o, v: v(R, L, i, j) * cl * cr}}
			},
		},
		{
			name: "Paa",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.A, a, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.Pair(sq.AlphaAlpha, key(2, 0), i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: o, tr: o, sl: a, sr: a, v: (v(L, R, i, j) - v(R, L, i, j)) * cl * cr}}
			},
		},
		{
			name: "Pbb",
			setup: func(h *hop) {
				couple(h.left, sq.B, b, o, cl)
				couple(h.right, sq.B, b, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.Pair(sq.BetaBeta, key(0, 2), i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: o, tr: o, sl: b, sr: b, v: (v(L, R, i, j) - v(R, L, i, j)) * cl * cr}}
			},
		},
		{
			name: "Pab",
			setup: func(h *hop) {
				couple(h.left, sq.A, a, o, cl)
				couple(h.right, sq.B, b, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.Pair(sq.AlphaBeta, ab, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: o, tr: o, sl: a, sr: b, v: -v(R, L, i, j) * cl * cr}}
			},
		},
		{
			name: "Pab beta left",
			setup: func(h *hop) {
				couple(h.left, sq.B, b, o, cl)
				couple(h.right, sq.A, a, o, cr)
			},
			compose: func(c *Composer) *Operator { return c.Pair(sq.AlphaBeta, ab, i, j) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{{tl: o, tr: o, sl: b, sr: a, v: v(L, R, i, j) * cl * cr}}
			},
		},
		{
			name: "Hamiltonian spin flip",
			setup: func(h *hop) {
				h.iops.SetStack(block.QAB, a, &block.Stack{Data: scalar(cl, 2)})
				couple(h.right, sq.BtA, b, a, cr)
			},
			compose: func(c *Composer) *Operator { return c.Hamiltonian(ab) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{
					{tl: b, tr: a, sl: a, sr: b, v: cl * cr},
					{tl: a, tr: b, sl: b, sr: a, v: cl * cr},
				}
			},
		},
		{
			name: "Hamiltonian density dressed hop",
			setup: func(h *hop) {
				h.iops.SetStack(block.DA, o, &block.Stack{Data: scalar(cl, 3)})
				couple(h.right, sq.AtAtA, ab, b, cr)
				couple(h.right, sq.AtBtB, ab, b, 2*cr)
			},
			compose: func(c *Composer) *Operator { return c.Hamiltonian(ab) },
			want: func(v func(i, j, k, l int) float64) []element {
				return []element{
					{tl: a, tr: b, sl: o, sr: ab, v: 3 * cl * cr},
					{tl: o, tr: ab, sl: a, sr: b, v: 3 * cl * cr},
				}
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			h := newHop()
			test.setup(h)
			got := test.compose(h.composer(t))

			at := func(k, l, r sector.Key) int {
				p, ok := h.idx.Lookup(k, l, r)
				require.True(t, ok, "%v %v %v", k, l, r)
				return p.Offset
			}
			r, cols := got.Dims()
			expected := mat.NewDense(r, cols, nil)
			for _, e := range test.want(h.ints.At2) {
				require.NotZero(t, e.v)
				expected.Set(at(got.Bra, e.tl, e.tr), at(got.Ket, e.sl, e.sr), e.v)
			}
			if !mat.EqualApprox(got, expected, 1e-14) {
				t.Fatalf("%v, expected %v", mat.Formatted(got), mat.Formatted(expected))
			}
		})
	}
}

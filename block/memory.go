package block

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/ndarray"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

type CouplingKey struct {
	Str sq.String
	Bra sector.Key
	Ket sector.Key
}

// Memory is a Block held in memory.
type Memory struct {
	norb    int
	sectors []sector.State
	nstates map[sector.Key]int

	Couplings map[CouplingKey]*ndarray.Array
}

func NewMemory(norb int, sectors []sector.State) *Memory {
	m := &Memory{norb: norb, sectors: slices.Clone(sectors), nstates: make(map[sector.Key]int, len(sectors)), Couplings: make(map[CouplingKey]*ndarray.Array)}
	for _, s := range sectors {
		if _, ok := m.nstates[s.Key]; ok {
			panic(fmt.Sprintf("duplicated sector %v", s.Key))
		}
		m.nstates[s.Key] = s.NStates
	}
	return m
}

func (m *Memory) Norb() int                { return m.norb }
func (m *Memory) Sectors() []sector.State { return m.sectors }

// NStates returns the dimension of sector k, zero if the block has no such sector.
func (m *Memory) NStates(k sector.Key) int { return m.nstates[k] }

func (m *Memory) Coupling(str sq.String, bra, ket sector.Key) *ndarray.Array {
	return m.Couplings[CouplingKey{Str: str, Bra: bra, Ket: ket}]
}

// CouplingShape returns the shape of <bra| str |ket>, false if the sectors violate the selection rule of str.
func (m *Memory) CouplingShape(str sq.String, bra, ket sector.Key) ([]int, bool) {
	if bra != ket.Add(str.Shift()) {
		return nil, false
	}
	shape := []int{m.nstates[bra], m.nstates[ket]}
	for range str.Len() {
		shape = append(shape, m.norb)
	}
	return shape, true
}

// SetCoupling stores <bra| str |ket>.
// It panics if the sectors violate the selection rule of str or the shape does not match the block.
func (m *Memory) SetCoupling(str sq.String, bra, ket sector.Key, a *ndarray.Array) {
	shape, ok := m.CouplingShape(str, bra, ket)
	if !ok {
		panic(fmt.Sprintf("%v from %v to %v", str, ket, bra))
	}
	if !slices.Equal(shape, a.Shape()) {
		panic(fmt.Sprintf("%v from %v to %v shape %v, expected %v", str, ket, bra, a.Shape(), shape))
	}
	m.Couplings[CouplingKey{Str: str, Bra: bra, Ket: ket}] = a
}

// Kind is the family of an operator matrix in Ops.
type Kind byte

const (
	KindHam Kind = iota
	KindTransition
	KindParticleHole
	KindPair
)

// OpKey addresses an operator matrix.
// Label is the spin of a transition and the channel of a particle-hole or pair operator.
type OpKey struct {
	Kind  Kind
	Label byte
	Ket   sector.Key
	I     int
	J     int
}

type DensityKey struct {
	Spin     sq.Spin
	Ket      sector.Key
	Bra      int
	KetState int
	I        int
	J        int
	K        int
}

type StackKey struct {
	Complement Complement
	Ket        sector.Key
}

// Ops is an Operators set held in memory.
type Ops struct {
	Mats      map[OpKey]*mat.Dense
	Densities map[DensityKey]float64
	Stacks    map[StackKey]*Stack
}

func NewOps() *Ops {
	return &Ops{Mats: make(map[OpKey]*mat.Dense), Densities: make(map[DensityKey]float64), Stacks: make(map[StackKey]*Stack)}
}

func (o *Ops) Ham(ket sector.Key) *mat.Dense {
	return o.Mats[OpKey{Kind: KindHam, Ket: ket}]
}

func (o *Ops) Transition(spin sq.Spin, ket sector.Key, i int) *mat.Dense {
	return o.Mats[OpKey{Kind: KindTransition, Label: byte(spin), Ket: ket, I: i}]
}

func (o *Ops) ParticleHole(ch sq.Channel, ket sector.Key, i, j int) *mat.Dense {
	return o.Mats[OpKey{Kind: KindParticleHole, Label: byte(ch), Ket: ket, I: i, J: j}]
}

func (o *Ops) Pair(ch sq.Channel, ket sector.Key, i, j int) *mat.Dense {
	return o.Mats[OpKey{Kind: KindPair, Label: byte(ch), Ket: ket, I: i, J: j}]
}

func (o *Ops) Density(spin sq.Spin, ket sector.Key, bra, ketState, i, j, k int) float64 {
	return o.Densities[DensityKey{Spin: spin, Ket: ket, Bra: bra, KetState: ketState, I: i, J: j, K: k}]
}

func (o *Ops) Stack(c Complement, ket sector.Key) *Stack {
	return o.Stacks[StackKey{Complement: c, Ket: ket}]
}

func (o *Ops) SetHam(ket sector.Key, m *mat.Dense) {
	o.Mats[OpKey{Kind: KindHam, Ket: ket}] = m
}

func (o *Ops) SetTransition(spin sq.Spin, ket sector.Key, i int, m *mat.Dense) {
	o.Mats[OpKey{Kind: KindTransition, Label: byte(spin), Ket: ket, I: i}] = m
}

func (o *Ops) SetParticleHole(ch sq.Channel, ket sector.Key, i, j int, m *mat.Dense) {
	o.Mats[OpKey{Kind: KindParticleHole, Label: byte(ch), Ket: ket, I: i, J: j}] = m
}

func (o *Ops) SetPair(ch sq.Channel, ket sector.Key, i, j int, m *mat.Dense) {
	o.Mats[OpKey{Kind: KindPair, Label: byte(ch), Ket: ket, I: i, J: j}] = m
}

func (o *Ops) SetDensity(spin sq.Spin, ket sector.Key, bra, ketState, i, j, k int, v float64) {
	o.Densities[DensityKey{Spin: spin, Ket: ket, Bra: bra, KetState: ketState, I: i, J: j, K: k}] = v
}

// SetStack panics if the stack does not carry the orbital axes of its family.
func (o *Ops) SetStack(c Complement, ket sector.Key, s *Stack) {
	if n := len(s.Data.Shape()); n != 2+c.Norbs() {
		panic(fmt.Sprintf("%v stack of %d axes", c, n))
	}
	o.Stacks[StackKey{Complement: c, Ket: ket}] = s
}

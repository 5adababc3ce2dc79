// Package integrals holds one- and two-electron integrals and slices them for the blocks of a composite step.
package integrals

import (
	"fmt"

	"github.com/pkg/errors"
)

// Table holds the integrals over norb orbitals.
// The two-electron integral v(i,j,k,l) is stored with i varying fastest.
type Table struct {
	norb int
	one  []float64
	two  []float64
}

func New(norb int) *Table {
	if norb <= 0 {
		panic(fmt.Sprintf("%d orbitals", norb))
	}
	return &Table{norb: norb, one: make([]float64, norb*norb), two: make([]float64, norb*norb*norb*norb)}
}

// FromData wraps existing storage, one of norb^2 and two of norb^4 elements.
func FromData(norb int, one, two []float64) (*Table, error) {
	if norb <= 0 {
		return nil, errors.Errorf("%d orbitals", norb)
	}
	if len(one) != norb*norb {
		return nil, errors.Errorf("%d one-electron integrals for %d orbitals", len(one), norb)
	}
	if len(two) != norb*norb*norb*norb {
		return nil, errors.Errorf("%d two-electron integrals for %d orbitals", len(two), norb)
	}
	return &Table{norb: norb, one: one, two: two}, nil
}

func (t *Table) Norb() int { return t.norb }

// One returns the one-electron storage, (i, j) at i + j*norb.
func (t *Table) One() []float64 { return t.one }

// Two returns the two-electron storage, (i, j, k, l) at i + j*norb + k*norb^2 + l*norb^3.
func (t *Table) Two() []float64 { return t.two }

func (t *Table) At1(i, j int) float64 { return t.one[i+j*t.norb] }

func (t *Table) At2(i, j, k, l int) float64 {
	n := t.norb
	return t.two[i+n*(j+n*(k+n*l))]
}

func (t *Table) Set1(v float64, i, j int) { t.one[i+j*t.norb] = v }

func (t *Table) Set2(v float64, i, j, k, l int) {
	n := t.norb
	t.two[i+n*(j+n*(k+n*l))] = v
}

// Slice returns the table restricted to orbs, orbital m of the slice being orbs[m] of t.
// Every element is copied individually, so index symmetries of t survive
// even when orbs is not contiguous.
func (t *Table) Slice(orbs []int) *Table {
	for _, o := range orbs {
		if o < 0 || o >= t.norb {
			panic(fmt.Sprintf("orbital %d outside %d", o, t.norb))
		}
	}
	s := New(len(orbs))
	for j, jj := range orbs {
		for i, ii := range orbs {
			s.Set1(t.At1(ii, jj), i, j)
		}
	}
	for l, ll := range orbs {
		for k, kk := range orbs {
			for j, jj := range orbs {
				for i, ii := range orbs {
					s.Set2(t.At2(ii, jj, kk, ll), i, j, k, l)
				}
			}
		}
	}
	return s
}

// Partition splits the orbitals of a step into [environment | left | right].
type Partition struct {
	Env   int `yaml:"env"`
	Left  int `yaml:"left"`
	Right int `yaml:"right"`
}

func (p Partition) Norb() int { return p.Env + p.Left + p.Right }

// Validate panics unless p describes norb orbitals with nonempty left and right blocks.
func (p Partition) Validate(norb int) {
	if p.Env < 0 || p.Left <= 0 || p.Right <= 0 {
		panic(fmt.Sprintf("partition %#v", p))
	}
	if p.Norb() != norb {
		panic(fmt.Sprintf("partition %#v of %d orbitals, table has %d", p, p.Norb(), norb))
	}
}

// LeftOffset is the absolute index of the first left orbital.
func (p Partition) LeftOffset() int { return p.Env }

// RightOffset is the absolute index of the first right orbital.
func (p Partition) RightOffset() int { return p.Env + p.Left }

// LeftOrbitals are the environment followed by the left block.
func (p Partition) LeftOrbitals() []int { return span(0, p.Env+p.Left) }

// IntraOrbitals are the left block followed by the right block.
func (p Partition) IntraOrbitals() []int { return span(p.Env, p.Norb()) }

// RightOrbitals are the environment followed by the right block.
func (p Partition) RightOrbitals() []int {
	return append(span(0, p.Env), span(p.RightOffset(), p.Norb())...)
}

// Split slices t into the tables of the left, intra and right operator sets.
func (t *Table) Split(p Partition) (left, intra, right *Table) {
	p.Validate(t.norb)
	return t.Slice(p.LeftOrbitals()), t.Slice(p.IntraOrbitals()), t.Slice(p.RightOrbitals())
}

func span(lo, hi int) []int {
	s := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		s = append(s, i)
	}
	return s
}

// Package block defines the single-block collaborators of a composite step.
//
// A Block exposes the sectors of one block and its coupling tensors.
// An Operators set holds the renormalized operators of one block built against an integral table.
// A nil matrix, tensor or stack returned by either means the quantity is absent and contributes zero.
package block

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/fumin/dmrg/integrals"
	"github.com/fumin/dmrg/ndarray"
	"github.com/fumin/dmrg/sector"
	"github.com/fumin/dmrg/sq"
)

type Block interface {
	Norb() int
	Sectors() []sector.State

	// Coupling returns <bra| str |ket> with shape (bra states, ket states, Norb()...),
	// one orbital axis per operator of str.
	// It returns nil unless bra = ket + str.Shift() and the coupling is stored.
	Coupling(str sq.String, bra, ket sector.Key) *ndarray.Array
}

// Operators are the renormalized operators of a block.
// Every matrix is indexed (bra state, ket state) and keyed by its ket sector.
type Operators interface {
	Ham(ket sector.Key) *mat.Dense
	// Transition maps ket to ket + spin.
	Transition(spin sq.Spin, ket sector.Key, i int) *mat.Dense
	ParticleHole(ch sq.Channel, ket sector.Key, i, j int) *mat.Dense
	Pair(ch sq.Channel, ket sector.Key, i, j int) *mat.Dense
	Density(spin sq.Spin, ket sector.Key, bra, ketState, i, j, k int) float64
	// Stack returns the complementary operators of ket indexed by the orbitals of the partner block.
	Stack(c Complement, ket sector.Key) *Stack
}

// Role names the operator sets built for a composite step.
type Role string

const (
	// RoleLeft is the left block against the environment and left orbitals.
	RoleLeft Role = "left"
	// RoleIntra is the left block against the left and right orbitals,
	// with complementary operators indexed by right orbitals.
	RoleIntra Role = "intra"
	// RoleRight is the right block against the environment and right orbitals.
	RoleRight Role = "right"
)

// Builder creates the operator set of a block for a role.
type Builder interface {
	Build(role Role, b Block, t *integrals.Table) (Operators, error)
}

type BuilderFunc func(role Role, b Block, t *integrals.Table) (Operators, error)

func (f BuilderFunc) Build(role Role, b Block, t *integrals.Table) (Operators, error) {
	return f(role, b, t)
}

// Complement identifies a family of complementary operators.
type Complement byte

const (
	QAA Complement = iota
	QBB
	QAB
	PAA
	PBB
	PAB
	SA
	SB
	DA
	DB
)

var complements = [...]struct {
	name  string
	shift sector.Key
	norbs int
}{
	QAA: {name: "Qaa", norbs: 2},
	QBB: {name: "Qbb", norbs: 2},
	QAB: {name: "Qab", shift: sector.Key{Alpha: -1, Beta: 1}, norbs: 2},
	PAA: {name: "Paa", shift: sector.Key{Alpha: -2}, norbs: 2},
	PBB: {name: "Pbb", shift: sector.Key{Beta: -2}, norbs: 2},
	PAB: {name: "Pab", shift: sector.Key{Alpha: -1, Beta: -1}, norbs: 2},
	SA:  {name: "Sa", shift: sector.Key{Alpha: 1}, norbs: 1},
	SB:  {name: "Sb", shift: sector.Key{Beta: 1}, norbs: 1},
	DA:  {name: "Da", shift: sector.Key{Alpha: 1}, norbs: 3},
	DB:  {name: "Db", shift: sector.Key{Beta: 1}, norbs: 3},
}

// Complements lists every family.
func Complements() []Complement {
	cs := make([]Complement, len(complements))
	for i := range cs {
		cs[i] = Complement(i)
	}
	return cs
}

// Shift is bra key minus ket key of the stack.
func (c Complement) Shift() sector.Key { return complements[c].shift }

// Norbs is the number of orbital axes of the stack.
func (c Complement) Norbs() int { return complements[c].norbs }

func (c Complement) String() string {
	if int(c) >= len(complements) {
		return fmt.Sprintf("Complement(%d)", byte(c))
	}
	return complements[c].name
}

// Layout is the order of the orbital axes of a stack.
type Layout byte

const (
	// Ordered stores orbital axes in the order of the partner coupling string.
	Ordered Layout = iota
	// Unordered stores orbital axes reversed.
	Unordered
)

// Stack is a complementary operator family of one sector with shape (bra, ket, orbital...).
type Stack struct {
	Layout Layout
	Data   *ndarray.Array
}

// Canonical returns the data in the Ordered layout.
// An Unordered stack (bra, ket, ok, ..., o1) is permuted to (bra, ket, o1, ..., ok).
func (s *Stack) Canonical() *ndarray.Array {
	switch s.Layout {
	case Ordered:
		return s.Data
	case Unordered:
		return s.Data.Permute(ndarray.ReverseTrailing(len(s.Data.Shape()), 2))
	default:
		panic(fmt.Sprintf("layout %d", s.Layout))
	}
}

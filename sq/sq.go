// Package sq names second-quantized operators and the strings they form.
package sq

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/dmrg/sector"
)

// Op is an elementary fermionic operator.
type Op byte

const (
	CreateAlpha Op = iota
	AnnihilateAlpha
	CreateBeta
	AnnihilateBeta
)

// Shift is the change in electron count caused by applying o.
func (o Op) Shift() sector.Key {
	switch o {
	case CreateAlpha:
		return sector.Key{Alpha: 1}
	case AnnihilateAlpha:
		return sector.Key{Alpha: -1}
	case CreateBeta:
		return sector.Key{Beta: 1}
	case AnnihilateBeta:
		return sector.Key{Beta: -1}
	default:
		panic(fmt.Sprintf("%d", o))
	}
}

func (o Op) Adjoint() Op {
	switch o {
	case CreateAlpha:
		return AnnihilateAlpha
	case AnnihilateAlpha:
		return CreateAlpha
	case CreateBeta:
		return AnnihilateBeta
	case AnnihilateBeta:
		return CreateBeta
	default:
		panic(fmt.Sprintf("%d", o))
	}
}

func (o Op) String() string {
	switch o {
	case CreateAlpha:
		return "a+"
	case AnnihilateAlpha:
		return "a"
	case CreateBeta:
		return "b+"
	case AnnihilateBeta:
		return "b"
	default:
		return fmt.Sprintf("Op(%d)", byte(o))
	}
}

// String is a product of elementary operators, applied right to left.
// It is comparable and can be used as a map key.
type String string

// Of builds the string op1 op2 ... opk.
func Of(ops ...Op) String {
	b := make([]byte, len(ops))
	for i, o := range ops {
		if o > AnnihilateBeta {
			panic(fmt.Sprintf("%d", o))
		}
		b[i] = byte(o)
	}
	return String(b)
}

// Parse reads the format produced by String.
func Parse(s string) (String, error) {
	fields := strings.Fields(s)
	ops := make([]Op, 0, len(fields))
	for _, f := range fields {
		var o Op
		switch f {
		case "a+":
			o = CreateAlpha
		case "a":
			o = AnnihilateAlpha
		case "b+":
			o = CreateBeta
		case "b":
			o = AnnihilateBeta
		default:
			return "", errors.Errorf("unknown operator %q in %q", f, s)
		}
		ops = append(ops, o)
	}
	return Of(ops...), nil
}

func (s String) Len() int { return len(s) }

func (s String) Ops() []Op {
	ops := make([]Op, len(s))
	for i := range len(s) {
		ops[i] = Op(s[i])
	}
	return ops
}

// Shift is the net change in electron count, bra key minus ket key of any nonzero coupling.
func (s String) Shift() sector.Key {
	var k sector.Key
	for _, o := range s.Ops() {
		k = k.Add(o.Shift())
	}
	return k
}

func (s String) String() string {
	parts := make([]string, 0, len(s))
	for _, o := range s.Ops() {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " ")
}

// Strings whose couplings are consumed when composing operators.
var (
	A   = Of(CreateAlpha)
	B   = Of(CreateBeta)
	AtA = Of(CreateAlpha, AnnihilateAlpha)
	BtB = Of(CreateBeta, AnnihilateBeta)
	BtA = Of(CreateBeta, AnnihilateAlpha)
	AA  = Of(AnnihilateAlpha, AnnihilateAlpha)
	BB  = Of(AnnihilateBeta, AnnihilateBeta)
	BA  = Of(AnnihilateBeta, AnnihilateAlpha)

	AtAtA = Of(CreateAlpha, CreateAlpha, AnnihilateAlpha)
	AtBtB = Of(CreateAlpha, CreateBeta, AnnihilateBeta)
	BtAtA = Of(CreateBeta, CreateAlpha, AnnihilateAlpha)
	BtBtB = Of(CreateBeta, CreateBeta, AnnihilateBeta)
)

// Spin labels the electron species.
type Spin byte

const (
	Alpha Spin = iota
	Beta
)

// Shift is the electron count of one electron of spin s.
func (s Spin) Shift() sector.Key {
	if s == Alpha {
		return sector.Key{Alpha: 1}
	}
	return sector.Key{Beta: 1}
}

func (s Spin) Create() Op {
	if s == Alpha {
		return CreateAlpha
	}
	return CreateBeta
}

func (s Spin) Annihilate() Op { return s.Create().Adjoint() }

// Other is the opposite spin.
func (s Spin) Other() Spin { return 1 - s }

func (s Spin) String() string {
	if s == Alpha {
		return "alpha"
	}
	return "beta"
}

// Channel is the spin pairing of a two-index operator.
type Channel byte

const (
	AlphaAlpha Channel = iota
	BetaBeta
	AlphaBeta
)

func (c Channel) String() string {
	switch c {
	case AlphaAlpha:
		return "aa"
	case BetaBeta:
		return "bb"
	case AlphaBeta:
		return "ab"
	default:
		return fmt.Sprintf("Channel(%d)", byte(c))
	}
}

// Package sector implements the electron-count bookkeeping of a composite block.
//
// A composite basis is the tensor product of the bases of a left and a right block.
// It splits into sectors of fixed (n_alpha, n_beta), and each sector is tiled by the
// pairs of left and right sectors whose electron counts add up to it.
package sector

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Key is the electron count of a sector.
type Key struct {
	Alpha int
	Beta  int
}

func (k Key) Add(d Key) Key { return Key{Alpha: k.Alpha + d.Alpha, Beta: k.Beta + d.Beta} }
func (k Key) Sub(d Key) Key { return Key{Alpha: k.Alpha - d.Alpha, Beta: k.Beta - d.Beta} }
func (k Key) Neg() Key      { return Key{Alpha: -k.Alpha, Beta: -k.Beta} }

// N is the total number of electrons.
func (k Key) N() int { return k.Alpha + k.Beta }

// Compare orders keys by alpha count, then beta count.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Alpha, o.Alpha); c != 0 {
		return c
	}
	return cmp.Compare(k.Beta, o.Beta)
}

func (k Key) String() string { return fmt.Sprintf("(%d,%d)", k.Alpha, k.Beta) }

// State is one sector of a single block.
type State struct {
	Key     Key
	NStates int
}

// Pair is a (left sector, right sector) combination occupying the contiguous range
// [Offset, Offset+NStates()) of a composite sector.
// Inside the range the left state index varies fastest.
type Pair struct {
	Left   State
	Right  State
	Offset int
}

func (p Pair) NStates() int { return p.Left.NStates * p.Right.NStates }

// Split decomposes a composite index owned by p into its left and right substates.
func (p Pair) Split(state int) (int, int) {
	local := state - p.Offset
	if local < 0 || local >= p.NStates() {
		panic(fmt.Sprintf("state %d outside pair %#v", state, p))
	}
	return local % p.Left.NStates, local / p.Left.NStates
}

// Info is the total dimension of a composite sector.
type Info struct {
	Key     Key
	NStates int
}

type pairKey struct {
	left  Key
	right Key
}

// Index holds the block pairs of every sector of a composite block.
// It is read-only after construction and safe for concurrent use.
type Index struct {
	pairs  map[Key][]Pair
	infos  map[Key]Info
	lookup map[Key]map[pairKey]int
}

// NewIndex builds an index from the pairs of each sector.
// It returns an error if the pairs of a sector do not tile its range exactly,
// or if a sector holds a pair whose electron counts do not add up to the sector key.
func NewIndex(pairs map[Key][]Pair) (*Index, error) {
	x := &Index{
		pairs:  make(map[Key][]Pair, len(pairs)),
		infos:  make(map[Key]Info, len(pairs)),
		lookup: make(map[Key]map[pairKey]int, len(pairs)),
	}
	for k, ps := range pairs {
		sorted := slices.Clone(ps)
		slices.SortFunc(sorted, func(a, b Pair) int { return cmp.Compare(a.Offset, b.Offset) })

		lookup := make(map[pairKey]int, len(sorted))
		var n int
		for i, p := range sorted {
			if p.Left.Key.Add(p.Right.Key) != k {
				return nil, errors.Errorf("sector %v pair %#v", k, p)
			}
			if p.Left.NStates <= 0 || p.Right.NStates <= 0 {
				return nil, errors.Errorf("sector %v empty pair %#v", k, p)
			}
			if p.Offset != n {
				return nil, errors.Errorf("sector %v pair %d offset %d, expected %d", k, i, p.Offset, n)
			}
			pk := pairKey{left: p.Left.Key, right: p.Right.Key}
			if _, ok := lookup[pk]; ok {
				return nil, errors.Errorf("sector %v duplicated pair %v %v", k, pk.left, pk.right)
			}
			lookup[pk] = i
			n += p.NStates()
		}

		x.pairs[k] = sorted
		x.infos[k] = Info{Key: k, NStates: n}
		x.lookup[k] = lookup
	}
	return x, nil
}

// Enumerate combines every left sector with every right sector.
// Pairs of a sector are laid out in increasing order of their left key.
func Enumerate(left, right []State) *Index {
	lsorted := slices.Clone(left)
	slices.SortFunc(lsorted, func(a, b State) int { return a.Key.Compare(b.Key) })
	rsorted := slices.Clone(right)
	slices.SortFunc(rsorted, func(a, b State) int { return a.Key.Compare(b.Key) })

	pairs := make(map[Key][]Pair)
	offsets := make(map[Key]int)
	for _, l := range lsorted {
		for _, r := range rsorted {
			if l.NStates == 0 || r.NStates == 0 {
				continue
			}
			k := l.Key.Add(r.Key)
			p := Pair{Left: l, Right: r, Offset: offsets[k]}
			pairs[k] = append(pairs[k], p)
			offsets[k] += p.NStates()
		}
	}

	x, err := NewIndex(pairs)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return x
}

// Keys returns the sector keys in increasing order.
func (x *Index) Keys() []Key {
	keys := make([]Key, 0, len(x.infos))
	for k := range x.infos {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}

func (x *Index) Contains(k Key) bool {
	_, ok := x.infos[k]
	return ok
}

// Pairs returns the pairs of sector k ordered by offset.
// It panics if the sector does not exist.
func (x *Index) Pairs(k Key) []Pair {
	ps, ok := x.pairs[k]
	if !ok {
		panic(fmt.Sprintf("no sector %v", k))
	}
	return ps
}

// Info panics if the sector does not exist.
func (x *Index) Info(k Key) Info {
	info, ok := x.infos[k]
	if !ok {
		panic(fmt.Sprintf("no sector %v", k))
	}
	return info
}

// Lookup returns the pair of sector k made of the given left and right sectors.
func (x *Index) Lookup(k, left, right Key) (Pair, bool) {
	lookup, ok := x.lookup[k]
	if !ok {
		return Pair{}, false
	}
	i, ok := lookup[pairKey{left: left, right: right}]
	if !ok {
		return Pair{}, false
	}
	return x.pairs[k][i], true
}

// Owner returns the pair of sector k whose range contains the composite index state.
// It panics if state is out of range.
func (x *Index) Owner(k Key, state int) Pair {
	ps := x.Pairs(k)
	i, found := slices.BinarySearchFunc(ps, state, func(p Pair, s int) int { return cmp.Compare(p.Offset, s) })
	if !found {
		i--
	}
	if i < 0 || state >= ps[i].Offset+ps[i].NStates() {
		panic(fmt.Sprintf("state %d outside sector %v of %d states", state, k, x.Info(k).NStates))
	}
	return ps[i]
}

// Package ndarray is a dense float64 tensor stored with the first axis varying fastest.
//
// Coupling tensors and complementary operator stacks are laid out as (bra, ket, orbital...),
// so every fixed orbital tuple selects a contiguous bra-by-ket slab.
package ndarray

import (
	"fmt"
	"slices"
)

type Array struct {
	shape []int
	data  []float64
}

// New returns a zero array.
func New(shape ...int) *Array {
	return &Array{shape: slices.Clone(shape), data: make([]float64, size(shape))}
}

// FromData wraps data, which must hold exactly the number of elements of shape.
func FromData(data []float64, shape ...int) *Array {
	if len(data) != size(shape) {
		panic(fmt.Sprintf("%d elements for shape %v", len(data), shape))
	}
	return &Array{shape: slices.Clone(shape), data: data}
}

func (a *Array) Shape() []int    { return a.shape }
func (a *Array) Data() []float64 { return a.data }
func (a *Array) Size() int       { return len(a.data) }

func (a *Array) At(index ...int) float64 { return a.data[a.offset(index)] }

func (a *Array) Set(v float64, index ...int) { a.data[a.offset(index)] = v }

// SlabSize is the number of elements spanned by the first two axes.
func (a *Array) SlabSize() int { return a.shape[0] * a.shape[1] }

// NumSlabs is the number of orbital tuples, the product of every axis after the second.
func (a *Array) NumSlabs() int { return len(a.data) / a.SlabSize() }

// Slab returns the contiguous (axis 0, axis 1) slice at compound trailing index o.
// The returned slice aliases the array.
func (a *Array) Slab(o int) []float64 {
	n := a.SlabSize()
	return a.data[o*n : (o+1)*n]
}

func (a *Array) offset(index []int) int {
	if len(index) != len(a.shape) {
		panic(fmt.Sprintf("index %v for shape %v", index, a.shape))
	}
	var off int
	stride := 1
	for i, x := range index {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("index %v out of shape %v", index, a.shape))
		}
		off += x * stride
		stride *= a.shape[i]
	}
	return off
}

// Perm is an axis permutation: axis m of the result is axis Perm[m] of the source.
type Perm []int

// Identity leaves the n axes of an array in place.
func Identity(n int) Perm {
	p := make(Perm, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// ReverseTrailing keeps the first lead axes and reverses the order of the others.
// It maps a (bra, ket, o1, ..., ok) array to (bra, ket, ok, ..., o1).
func ReverseTrailing(ndim, lead int) Perm {
	p := Identity(ndim)
	slices.Reverse(p[lead:])
	return p
}

func (p Perm) valid() bool {
	seen := make([]bool, len(p))
	for _, x := range p {
		if x < 0 || x >= len(p) || seen[x] {
			return false
		}
		seen[x] = true
	}
	return true
}

// Permute returns a new array with its axes rearranged by p.
func (a *Array) Permute(p Perm) *Array {
	if len(p) != len(a.shape) || !p.valid() {
		panic(fmt.Sprintf("permutation %v for shape %v", p, a.shape))
	}
	shape := make([]int, len(p))
	for m, src := range p {
		shape[m] = a.shape[src]
	}
	b := New(shape...)

	srcStrides := strides(a.shape)
	index := make([]int, len(shape))
	for i := range b.data {
		var off int
		for m, x := range index {
			off += x * srcStrides[p[m]]
		}
		b.data[i] = a.data[off]

		for m := range index {
			index[m]++
			if index[m] < shape[m] {
				break
			}
			index[m] = 0
		}
	}
	return b
}

// Unravel decomposes a compound index over k axes of extent n into dst, first axis fastest.
func Unravel(dst []int, compound, n int) []int {
	for m := range dst {
		dst[m] = compound % n
		compound /= n
	}
	return dst
}

// Pow returns n to the k.
func Pow(n, k int) int {
	p := 1
	for range k {
		p *= n
	}
	return p
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i, n := range shape {
		s[i] = stride
		stride *= n
	}
	return s
}

func size(shape []int) int {
	n := 1
	for _, x := range shape {
		if x < 0 {
			panic(fmt.Sprintf("negative shape %v", shape))
		}
		n *= x
	}
	return n
}

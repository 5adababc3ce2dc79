// Package eigen diagonalizes composed Hamiltonians.
package eigen

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"slices"
	"strconv"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type ValVec struct {
	Val float64
	Vec []float64
}

// Symmetric returns every eigenpair of the symmetric matrix h in increasing order of eigenvalue.
// Only the upper triangle of h is read.
func Symmetric(h mat.Matrix) ([]ValVec, error) {
	n, c := h.Dims()
	if n != c {
		return nil, errors.Errorf("%dx%d matrix", n, c)
	}
	sym := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, h.At(i, j))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errors.Errorf("factorization of %dx%d matrix failed", n, n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vvs = append(vvs, ValVec{Val: v, Vec: mat.Col(nil, i, &vecs)})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}

// Arnoldi returns the lowest eigenpair of h by Arnoldi iteration in single precision.
// The eigenvector is normalized with its largest component positive.
func Arnoldi(h mat.Matrix) (ValVec, error) {
	n, c := h.Dims()
	if n != c {
		return ValVec{}, errors.Errorf("%dx%d matrix", n, c)
	}
	rows := make([][]complex64, n)
	for i := range rows {
		rows[i] = make([]complex64, n)
		for j := range rows[i] {
			rows[i][j] = complex(float32(h.At(i, j)), 0)
		}
	}

	eigvals, eigvecs := tensor.Zeros(1), tensor.Zeros(1)
	var bufs [7]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	if err := tensor.Arnoldi(eigvals, eigvecs, tensor.T2(rows), 1, bufs); err != nil {
		return ValVec{}, errors.Wrap(err, fmt.Sprintf("%dx%d", n, n))
	}

	// Remove the arbitrary phase of the eigenvector.
	vec := eigvecs.Reshape(n)
	var pivot complex128
	for i := range n {
		if v := complex128(vec.At(i)); cmplx.Abs(v) > cmplx.Abs(pivot) {
			pivot = v
		}
	}
	if pivot == 0 {
		return ValVec{}, errors.Errorf("zero eigenvector")
	}
	phase := pivot / complex(cmplx.Abs(pivot), 0)
	vv := ValVec{Val: float64(real(eigvals.Reshape(1).At(0))), Vec: make([]float64, n)}
	for i := range n {
		vv.Vec[i] = real(complex128(vec.At(i)) / phase)
	}
	floats.Scale(1/floats.Norm(vv.Vec, 2), vv.Vec)
	return vv, nil
}

// WriteCSV writes the eigenvalues on the first row and the eigenvectors as columns below.
func WriteCSV(w io.Writer, vvs []ValVec) error {
	cw := csv.NewWriter(w)
	row := make([]string, len(vvs))
	for j, vv := range vvs {
		row[j] = strconv.FormatFloat(vv.Val, 'f', -1, 64)
	}
	if err := cw.Write(row); err != nil {
		return errors.Wrap(err, "")
	}
	if len(vvs) > 0 {
		for i := range len(vvs[0].Vec) {
			for j, vv := range vvs {
				row[j] = strconv.FormatFloat(vv.Vec[i], 'f', -1, 64)
			}
			if err := cw.Write(row); err != nil {
				return errors.Wrap(err, "")
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadCSV reads the format of WriteCSV.
func ReadCSV(r io.Reader) ([]ValVec, error) {
	cr := csv.NewReader(r)
	record, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	vvs := make([]ValVec, len(record))
	for j, s := range record {
		if vvs[j].Val, err = parseFloat(s); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("row %d", row))
		}
		for j, s := range record {
			v, err := parseFloat(s)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("row %d", row))
			}
			vvs[j].Vec = append(vvs[j].Vec, v)
		}
	}
	return vvs, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return v, nil
}

package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Concatenate multiple vectors.
func ConcatVecs(size int, vecs ...mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(size, nil)
	offset := 0
	var slice *mat.VecDense
	for _, vec := range vecs {
		slice = out.SliceVec(offset, offset+vec.Len()).(*mat.VecDense)
		slice.CopyVec(vec)
		offset += vec.Len()
	}
	return out
}

// Make a (rows x cols) block diagonal matrix. Blocks need not be square.
func BlockDiag(rows, cols int, mats ...mat.Matrix) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	rOff, cOff := 0, 0
	var r, c int
	for _, matrix := range mats {
		r, c = matrix.Dims()
		out.Slice(rOff, rOff+r, cOff, cOff+c).(*mat.Dense).Copy(matrix)
		rOff += r
		cOff += c
	}
	return out
}

// Identity Matrix.
func Eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// Symmetrize returns (a + aᵀ) / 2 for a square matrix a.
func Symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// HasNaNOrInf reports whether any entry of the matrix is NaN or infinite.
func HasNaNOrInf(a mat.Matrix) bool {
	m, n := a.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			v := a.At(row, col)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// IsSymmetric reports whether a square matrix equals its transpose within tol.
func IsSymmetric(a mat.Matrix, tol float64) bool {
	m, n := a.Dims()
	if m != n {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(a.At(i, j)-a.At(j, i)) > tol*math.Max(1, math.Abs(a.At(i, j))) {
				return false
			}
		}
	}
	return true
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package gopos

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve the observation equation v = H dx by least squares
// - Rows of H and v are expected to be scaled by 1/sigma beforehand
// - dx = (H^t H)^-1 H^t v
// - Return the error covariance matrix (H^t H)^-1 as Q
func SolveLS(H mat.Matrix, v mat.Vector) (dx *mat.VecDense, Q *mat.SymDense, err error) {

	n, m := H.Dims()
	if n != v.Len() {
		return nil, nil, fmt.Errorf("invalid matrix size. H(%d x %d), v(%d x 1)", n, m, v.Len())
	}
	if n < m {
		return nil, nil, fmt.Errorf("%w: rank deficient, %d equations < %d unknowns", ErrSingular, n, m)
	}

	// A (H^t H)
	A := mat.NewSymDense(m, nil)
	A.SymOuterK(1, H.T())

	// b (H^t v)
	var b mat.VecDense
	b.MulVec(H.T(), v)

	// Solve via Cholesky decomposition
	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, nil, fmt.Errorf("%w: normal matrix is not positive definite", ErrSingular)
	}
	if c := chol.Cond(); c > 1e15 {
		return nil, nil, fmt.Errorf("%w: ill-conditioned normal matrix, cond=%.3g", ErrSingular, c)
	}
	dx = mat.NewVecDense(m, nil)
	if err = chol.SolveVecTo(dx, &b); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	// Set (H^t H)^-1 as the covariance matrix
	Q = mat.NewSymDense(m, nil)
	if err = chol.InverseTo(Q); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	return dx, Q, nil
}

// Inverse of a symmetric positive definite matrix
func invSym(A mat.Symmetric) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, fmt.Errorf("%w: matrix is not positive definite", ErrSingular)
	}
	n, _ := A.Dims()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return inv, nil
}

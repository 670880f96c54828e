package gf256

// PolyAdd adds two polynomials coefficient-wise. The result has the length
// of the longer operand.
func PolyAdd(a, b []byte) []byte {
	if len(a) < len(b) {
		a, b = b, a
	}
	result := make([]byte, len(a))
	copy(result, a)
	for i, c := range b {
		result[i] ^= c
	}
	return result
}

// PolyMul multiplies two polynomials.
func PolyMul(a, b []byte) []byte {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	result := make([]byte, len(a)+len(b)-1)
	for i, ac := range a {
		if ac == 0 {
			continue
		}
		for j, bc := range b {
			result[i+j] ^= Mul(ac, bc)
		}
	}
	return result
}

// PolyScale multiplies every coefficient of p by s.
func PolyScale(p []byte, s byte) []byte {
	result := make([]byte, len(p))
	for i, c := range p {
		result[i] = Mul(c, s)
	}
	return result
}

// Interpolate returns the coefficients of the unique polynomial of degree
// less than len(xs) passing through the points (xs[i], ys[i]). The xs must
// be pairwise distinct.
//
// Each Lagrange basis polynomial is built symbolically:
//
//	L_i(x) = prod_{j != i} (x - x_j) / (x_i - x_j)
//
// and the result is sum_i y_i * L_i(x).
func Interpolate(xs, ys []byte) []byte {
	if len(xs) != len(ys) {
		panic("gf256: mismatched point counts")
	}

	result := make([]byte, len(xs))
	for i := range xs {
		basis := []byte{1}
		for j := range xs {
			if i == j {
				continue
			}
			denominator := Sub(xs[i], xs[j])
			if denominator == 0 {
				panic("gf256: duplicate x values in interpolation")
			}
			inv := Inv(denominator)
			// (x - x_j) / d == (x_j/d) + (1/d)x, negation is a no-op here
			basis = PolyMul(basis, []byte{Mul(xs[j], inv), inv})
		}
		result = PolyAdd(result, PolyScale(basis, ys[i]))
	}
	return result
}

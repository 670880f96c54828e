// Package gf256 implements arithmetic in GF(2^8) using the Rijndael
// irreducible polynomial x^8 + x^4 + x^3 + x + 1 (0x11B), the same field
// used by AES and by most byte-oriented Shamir implementations.
package gf256

const (
	// Rijndael polynomial: x^8 + x^4 + x^3 + x + 1
	Polynomial = 0x11B

	// generator of the multiplicative group under Polynomial
	generator = 0x03
)

// exp and log tables for efficient multiplication/division
var (
	expTable [256]byte
	logTable [256]byte
)

func init() {
	x := byte(1)
	for i := 0; i < 255; i++ {
		expTable[i] = x
		logTable[x] = byte(i)
		x = mulSlow(x, generator)
	}
	// Complete the cycle so exp[log a + log b] never needs a second reduction
	expTable[255] = expTable[0]
	// log(0) is undefined; callers must special-case zero
	logTable[0] = 0
}

// mulSlow multiplies two elements with the carry-less schoolbook method,
// reducing by the polynomial whenever the high bit is shifted out.
func mulSlow(a, b byte) byte {
	var result byte
	for i := 0; i < 8; i++ {
		if (b>>i)&1 == 1 {
			result ^= a
		}
		carry := a & 0x80
		a <<= 1
		if carry != 0 {
			a ^= byte(Polynomial & 0xFF)
		}
	}
	return result
}

// Add performs addition in GF(256), which is XOR.
func Add(a, b byte) byte {
	return a ^ b
}

// Sub performs subtraction in GF(256). It is identical to Add.
func Sub(a, b byte) byte {
	return a ^ b
}

// Mul performs multiplication in GF(256) using the log/exp tables.
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%255]
}

// Inv returns the multiplicative inverse of a. Zero has no inverse and
// causes a panic; share indices and their differences are never zero.
func Inv(a byte) byte {
	if a == 0 {
		panic("gf256: inverse of zero")
	}
	return expTable[(255-int(logTable[a]))%255]
}

// Div performs division in GF(256).
func Div(a, b byte) byte {
	if b == 0 {
		panic("gf256: division by zero")
	}
	if a == 0 {
		return 0
	}
	return expTable[(int(logTable[a])-int(logTable[b])+255)%255]
}

// Eval evaluates the polynomial with the given coefficients at x using
// Horner's method. coeffs[0] is the constant term.
func Eval(coeffs []byte, x byte) byte {
	var acc byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = Add(Mul(acc, x), coeffs[i])
	}
	return acc
}

// Package ofcurve wraps the NIST P-224 curve operations the rest of
// this module is built on: scalar arithmetic modulo the group order,
// point scalar multiplication, and SEC1 point (de)compression.
//
// It is a thin layer over crypto/elliptic — see DESIGN.md for why no
// third-party curve library is used here. Nothing above this package
// should reach for crypto/elliptic or math/big directly.
package ofcurve

import (
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// Curve is the P-224 curve every key in this module lives on.
var Curve = elliptic.P224()

const (
	// ScalarSize is the big-endian byte width of a P-224 scalar.
	ScalarSize = 28
	// PointSize is the width of a SEC1 compressed point: one prefix
	// byte (0x02/0x03) plus one field element.
	PointSize = ScalarSize + 1
)

var (
	ErrZeroScalar       = errors.New("ofcurve: scalar is zero")
	ErrScalarOutOfRange = errors.New("ofcurve: scalar is not less than the group order")
	ErrIdentityPoint    = errors.New("ofcurve: point is the identity element")
	ErrInvalidPoint     = errors.New("ofcurve: malformed SEC1 point encoding")
)

// Scalar is an integer modulo the P-224 group order.
type Scalar struct {
	v *big.Int
}

// ScalarFromBytes interprets b as a big-endian integer and validates it
// against the group order. It fails closed: a zero or out-of-range
// scalar is never silently reduced, since both conditions signal a
// cryptographic invariant violation upstream (see spec §4.1).
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, ErrInvalidPoint
	}
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return Scalar{}, ErrZeroScalar
	}
	if n.Cmp(Curve.Params().N) >= 0 {
		return Scalar{}, ErrScalarOutOfRange
	}
	return Scalar{v: n}, nil
}

// GenerateScalar draws a uniformly random nonzero scalar via rejection
// sampling over rnd.
func GenerateScalar(rnd io.Reader) (Scalar, error) {
	order := Curve.Params().N
	for {
		buf := make([]byte, ScalarSize)
		if _, err := io.ReadFull(rnd, buf); err != nil {
			return Scalar{}, err
		}
		n := new(big.Int).SetBytes(buf)
		if n.Sign() == 0 || n.Cmp(order) >= 0 {
			continue
		}
		return Scalar{v: n}, nil
	}
}

// MustGenerateScalar is GenerateScalar over crypto/rand, for callers
// that treat entropy-source failure as fatal (identity key generation
// at process start, not anything on the hot path).
func MustGenerateScalar() (Scalar, error) {
	return GenerateScalar(rand.Reader)
}

// Bytes returns the big-endian, ScalarSize-wide encoding of s.
func (s Scalar) Bytes() [ScalarSize]byte {
	var out [ScalarSize]byte
	s.v.FillBytes(out[:])
	return out
}

// Mul returns s*other mod the group order. This is ordinary modular
// multiplication of two scalars — used to derive a new private key
// from a shared scalar and an existing private scalar — not point
// scalar multiplication.
func (s Scalar) Mul(other Scalar) Scalar {
	product := new(big.Int).Mul(s.v, other.v)
	product.Mod(product, Curve.Params().N)
	return Scalar{v: product}
}

// IsZero reports whether s is the zero scalar.
func (s Scalar) IsZero() bool {
	return s.v == nil || s.v.Sign() == 0
}

// Point is a non-identity affine point on P-224.
type Point struct {
	X, Y *big.Int
}

// IsIdentity reports whether p is the point at infinity, represented
// here (as crypto/elliptic does) by a nil or zero coordinate pair.
func (p Point) IsIdentity() bool {
	return p.X == nil || p.Y == nil || (p.X.Sign() == 0 && p.Y.Sign() == 0)
}

// CompressedBytes returns the 29-byte SEC1 compressed encoding of p.
// Callers must ensure p is not the identity point.
func (p Point) CompressedBytes() [PointSize]byte {
	var out [PointSize]byte
	compressed := elliptic.MarshalCompressed(Curve, p.X, p.Y)
	copy(out[:], compressed)
	return out
}

// PointFromCompressed decodes a 29-byte SEC1 compressed point.
func PointFromCompressed(b []byte) (Point, error) {
	if len(b) != PointSize {
		return Point{}, ErrInvalidPoint
	}
	x, y := elliptic.UnmarshalCompressed(Curve, b)
	if x == nil {
		return Point{}, ErrInvalidPoint
	}
	p := Point{X: x, Y: y}
	if p.IsIdentity() {
		return Point{}, ErrIdentityPoint
	}
	return p, nil
}

// ScalarBaseMult computes s*G, the public point for private scalar s.
func ScalarBaseMult(s Scalar) Point {
	b := s.Bytes()
	x, y := Curve.ScalarBaseMult(b[:])
	return Point{X: x, Y: y}
}

// ScalarMultPoint computes s*p. It fails with ErrIdentityPoint if the
// result is the point at infinity — this can only happen if s is a
// multiple of the group order, which ScalarFromBytes/GenerateScalar
// already preclude, but the check is kept here since it is this
// function's own invariant to uphold.
func ScalarMultPoint(s Scalar, p Point) (Point, error) {
	b := s.Bytes()
	x, y := Curve.ScalarMult(p.X, p.Y, b[:])
	out := Point{X: x, Y: y}
	if out.IsIdentity() {
		return Point{}, ErrIdentityPoint
	}
	return out, nil
}

// Package ofkey implements the key-derivation kernel and the
// SecretKey/PublicKey types spec.md §3-§4.1 defines: non-interactive
// ECDH plus a hash-and-truncate step that turns two P-224 keys into
// the next scalar in a rotation. The OfflineFindingPublicKey view of
// a PublicKey lives in package blecodec.
package ofkey

import (
	"bytes"
	"crypto/sha256"

	"github.com/oftrelay/covertchan/ofcurve"
)

// SecretKey is a nonzero P-224 scalar.
type SecretKey struct {
	scalar ofcurve.Scalar
}

// NewSecretKey wraps a raw scalar as a SecretKey without checking it;
// the caller must pass a nonzero scalar.
func NewSecretKey(s ofcurve.Scalar) SecretKey {
	return SecretKey{scalar: s}
}

// SecretKeyFromBytes decodes a 28-byte big-endian scalar.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	s, err := ofcurve.ScalarFromBytes(b)
	if err != nil {
		return SecretKey{}, err
	}
	return SecretKey{scalar: s}, nil
}

// GenerateSecretKey draws a fresh identity or channel-anchor key.
func GenerateSecretKey() (SecretKey, error) {
	s, err := ofcurve.MustGenerateScalar()
	if err != nil {
		return SecretKey{}, err
	}
	return SecretKey{scalar: s}, nil
}

// Bytes returns the 28-byte big-endian scalar encoding.
func (k SecretKey) Bytes() [ofcurve.ScalarSize]byte {
	return k.scalar.Bytes()
}

// Scalar exposes the underlying group-order scalar, for the rotation
// math in package channel.
func (k SecretKey) Scalar() ofcurve.Scalar {
	return k.scalar
}

// PublicKey returns the SEC1 point k*G.
func (k SecretKey) PublicKey() PublicKey {
	return PublicKey{point: ofcurve.ScalarBaseMult(k.scalar)}
}

// PublicKey is a non-identity P-224 affine point.
type PublicKey struct {
	point ofcurve.Point
}

// NewPublicKey wraps a curve point that the caller has already
// checked is not the identity element.
func NewPublicKey(p ofcurve.Point) PublicKey {
	return PublicKey{point: p}
}

// PublicKeyFromSEC1 decodes a 29-byte compressed point.
func PublicKeyFromSEC1(b []byte) (PublicKey, error) {
	p, err := ofcurve.PointFromCompressed(b)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{point: p}, nil
}

// ToSEC1Bytes returns the 29-byte compressed point encoding.
func (k PublicKey) ToSEC1Bytes() [ofcurve.PointSize]byte {
	return k.point.CompressedBytes()
}

// Point exposes the underlying curve point, for scalar multiplication
// during channel rotation.
func (k PublicKey) Point() ofcurve.Point {
	return k.point
}

// dh computes the P-224 point priv*pub and returns its compressed
// X-coordinate bytes, discarding the one-byte SEC1 sign prefix, as
// spec.md §4.1 "dh" requires.
func dh(priv SecretKey, pub PublicKey) ([ofcurve.ScalarSize]byte, error) {
	product, err := ofcurve.ScalarMultPoint(priv.scalar, pub.point)
	if err != nil {
		return [ofcurve.ScalarSize]byte{}, err
	}
	compressed := product.CompressedBytes()
	var out [ofcurve.ScalarSize]byte
	copy(out[:], compressed[1:])
	return out, nil
}

// SharedScalar implements spec.md §4.1's shared_scalar: a
// non-interactive ECDH plus a symmetric hash-and-truncate step that
// both parties compute identically regardless of which key they call
// "ours" and which "theirs".
//
// The two compressed public keys are sorted by byte value before
// hashing (lo, hi) rather than concatenated in caller order — this is
// the fix for the hash-input symmetry bug spec.md §9 documents in the
// original source: concatenating in caller order desynchronizes the
// two sides' channels, since each side's "our public key" differs.
func SharedScalar(priv SecretKey, pub PublicKey) (ofcurve.Scalar, error) {
	p1 := priv.PublicKey().ToSEC1Bytes()
	p2 := pub.ToSEC1Bytes()

	lo, hi := p1[:], p2[:]
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}

	dhOut, err := dh(priv, pub)
	if err != nil {
		return ofcurve.Scalar{}, err
	}

	h := sha256.New()
	h.Write(lo)
	h.Write(hi)
	h.Write(dhOut[:])
	digest := h.Sum(nil)

	return ofcurve.ScalarFromBytes(digest[:ofcurve.ScalarSize])
}

// Package blecodec turns a P-224 public key into the two wire-level
// artifacts a BLE advertisement needs: a 6-byte random device address
// and a 29-byte advertising-data payload with one status byte spliced
// in. Per spec.md §4.5 this is treated as an opaque external codec —
// callers rely only on determinism, the injectivity of the address
// derivation, and the address-type bits, never on the exact byte
// layout. This package has no third-party dependency (see DESIGN.md):
// there is no published Go library for this exact,
// Apple-offline-finding-shaped AD layout.
package blecodec

import (
	"crypto/sha256"

	"github.com/oftrelay/covertchan/ofcurve"
	"github.com/oftrelay/covertchan/ofkey"
)

const (
	// AddressSize is the width of a BLE device address.
	AddressSize = 6
	// AdvertisementSize is the width of the advertising-data payload.
	AdvertisementSize = 29

	preambleSize = 5
	xTailSize    = ofcurve.ScalarSize - AddressSize // 22

	// StatusByteOffset is where Metadata.Status lands inside the
	// AdvertisementSize-byte payload: after the fixed preamble and the
	// X-coordinate tail.
	StatusByteOffset = preambleSize + xTailSize
	// HintByteOffset follows the status byte.
	HintByteOffset = StatusByteOffset + 1
)

// adPreamble is the fixed header spliced into every advertisement:
// AD length, manufacturer-specific-data AD type, Apple's company
// identifier (little-endian), and the offline-finding report subtype.
var adPreamble = [preambleSize]byte{0x1e, 0xff, 0x4c, 0x00, 0x12}

// Metadata is the one-byte-of-payload carried per advertisement.
// Only Status is used by this module; Hint exists because the real
// offline-finding AD format carries one, but the channel never reads
// it back.
type Metadata struct {
	Status byte
	Hint   byte
}

// OFPK (OfflineFindingPublicKey) views a P-224 public key through the
// offline-finding protocol's lens: an address to advertise from, a
// payload to advertise, and a lookup hash for the reports service.
type OFPK struct {
	pub ofkey.PublicKey
}

// FromPublicKey wraps pub as an OFPK.
func FromPublicKey(pub ofkey.PublicKey) OFPK {
	return OFPK{pub: pub}
}

// PublicKey returns the underlying key.
func (k OFPK) PublicKey() ofkey.PublicKey {
	return k.pub
}

func (k OFPK) xBytes() [ofcurve.ScalarSize]byte {
	sec1 := k.pub.ToSEC1Bytes()
	var x [ofcurve.ScalarSize]byte
	copy(x[:], sec1[1:])
	return x
}

// ToBLEAddressBytesBE returns the 6-byte advertising address: the
// first 6 bytes of the public key's X-coordinate, with the top two
// bits of byte 0 forced to 0b11 to mark it as a static random address.
func (k OFPK) ToBLEAddressBytesBE() [AddressSize]byte {
	x := k.xBytes()
	var addr [AddressSize]byte
	copy(addr[:], x[:AddressSize])
	addr[0] = (addr[0] & 0x3f) | 0xc0
	return addr
}

// ToBLEAdvertisementData builds the 29-byte advertising payload:
// the fixed preamble, the remaining 22 bytes of X, then the status
// and hint bytes from meta.
func (k OFPK) ToBLEAdvertisementData(meta Metadata) [AdvertisementSize]byte {
	x := k.xBytes()
	var out [AdvertisementSize]byte
	copy(out[:preambleSize], adPreamble[:])
	copy(out[preambleSize:StatusByteOffset], x[AddressSize:])
	out[StatusByteOffset] = meta.Status
	out[HintByteOffset] = meta.Hint
	return out
}

// Hash returns SHA-256 of the SEC1-compressed public key: the
// reports-service lookup id for this advertisement.
func (k OFPK) Hash() [sha256.Size]byte {
	sec1 := k.pub.ToSEC1Bytes()
	return sha256.Sum256(sec1[:])
}

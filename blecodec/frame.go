package blecodec

import "errors"

// FrameSize is the width of the serial hand-off frame to a BLE
// peripheral driver: 6-byte address, 1 length byte, 29-byte
// advertising payload, 1 trailing zero byte.
const FrameSize = AddressSize + 1 + AdvertisementSize + 1

// advLengthByte is the fixed HCI advertising-data length field the
// peripheral firmware expects ahead of the AD payload.
const advLengthByte = 0x1e

var errBadFrameSize = errors.New("blecodec: serial frame must be 37 bytes")

// EncodeSerialFrame builds the 37-byte frame a host driver writes to
// a BLE peripheral's UART, per spec.md §6: address first (reversed to
// little-endian, since the peripheral reads addresses LSB-first),
// then the fixed length byte, the AD payload, and a trailing zero.
//
// This package only encodes/decodes the frame; writing it to an
// actual serial port is out of scope (spec.md §1) and left to the
// caller's io.Writer.
func EncodeSerialFrame(addr [AddressSize]byte, adData [AdvertisementSize]byte) [FrameSize]byte {
	var frame [FrameSize]byte
	for i := 0; i < AddressSize; i++ {
		frame[i] = addr[AddressSize-1-i]
	}
	frame[AddressSize] = advLengthByte
	copy(frame[AddressSize+1:], adData[:])
	frame[FrameSize-1] = 0x00
	return frame
}

// DecodeSerialFrame is EncodeSerialFrame's inverse, used by tests and
// by peripheral-side tooling that needs to parse a captured frame.
func DecodeSerialFrame(frame []byte) (addr [AddressSize]byte, adData [AdvertisementSize]byte, err error) {
	if len(frame) != FrameSize {
		return addr, adData, errBadFrameSize
	}
	for i := 0; i < AddressSize; i++ {
		addr[AddressSize-1-i] = frame[i]
	}
	copy(adData[:], frame[AddressSize+1:AddressSize+1+AdvertisementSize])
	return addr, adData, nil
}

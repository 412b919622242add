// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
)

// A Bundle's image is a definite-length CBOR array of eight elements:
//
//	[source, destination, payload, created_at, lifetime, hop_count, path, crc]
//
// where path is an inner array of endpoint IDs and crc is a two byte CRC-16
// (CCITT) over the image's preceding bytes. The target links are modeled with
// bit corruption; a flipped bit must surface as a DecodeError, not as a
// delivered garbage payload.

var crcTable = crc16.MakeTable(crc16.CCITT)

const codecFields uint64 = 8

// MarshalCbor writes this Bundle's image. It is used unchanged for both the
// persistent store and the wire.
func (b *Bundle) MarshalCbor(w io.Writer) error {
	crcBuff := new(bytes.Buffer)
	mw := io.MultiWriter(w, crcBuff)

	if err := cboring.WriteArrayLength(codecFields, mw); err != nil {
		return err
	}

	if err := cboring.WriteTextString(string(b.Source), mw); err != nil {
		return err
	}
	if err := cboring.WriteTextString(string(b.Destination), mw); err != nil {
		return err
	}
	if err := cboring.WriteByteString(b.Payload, mw); err != nil {
		return err
	}
	if err := cboring.WriteFloat64(b.CreatedAt, mw); err != nil {
		return err
	}
	if err := cboring.WriteUInt(b.Lifetime, mw); err != nil {
		return err
	}
	if err := cboring.WriteUInt(b.HopCount, mw); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(b.Path)), mw); err != nil {
		return err
	}
	for _, eid := range b.Path {
		if err := cboring.WriteTextString(string(eid), mw); err != nil {
			return err
		}
	}

	crcVal := make([]byte, 2)
	binary.BigEndian.PutUint16(crcVal, crc16.Checksum(crcBuff.Bytes(), crcTable))

	return cboring.WriteByteString(crcVal, w)
}

// UnmarshalCbor reads a Bundle's image, verifies its checksum and validates
// its fields. All failures are DecodeErrors.
func (b *Bundle) UnmarshalCbor(r io.Reader) error {
	crcBuff := new(bytes.Buffer)
	tr := io.TeeReader(r, crcBuff)

	if n, err := cboring.ReadArrayLength(tr); err != nil {
		return &DecodeError{Err: err}
	} else if n != codecFields {
		return newDecodeError("expected array of %d fields, got %d", codecFields, n)
	}

	if src, err := cboring.ReadTextString(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.Source = EndpointID(src)
	}
	if dst, err := cboring.ReadTextString(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.Destination = EndpointID(dst)
	}
	if payload, err := cboring.ReadByteString(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.Payload = payload
	}
	if createdAt, err := cboring.ReadFloat64(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.CreatedAt = createdAt
	}
	if lifetime, err := cboring.ReadUInt(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.Lifetime = lifetime
	}
	if hopCount, err := cboring.ReadUInt(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.HopCount = hopCount
	}

	if n, err := cboring.ReadArrayLength(tr); err != nil {
		return &DecodeError{Err: err}
	} else {
		b.Path = nil
		for i := uint64(0); i < n; i++ {
			eid, eidErr := cboring.ReadTextString(tr)
			if eidErr != nil {
				return &DecodeError{Err: eidErr}
			}
			b.Path = append(b.Path, EndpointID(eid))
		}
	}

	// The checksum covers everything read so far; read the CRC field from the
	// plain reader so it does not checksum itself.
	expected := crc16.Checksum(crcBuff.Bytes(), crcTable)
	if crcVal, err := cboring.ReadByteString(r); err != nil {
		return &DecodeError{Err: err}
	} else if len(crcVal) != 2 {
		return newDecodeError("CRC field has %d bytes instead of 2", len(crcVal))
	} else if got := binary.BigEndian.Uint16(crcVal); got != expected {
		return newDecodeError("CRC mismatch: calculated %#04x, read %#04x", expected, got)
	}

	if err := b.CheckValid(); err != nil {
		return &DecodeError{Err: err}
	}

	return nil
}

// ToCbor serializes this Bundle into a fresh byte string.
func (b Bundle) ToCbor() []byte {
	buff := new(bytes.Buffer)
	_ = b.MarshalCbor(buff)
	return buff.Bytes()
}

// NewBundleFromCbor parses a Bundle's image from a byte string.
func NewBundleFromCbor(data []byte) (b Bundle, err error) {
	err = b.UnmarshalCbor(bytes.NewReader(data))
	return
}

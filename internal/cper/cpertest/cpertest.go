// Package cpertest builds CPER blobs for tests and sample generators.
package cpertest

import (
	"encoding/binary"

	"github.com/linuxboot/fiano/pkg/guid"

	"example.com/cpergate/internal/cper"
)

var le = binary.LittleEndian

// Payload sizes of the known section types.
const (
	ProcessorSize = 192
	MemorySize    = 80
	PCIeSize      = 208
)

// Field offsets used by tests. The full layouts live in package cper.
const (
	ProcType      = 8
	ProcISA       = 9
	ProcErrorType = 10
	ProcOperation = 11
	ProcFlags     = 12
	ProcLevel     = 13
	ProcVersion   = 16
	ProcBrand     = 24
	ProcID        = 152
	ProcIP        = 184

	MemErrorStatus = 8
	MemPA          = 16
	MemNode        = 32
	MemCard        = 34
	MemModule      = 36
	MemErrorType   = 72
	MemRank        = 74
	MemDevHandle   = 78

	PCIePortType     = 8
	PCIeVersionMinor = 12
	PCIeVersionMajor = 13
	PCIeCommand      = 16
	PCIeStatus       = 18
	PCIeVendorID     = 24
	PCIeDeviceID     = 26
	PCIeClassCode    = 28
	PCIeFunction     = 31
	PCIeDevice       = 32
	PCIeSegment      = 33
	PCIeBus          = 35
	PCIeSecondaryBus = 36
	PCIeSlot         = 37
	PCIeSerialLower  = 40
	PCIeSerialUpper  = 44
	PCIeAER          = 112
)

// Payload is a section body under construction.
type Payload []byte

// NewPayload returns a zeroed payload of size bytes whose validation bits
// are bits.
func NewPayload(size int, bits uint64) Payload {
	p := make(Payload, size)
	le.PutUint64(p, bits)
	return p
}

func Processor(bits uint64) Payload { return NewPayload(ProcessorSize, bits) }
func Memory(bits uint64) Payload    { return NewPayload(MemorySize, bits) }
func PCIe(bits uint64) Payload      { return NewPayload(PCIeSize, bits) }

func (p Payload) U8(off int, v uint8) Payload {
	p[off] = v
	return p
}

func (p Payload) U16(off int, v uint16) Payload {
	le.PutUint16(p[off:], v)
	return p
}

func (p Payload) U32(off int, v uint32) Payload {
	le.PutUint32(p[off:], v)
	return p
}

func (p Payload) U64(off int, v uint64) Payload {
	le.PutUint64(p[off:], v)
	return p
}

func (p Payload) Bytes(off int, b []byte) Payload {
	copy(p[off:], b)
	return p
}

// Section describes one section descriptor and its payload.
type Section struct {
	Type     guid.GUID
	Severity cper.Severity
	FRUID    *guid.GUID
	// FRUText sets the FRU text bit when non-empty. Longer than 20 bytes is
	// cut to 20 with no terminator.
	FRUText string
	Payload []byte
}

// Bytes encodes the descriptor header followed by the payload.
func (s Section) Bytes() []byte {
	b := make([]byte, cper.SectionHeaderSize+len(s.Payload))
	copy(b[0:16], s.Type[:])
	le.PutUint32(b[16:], uint32(s.Severity))
	le.PutUint16(b[20:], 0x0300)
	var bits uint8
	if s.FRUID != nil {
		bits |= cper.SecValidFRUID
		copy(b[28:44], s.FRUID[:])
	}
	if s.FRUText != "" {
		bits |= cper.SecValidFRUText
		copy(b[44:64], s.FRUText)
	}
	b[22] = bits
	le.PutUint32(b[24:], uint32(len(s.Payload)))
	copy(b[cper.SectionHeaderSize:], s.Payload)
	return b
}

// Record describes a status block.
type Record struct {
	Severity      cper.Severity
	RawDataOffset uint32
	RawDataLength uint32
	Sections      []Section
}

// Bytes encodes the status block with data_length covering every section.
func (r Record) Bytes() []byte {
	var data []byte
	for _, s := range r.Sections {
		data = append(data, s.Bytes()...)
	}
	b := make([]byte, cper.StatusBlockSize, cper.StatusBlockSize+len(data))
	le.PutUint32(b[0:], 1)
	le.PutUint32(b[4:], r.RawDataOffset)
	le.PutUint32(b[8:], r.RawDataLength)
	le.PutUint32(b[12:], uint32(len(data)))
	le.PutUint32(b[16:], uint32(r.Severity))
	return append(b, data...)
}

// SetDataLength overwrites data_length in an encoded blob.
func SetDataLength(blob []byte, n uint32) {
	le.PutUint32(blob[12:], n)
}

// SetErrorDataLength overwrites error_data_length of the section header that
// starts at off.
func SetErrorDataLength(blob []byte, off int, n uint32) {
	le.PutUint32(blob[off+24:], n)
}

// Package cper validates and renders UEFI Common Platform Error Records.
//
// A record arrives as a generic error status block followed by a list of
// generic error data entries (sections). Check is the only way to obtain a
// *Record, and Render only accepts a *Record, so bytes that have not passed
// validation are never decoded.
package cper

import (
	"encoding/binary"

	"github.com/linuxboot/fiano/pkg/guid"
)

const (
	// StatusBlockSize is the size of the generic error status block header.
	StatusBlockSize = 20
	// SectionHeaderSize is the size of a generic error data entry header.
	SectionHeaderSize = 72

	guidSize    = 16
	fruTextSize = 20
)

// Offsets inside the status block header.
const (
	offBlockStatus   = 0
	offRawDataOffset = 4
	offRawDataLength = 8
	offDataLength    = 12
	offBlockSeverity = 16
)

// Offsets inside a section header.
const (
	offSectionType    = 0
	offSeverity       = 16
	offRevision       = 20
	offValidationBits = 22
	offFlags          = 23
	offErrorDataLen   = 24
	offFRUID          = 28
	offFRUText        = 44
	offTimestamp      = 64
)

// Section header validation bits.
const (
	SecValidFRUID   = 0x1
	SecValidFRUText = 0x2
)

var le = binary.LittleEndian

// Section type identifiers from UEFI Appendix N.
var (
	SecProcGeneric = *guid.MustParse("9876CCAD-47B4-4BDB-B65E-16F193C4F3DB")
	SecPlatformMem = *guid.MustParse("A5BC1114-6F64-4EDE-B863-3E83ED7C83B1")
	SecPCIe        = *guid.MustParse("D995E954-BBC1-430F-AD91-B44DCB3C6F35")
)

// StatusBlock is the decoded generic error status block header.
type StatusBlock struct {
	BlockStatus   uint32
	RawDataOffset uint32
	RawDataLength uint32
	DataLength    uint32
	Severity      Severity
}

// ParseStatusBlock decodes the status block header. It only checks that buf
// is long enough to hold the header.
func ParseStatusBlock(buf []byte) (StatusBlock, error) {
	var hdr StatusBlock
	if len(buf) < StatusBlockSize {
		return hdr, ErrMalformed
	}
	hdr.BlockStatus = le.Uint32(buf[offBlockStatus:])
	hdr.RawDataOffset = le.Uint32(buf[offRawDataOffset:])
	hdr.RawDataLength = le.Uint32(buf[offRawDataLength:])
	hdr.DataLength = le.Uint32(buf[offDataLength:])
	hdr.Severity = Severity(le.Uint32(buf[offBlockSeverity:]))
	return hdr, nil
}

// SectionHeader is the decoded generic error data entry header.
type SectionHeader struct {
	Type            guid.GUID
	Severity        Severity
	Revision        uint16
	ValidationBits  uint8
	Flags           uint8
	ErrorDataLength uint32
	FRUID           Field[guid.GUID]
	FRUText         Field[string]
	// Timestamp is carried through undecoded.
	Timestamp uint64
}

func parseSectionHeader(buf []byte) SectionHeader {
	var hdr SectionHeader
	copy(hdr.Type[:], buf[offSectionType:offSectionType+guidSize])
	hdr.Severity = Severity(le.Uint32(buf[offSeverity:]))
	hdr.Revision = le.Uint16(buf[offRevision:])
	hdr.ValidationBits = buf[offValidationBits]
	hdr.Flags = buf[offFlags]
	hdr.ErrorDataLength = le.Uint32(buf[offErrorDataLen:])
	if hdr.ValidationBits&SecValidFRUID != 0 {
		var id guid.GUID
		copy(id[:], buf[offFRUID:offFRUID+guidSize])
		hdr.FRUID = Some(id)
	}
	if hdr.ValidationBits&SecValidFRUText != 0 {
		hdr.FRUText = Some(cString(buf[offFRUText : offFRUText+fruTextSize]))
	}
	hdr.Timestamp = le.Uint64(buf[offTimestamp:])
	return hdr
}

// cString returns the bytes up to the first NUL; the field may fill its
// whole width without a terminator.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

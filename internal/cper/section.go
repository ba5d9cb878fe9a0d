package cper

import (
	"fmt"
	"strings"

	"github.com/linuxboot/fiano/pkg/guid"
)

// Kind identifies the payload format of a section.
type Kind int

const (
	KindUnknown Kind = iota
	KindProcessor
	KindMemory
	KindPCIe
)

var kindStrs = [...]string{
	"unknown",
	"processor",
	"memory",
	"pcie",
}

func (k Kind) String() string {
	if k < 0 {
		return "unknown"
	}
	return lookup(kindStrs[:], uint64(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Body is a decoded section payload. The set of implementations is closed:
// *ProcessorGeneric, *MemoryError, *PCIeError and *UnknownSection.
type Body interface {
	Kind() Kind
	render(p printer, hdr SectionHeader)
}

// Section is one decoded section descriptor.
type Section struct {
	Index  int
	Header SectionHeader
	Kind   Kind
	// Body is nil when a known section is too small for its payload.
	Body     Body
	TooSmall bool
}

// UnknownSection is a payload whose type is not decoded.
type UnknownSection struct {
	Type   guid.GUID
	Length int
}

func (*UnknownSection) Kind() Kind { return KindUnknown }

func (*UnknownSection) render(printer, SectionHeader) {}

// Sections decodes every section of the record in order.
func (r *Record) Sections() []Section {
	var out []Section
	r.each(func(s Section) { out = append(out, s) })
	return out
}

func (r *Record) each(fn func(Section)) {
	// The walk cannot fail on a buffer that passed Check.
	_ = walk(r.buf, func(idx, off int, hdr SectionHeader) {
		data := r.buf[off : off+int(hdr.ErrorDataLength)]
		fn(decodeSection(idx, hdr, data))
	})
}

func kindOf(t guid.GUID) Kind {
	switch t {
	case SecProcGeneric:
		return KindProcessor
	case SecPlatformMem:
		return KindMemory
	case SecPCIe:
		return KindPCIe
	}
	return KindUnknown
}

// decodeSection dispatches on the section type first, then checks the
// payload is large enough for that type.
func decodeSection(idx int, hdr SectionHeader, data []byte) Section {
	s := Section{Index: idx, Header: hdr, Kind: kindOf(hdr.Type)}
	switch s.Kind {
	case KindProcessor:
		if len(data) < procGenericSize {
			s.TooSmall = true
			break
		}
		s.Body = decodeProcessor(data)
	case KindMemory:
		if len(data) < memErrorSize {
			s.TooSmall = true
			break
		}
		s.Body = decodeMemory(data)
	case KindPCIe:
		if len(data) < pcieErrorSize {
			s.TooSmall = true
			break
		}
		s.Body = decodePCIe(data)
	default:
		s.Body = &UnknownSection{Type: hdr.Type, Length: len(data)}
	}
	return s
}

// FormatGUID renders g in lower case.
func FormatGUID(g guid.GUID) string {
	return strings.ToLower(g.String())
}

type printer struct {
	sink LineSink
	pfx  string
	dimm DIMMResolver
}

func (p printer) line(format string, args ...any) {
	p.sink.WriteLine(p.pfx + fmt.Sprintf(format, args...))
}

func (p printer) bits(bits uint32, names []string) {
	PrintBits(p.sink, p.pfx, bits, names)
}

package cper

import "example.com/cpergate/internal/common"

// Summary counts what Render saw.
type Summary struct {
	Sections  int `json:"sections"`
	Processor int `json:"processor"`
	Memory    int `json:"memory"`
	PCIe      int `json:"pcie"`
	Unknown   int `json:"unknown"`
	TooSmall  int `json:"too_small"`
}

type renderConfig struct {
	dimm   DIMMResolver
	indent string
}

// RenderOption configures Render.
type RenderOption func(*renderConfig)

// WithDIMMResolver resolves memory module handles to DIMM locations.
func WithDIMMResolver(r DIMMResolver) RenderOption {
	return func(c *renderConfig) {
		c.dimm = r
	}
}

// WithIndent sets the string added to the prefix at each nesting level.
// The default is a single space.
func WithIndent(unit string) RenderOption {
	return func(c *renderConfig) {
		c.indent = unit
	}
}

// Render writes a human readable report of rec to sink, one line per call.
// Every line starts with prefix; section lines are indented one level and
// payload lines two.
func Render(rec *Record, prefix string, sink LineSink, opts ...RenderOption) Summary {
	cfg := renderConfig{indent: " "}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := printer{sink: sink, pfx: prefix, dimm: cfg.dimm}
	sev := rec.status.Severity
	if sev == SevCorrected {
		p.line("It has been corrected by h/w and requires no further action")
	}
	p.line("event severity: %s", sev)

	p1 := p
	p1.pfx = prefix + cfg.indent
	p2 := p1
	p2.pfx = p1.pfx + cfg.indent

	var sum Summary
	rec.each(func(s Section) {
		sum.Sections++
		renderSection(p1, p2, s, &sum)
	})
	return sum
}

func renderSection(p1, p2 printer, s Section, sum *Summary) {
	hdr := s.Header
	p1.line("Error %d, type: %s", s.Index, hdr.Severity)
	if id, ok := hdr.FRUID.Get(); ok {
		p1.line("fru_id: %s", FormatGUID(id))
	}
	if text, ok := hdr.FRUText.Get(); ok {
		p1.line("fru_text: %s", text)
	}

	switch s.Kind {
	case KindProcessor:
		sum.Processor++
		p2.line("section_type: general processor error")
	case KindMemory:
		sum.Memory++
		p2.line("section_type: memory error")
	case KindPCIe:
		sum.PCIe++
		p2.line("section_type: PCIe error")
	default:
		sum.Unknown++
		p2.line("section type: unknown, %s", FormatGUID(hdr.Type))
		return
	}

	if s.TooSmall {
		sum.TooSmall++
		common.Warnf("section %d (%s): error section length %d is too small", s.Index, s.Kind, hdr.ErrorDataLength)
		p2.line("[Firmware Warn]: error section length is too small")
		return
	}
	s.Body.render(p2, hdr)
}

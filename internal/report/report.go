// Package report turns a checked (or rejected) status block into a JSON and
// PDF record report.
package report

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/cper"
)

// Report is the archived outcome of one status block.
type Report struct {
	RecordID    uint64        `json:"recordId"`
	Source      string        `json:"source,omitempty"`
	Offset      int           `json:"offset,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Sha256      string        `json:"sha256"`
	Size        int           `json:"size"`
	Valid       bool          `json:"valid"`
	Error       string        `json:"error,omitempty"`
	Severity    string        `json:"severity,omitempty"`
	Summary     cper.Summary  `json:"summary"`
	Lines       []string      `json:"lines,omitempty"`
	Sections    []SectionView `json:"sections,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// SectionView is the report form of one section.
type SectionView struct {
	Index    int             `json:"index"`
	Kind     string          `json:"kind"`
	Type     string          `json:"type"`
	Severity string          `json:"severity"`
	Length   uint32          `json:"length"`
	FRUID    string          `json:"fruId,omitempty"`
	FRUText  string          `json:"fruText,omitempty"`
	TooSmall bool            `json:"tooSmall,omitempty"`
	Detail   json.RawMessage `json:"detail,omitempty"`
}

// Options tune Build.
type Options struct {
	Source string
	Offset int
	Prefix string
	// RecordID is assigned from cper.NextRecordID when zero.
	RecordID uint64
	DIMMs    cper.DIMMResolver
	Now      func() time.Time
}

// Build checks blob and, when it passes, renders and decodes its sections.
// A rejected blob still yields a report carrying the error.
func Build(blob []byte, opts Options) Report {
	rec, err := cper.Check(blob)
	if err != nil {
		return Rejected(blob, err, opts)
	}
	return BuildChecked(blob, rec, opts)
}

// Rejected reports blob as failing Check with err.
func Rejected(blob []byte, err error, opts Options) Report {
	rep := newReport(blob, opts)
	rep.Error = err.Error()
	return rep
}

// BuildChecked reports on rec, which Check returned for blob, without
// validating blob a second time.
func BuildChecked(blob []byte, rec *cper.Record, opts Options) Report {
	rep := newReport(blob, opts)
	rep.Valid = true
	rep.Severity = rec.Status().Severity.String()

	var renderOpts []cper.RenderOption
	if opts.DIMMs != nil {
		renderOpts = append(renderOpts, cper.WithDIMMResolver(opts.DIMMs))
	}
	var lines cper.Lines
	rep.Summary = cper.Render(rec, opts.Prefix, &lines, renderOpts...)
	rep.Lines = lines.L

	for _, s := range rec.Sections() {
		rep.Sections = append(rep.Sections, sectionView(s))
	}
	return rep
}

func newReport(blob []byte, opts Options) Report {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rep := Report{
		RecordID:    opts.RecordID,
		Source:      opts.Source,
		Offset:      opts.Offset,
		Fingerprint: common.Fingerprint(blob),
		Sha256:      common.Sha256(blob),
		Size:        len(blob),
		CreatedAt:   now().UTC(),
	}
	if rep.RecordID == 0 {
		rep.RecordID = cper.NextRecordID()
	}
	return rep
}

func sectionView(s cper.Section) SectionView {
	v := SectionView{
		Index:    s.Index,
		Kind:     s.Kind.String(),
		Type:     cper.FormatGUID(s.Header.Type),
		Severity: s.Header.Severity.String(),
		Length:   s.Header.ErrorDataLength,
		TooSmall: s.TooSmall,
	}
	if id, ok := s.Header.FRUID.Get(); ok {
		v.FRUID = cper.FormatGUID(id)
	}
	if text, ok := s.Header.FRUText.Get(); ok {
		v.FRUText = text
	}
	if s.Body != nil && s.Kind != cper.KindUnknown {
		if b, err := json.Marshal(s.Body); err == nil {
			v.Detail = b
		}
	}
	return v
}

func SaveJSON(rep Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (Report, error) {
	var rep Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, err
	}
	if rep.Fingerprint == "" {
		return rep, errors.New("report: missing fingerprint")
	}
	return rep, nil
}

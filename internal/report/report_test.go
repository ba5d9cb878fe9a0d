package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/cper/cpertest"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func sampleBlob() []byte {
	return cpertest.Record{
		Severity: cper.SevCorrected,
		Sections: []cpertest.Section{
			{
				Type:     cper.SecPlatformMem,
				Severity: cper.SevCorrected,
				FRUText:  "DIMM_A1",
				Payload: cpertest.Memory(cper.MemValidPA|cper.MemValidErrorType).
					U64(cpertest.MemPA, 0x1000).
					U8(cpertest.MemErrorType, 2),
			},
			{Type: cper.SecPCIe, Payload: make([]byte, 8)},
		},
	}.Bytes()
}

func TestBuildValid(t *testing.T) {
	rep := Build(sampleBlob(), Options{Source: "erst.bin", RecordID: 42, Now: fixedNow})
	if !rep.Valid || rep.Error != "" {
		t.Fatalf("Valid = %v, Error = %q", rep.Valid, rep.Error)
	}
	if rep.RecordID != 42 {
		t.Fatalf("RecordID = %d, want 42", rep.RecordID)
	}
	if rep.Severity != "corrected" {
		t.Fatalf("Severity = %q, want corrected", rep.Severity)
	}
	if rep.Summary.Sections != 2 || rep.Summary.TooSmall != 1 {
		t.Fatalf("Summary = %+v", rep.Summary)
	}
	if len(rep.Sections) != 2 {
		t.Fatalf("len(Sections) = %d, want 2", len(rep.Sections))
	}
	mem := rep.Sections[0]
	if mem.Kind != "memory" || mem.FRUText != "DIMM_A1" || len(mem.Detail) == 0 {
		t.Fatalf("memory section = %+v", mem)
	}
	if !bytes.Contains(mem.Detail, []byte(`"physical_address":4096`)) {
		t.Fatalf("detail = %s", mem.Detail)
	}
	if !rep.Sections[1].TooSmall || rep.Sections[1].Detail != nil {
		t.Fatalf("pcie section = %+v", rep.Sections[1])
	}
	if len(rep.Lines) == 0 || rep.Lines[1] != "event severity: corrected" {
		t.Fatalf("Lines = %q", rep.Lines)
	}
}

func TestBuildRejected(t *testing.T) {
	blob := sampleBlob()
	rep := Build(blob[:len(blob)-4], Options{Now: fixedNow})
	if rep.Valid {
		t.Fatalf("truncated blob reported valid")
	}
	if !strings.Contains(rep.Error, cper.ErrTruncated.Error()) {
		t.Fatalf("Error = %q", rep.Error)
	}
	if rep.RecordID == 0 {
		t.Fatalf("RecordID not assigned")
	}
	if len(rep.Lines) != 0 || len(rep.Sections) != 0 {
		t.Fatalf("rejected report has content: %+v", rep)
	}
}

func TestBuildCheckedMatchesBuild(t *testing.T) {
	blob := sampleBlob()
	rec, err := cper.Check(blob)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := BuildChecked(blob, rec, Options{RecordID: 9, Now: fixedNow})
	want := Build(blob, Options{RecordID: 9, Now: fixedNow})
	if got.Fingerprint != want.Fingerprint || got.Summary != want.Summary || len(got.Sections) != rec.NumSections() {
		t.Fatalf("BuildChecked = %+v, want %+v", got, want)
	}
	if strings.Join(got.Lines, "\n") != strings.Join(want.Lines, "\n") {
		t.Fatalf("Lines = %q, want %q", got.Lines, want.Lines)
	}
}

func TestRejectedCarriesError(t *testing.T) {
	rep := Rejected([]byte{1, 2}, cper.ErrMalformed, Options{RecordID: 3, Now: fixedNow})
	if rep.Valid || rep.Error != cper.ErrMalformed.Error() || rep.RecordID != 3 || rep.Size != 2 {
		t.Fatalf("Rejected = %+v", rep)
	}
}

func TestSaveLoadJSON(t *testing.T) {
	rep := Build(sampleBlob(), Options{RecordID: 7, Now: fixedNow})
	path := filepath.Join(t.TempDir(), "report.json")
	if err := SaveJSON(rep, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	got, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.Fingerprint != rep.Fingerprint || got.RecordID != 7 || len(got.Sections) != 2 {
		t.Fatalf("loaded = %+v", got)
	}
	if !got.CreatedAt.Equal(rep.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, rep.CreatedAt)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJSON(empty); err == nil {
		t.Fatalf("LoadJSON accepted report without fingerprint")
	}
}

func TestSavePDF(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name string
		blob []byte
		lang Language
	}{
		{"valid-en", sampleBlob(), LangEnglish},
		{"valid-tr", sampleBlob(), LangTurkish},
		{"rejected", []byte{1, 2, 3}, LangEnglish},
	} {
		rep := Build(tc.blob, Options{Source: tc.name, Now: fixedNow})
		out := filepath.Join(dir, tc.name+".pdf")
		if err := SavePDF(rep, tc.lang, out); err != nil {
			t.Fatalf("%s: SavePDF: %v", tc.name, err)
		}
		b, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(b, []byte("%PDF-")) {
			t.Fatalf("%s: output is not a PDF", tc.name)
		}
	}
}

func TestWritePDFFirmwareText(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fruText string
		lang    Language
	}{
		{"invalid utf8 en", "DIMM\xff", LangEnglish},
		{"invalid utf8 tr", "\xfe\xffA1", LangTurkish},
		{"non latin tr", "ДИММ_Б2", LangTurkish},
	} {
		t.Run(tc.name, func(t *testing.T) {
			blob := cpertest.Record{
				Severity: cper.SevRecoverable,
				Sections: []cpertest.Section{
					{
						Type:     cper.SecPlatformMem,
						Severity: cper.SevRecoverable,
						FRUText:  tc.fruText,
						Payload:  cpertest.Memory(cper.MemValidPA).U64(cpertest.MemPA, 0x2000),
					},
					{Type: cper.SecProcGeneric, Severity: cper.SevRecoverable, Payload: make([]byte, 4)},
				},
			}.Bytes()
			rep := Build(blob, Options{Source: "bank\xff.bin", Now: fixedNow})
			if !rep.Valid || rep.Summary.TooSmall != 1 {
				t.Fatalf("unexpected report: valid=%v summary=%+v", rep.Valid, rep.Summary)
			}
			var buf bytes.Buffer
			if err := WritePDF(rep, tc.lang, &buf); err != nil {
				t.Fatalf("WritePDF: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Fatalf("output is not a PDF")
			}
		})
	}
}

func TestWritePDFRejectedTurkish(t *testing.T) {
	rep := Build([]byte{1, 2, 3}, Options{Now: fixedNow})
	var buf bytes.Buffer
	if err := WritePDF(rep, LangTurkish, &buf); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestRecordQR(t *testing.T) {
	if got := QRPayload(0x1a, "00ab-cd"); got != "000000000000001A:00ABCD" {
		t.Fatalf("QRPayload = %q", got)
	}
	png, err := RecordQR(1, "deadbeef", 0)
	if err != nil {
		t.Fatalf("RecordQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("RecordQR did not return a PNG")
	}
	if _, err := RecordQR(1, "  ", 64); err == nil {
		t.Fatalf("RecordQR accepted empty fingerprint")
	}
}

func TestTranslator(t *testing.T) {
	tr := NewTranslator(LangTurkish)
	if tr.Lang() != LangTurkish || tr.T("summary") != "Özet" {
		t.Fatalf("T(summary) = %q", tr.T("summary"))
	}
	if got := tr.T("missing.key"); got != "missing.key" {
		t.Fatalf("T(missing) = %q", got)
	}
	if got := NewTranslator("de").Lang(); got != LangEnglish {
		t.Fatalf("fallback language = %q", got)
	}
	if got := NewTranslator(LangEnglish).Format("section_counts", 1, 0, 1, 0, 0, 0); !strings.HasPrefix(got, "1 total") {
		t.Fatalf("Format = %q", got)
	}
	if _, err := ParseLanguage("klingon"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("ParseLanguage err = %v", err)
	}
}

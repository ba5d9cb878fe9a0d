package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/cper/cpertest"
	"example.com/cpergate/internal/dump"
)

func TestMain(m *testing.M) {
	common.SetOutput(io.Discard)
	m.Run()
}

func memoryBlob() []byte {
	return cpertest.Record{
		Severity: cper.SevCorrected,
		Sections: []cpertest.Section{{
			Type:     cper.SecPlatformMem,
			Severity: cper.SevCorrected,
			Payload:  cpertest.Memory(cper.MemValidPA).U64(cpertest.MemPA, 0x1000),
		}},
	}.Bytes()
}

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	if opts.StorageDir == "" {
		opts.StorageDir = t.TempDir()
	}
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, NewRouter(srv)
}

func post(t *testing.T, h http.Handler, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCheckHandlerValid(t *testing.T) {
	_, h := newTestServer(t, Options{})
	blob := memoryBlob()
	rr := post(t, h, "/check", blob)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp checkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Valid || resp.Sections != 1 || resp.Severity != "corrected" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Fingerprint != common.Fingerprint(blob) {
		t.Fatalf("fingerprint mismatch: %s", resp.Fingerprint)
	}
	if resp.RecordID>>32 == 0 {
		t.Fatalf("record id not seeded from clock: %#x", resp.RecordID)
	}
}

func TestCheckHandlerRejectsMalformed(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rr := post(t, h, "/check", make([]byte, 10))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp checkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Valid || !strings.Contains(resp.Error, "malformed") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCheckHandlerBodyLimit(t *testing.T) {
	_, h := newTestServer(t, Options{MaxBlobBytes: 64})
	rr := post(t, h, "/check", memoryBlob())
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestCheckHandlerCompressedBody(t *testing.T) {
	_, h := newTestServer(t, Options{})
	packed, err := dump.Encode(dump.Zstd, memoryBlob())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rr := post(t, h, "/check", packed)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCheckHandlerMethod(t *testing.T) {
	_, h := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRenderHandlerJSON(t *testing.T) {
	_, h := newTestServer(t, Options{Prefix: "HW: "})
	rr := post(t, h, "/render", memoryBlob())
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Lines   []string     `json:"lines"`
		Summary cper.Summary `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := []string{
		"HW: It has been corrected by h/w and requires no further action",
		"HW: event severity: corrected",
		"HW:  Error 0, type: corrected",
		"HW:   section_type: memory error",
		"HW:   physical_address: 0x0000000000001000",
	}
	if strings.Join(resp.Lines, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected lines:\n%s", strings.Join(resp.Lines, "\n"))
	}
	if resp.Summary.Memory != 1 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}
}

func TestRenderHandlerPrefixOverride(t *testing.T) {
	_, h := newTestServer(t, Options{Prefix: "HW: "})
	rr := post(t, h, "/render?prefix=", memoryBlob())
	if !strings.Contains(rr.Body.String(), `"event severity: corrected"`) {
		t.Fatalf("prefix not cleared: %s", rr.Body.String())
	}
}

func TestRenderHandlerStream(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rr := post(t, h, "/render?stream=true", memoryBlob())
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var types []string
	sc := bufio.NewScanner(rr.Body)
	for sc.Scan() {
		var obj map[string]any
		if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		types = append(types, obj["type"].(string))
	}
	if len(types) != 6 || types[0] != "line" || types[5] != "summary" {
		t.Fatalf("unexpected record types: %v", types)
	}
}

func TestRenderHandlerStreamError(t *testing.T) {
	_, h := newTestServer(t, Options{})
	blob := memoryBlob()
	rr := post(t, h, "/render?stream=true", blob[:len(blob)-1])
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var obj map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(rr.Body.Bytes()), &obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["type"] != "error" || !strings.Contains(obj["error"].(string), "truncated") {
		t.Fatalf("unexpected error record: %v", obj)
	}
}

func TestReportHandlerArtifacts(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rr := post(t, h, "/report?lang=tr&source=unit", memoryBlob())
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Report struct {
			Valid  bool   `json:"valid"`
			Source string `json:"source"`
		} `json:"report"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Report.Valid || resp.Report.Source != "unit" {
		t.Fatalf("unexpected report: %+v", resp.Report)
	}
	if len(resp.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(resp.Artifacts))
	}
	pdf := resp.Artifacts[1]
	if pdf.ContentType != "application/pdf" || !strings.HasSuffix(pdf.Name, ".pdf") {
		t.Fatalf("unexpected pdf artifact: %+v", pdf)
	}

	req := httptest.NewRequest(http.MethodGet, "/artifacts/"+pdf.ID, nil)
	dl := httptest.NewRecorder()
	h.ServeHTTP(dl, req)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status %d", dl.Code)
	}
	if !bytes.HasPrefix(dl.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("artifact is not a pdf")
	}

	req = httptest.NewRequest(http.MethodGet, "/artifacts", nil)
	list := httptest.NewRecorder()
	h.ServeHTTP(list, req)
	var refs []ArtifactRef
	if err := json.Unmarshal(list.Body.Bytes(), &refs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 listed artifacts, got %d", len(refs))
	}
}

func TestReportHandlerRejectedBlob(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rr := post(t, h, "/report", make([]byte, 12))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Report struct {
			Valid bool   `json:"valid"`
			Error string `json:"error"`
		} `json:"report"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Report.Valid || !strings.Contains(resp.Report.Error, "malformed") {
		t.Fatalf("unexpected report: %+v", resp.Report)
	}
}

func TestReportHandlerFirmwareText(t *testing.T) {
	_, h := newTestServer(t, Options{})
	blob := cpertest.Record{
		Sections: []cpertest.Section{
			{Type: cper.SecPlatformMem, FRUText: "DIMM\xff", Payload: cpertest.Memory(0)},
			{Type: cper.SecPCIe, Payload: make([]byte, 4)},
		},
	}.Bytes()
	rr := post(t, h, "/report?lang=tr", blob)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReportHandlerBadLanguage(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rr := post(t, h, "/report?lang=xx", memoryBlob())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestArtifactDownloadMissing(t *testing.T) {
	_, h := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/artifacts/nope", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRecordIDHandler(t *testing.T) {
	_, h := newTestServer(t, Options{})
	next := func() uint64 {
		req := httptest.NewRequest(http.MethodGet, "/record-id", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		var resp struct {
			RecordID uint64 `json:"recordId"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.RecordID
	}
	a, b := next(), next()
	if b <= a {
		t.Fatalf("record ids not increasing: %#x then %#x", a, b)
	}
}

func TestMetricsAndAudit(t *testing.T) {
	dir := t.TempDir()
	audit := common.NewAuditLog(filepath.Join(dir, "audit.jsonl"))
	_, h := newTestServer(t, Options{Audit: audit})

	post(t, h, "/check", memoryBlob())
	post(t, h, "/check", make([]byte, 4))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var snap common.MetricsSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Records != 1 || snap.Rejected != 1 {
		t.Fatalf("unexpected metrics: %+v", snap)
	}

	entries, err := common.ReadAuditLog(audit.Path())
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if !entries[0].Valid || entries[1].Valid || entries[1].Error == "" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

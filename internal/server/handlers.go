package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/dump"
	"example.com/cpergate/internal/report"
)

// DefaultMaxBlobBytes bounds request bodies when Options leaves it unset.
const DefaultMaxBlobBytes = 4 << 20

// Server checks and renders error records posted over HTTP and keeps the
// generated report files for download.
type Server struct {
	artifacts *ArtifactStore
	workDir   string
	maxBlob   int64
	prefix    string
	lang      report.Language
	dimms     cper.DIMMResolver
	audit     *common.AuditLog
	metrics   *common.Metrics
}

// Options configures server creation.
type Options struct {
	StorageDir   string
	MaxBlobBytes int64
	// Prefix starts every rendered line.
	Prefix   string
	Language report.Language
	DIMMs    cper.DIMMResolver
	// Audit, when set, receives one entry per checked blob.
	Audit   *common.AuditLog
	Metrics *common.Metrics
}

// Artifact represents a file generated by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "cperd-")
	if err != nil {
		return nil, err
	}
	maxBlob := opts.MaxBlobBytes
	if maxBlob <= 0 {
		maxBlob = DefaultMaxBlobBytes
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = common.NewMetrics()
	}
	metrics.Start()
	lang := opts.Language
	if lang == "" {
		lang = report.LangEnglish
	}
	s := &Server{
		artifacts: &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:   workDir,
		maxBlob:   maxBlob,
		prefix:    opts.Prefix,
		lang:      lang,
		dimms:     opts.DIMMs,
		audit:     opts.Audit,
		metrics:   metrics,
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

// readBlob reads the request body, undoing zstd, lz4 or s2 compression.
// On failure it has already written the error response.
func (s *Server) readBlob(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.maxBlob)
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("blob exceeds %d bytes", s.maxBlob), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return nil, false
	}
	if len(raw) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return nil, false
	}
	blob, _, err := dump.Decode(raw, s.maxBlob)
	if err != nil {
		if errors.Is(err, dump.ErrTooLarge) {
			http.Error(w, fmt.Sprintf("blob exceeds %d bytes", s.maxBlob), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return blob, true
}

// checkBlob validates blob, counts the outcome and writes the audit entry.
func (s *Server) checkBlob(r *http.Request, blob []byte, id uint64) (*cper.Record, error) {
	rec, err := cper.Check(blob)
	entry := common.AuditEntry{
		RecordID:    id,
		File:        r.URL.Path,
		Fingerprint: common.Fingerprint(blob),
		Valid:       err == nil,
	}
	if err != nil {
		s.metrics.AddRejected(int64(len(blob)))
		entry.Error = err.Error()
		common.Logf("%s: record %#x rejected: %v", r.URL.Path, id, err)
	} else {
		s.metrics.AddRecord(int64(len(blob)))
		entry.Sections = rec.NumSections()
	}
	if s.audit != nil {
		if aerr := s.audit.Append(entry); aerr != nil {
			common.Warnf("audit append: %v", aerr)
		}
	}
	return rec, err
}

func (s *Server) renderOptions() []cper.RenderOption {
	if s.dimms == nil {
		return nil
	}
	return []cper.RenderOption{cper.WithDIMMResolver(s.dimms)}
}

type checkResponse struct {
	RecordID    uint64 `json:"recordId"`
	Fingerprint string `json:"fingerprint"`
	Size        int    `json:"size"`
	Valid       bool   `json:"valid"`
	Error       string `json:"error,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Sections    int    `json:"sections"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blob, ok := s.readBlob(w, r)
	if !ok {
		return
	}
	id := cper.NextRecordID()
	rec, err := s.checkBlob(r, blob, id)
	resp := checkResponse{
		RecordID:    id,
		Fingerprint: common.Fingerprint(blob),
		Size:        len(blob),
		Valid:       err == nil,
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	resp.Severity = rec.Status().Severity.String()
	resp.Sections = rec.NumSections()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	prefix := s.prefix
	if p, ok := r.URL.Query()["prefix"]; ok {
		prefix = strings.Join(p, "")
	}
	blob, ok := s.readBlob(w, r)
	if !ok {
		return
	}
	id := cper.NextRecordID()
	rec, err := s.checkBlob(r, blob, id)

	if stream {
		writer := NewNDJSONWriter(w)
		w.Header().Set("Content-Type", "application/x-ndjson")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = writer.WriteObject(map[string]any{"type": "error", "recordId": id, "error": err.Error()})
			return
		}
		var werr error
		sink := cper.LineFunc(func(line string) {
			if werr == nil {
				werr = writer.WriteLine(line)
			}
		})
		sum := cper.Render(rec, prefix, sink, s.renderOptions()...)
		s.metrics.AddSections(sum.Sections, sum.TooSmall, sum.Unknown)
		if werr != nil {
			common.Warnf("render stream: %v", werr)
			return
		}
		_ = writer.WriteObject(struct {
			Type     string       `json:"type"`
			RecordID uint64       `json:"recordId"`
			Summary  cper.Summary `json:"summary"`
		}{Type: "summary", RecordID: id, Summary: sum})
		return
	}

	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"recordId": id, "valid": false, "error": err.Error()})
		return
	}
	var lines cper.Lines
	sum := cper.Render(rec, prefix, &lines, s.renderOptions()...)
	s.metrics.AddSections(sum.Sections, sum.TooSmall, sum.Unknown)
	writeJSON(w, http.StatusOK, struct {
		RecordID uint64       `json:"recordId"`
		Valid    bool         `json:"valid"`
		Lines    []string     `json:"lines"`
		Summary  cper.Summary `json:"summary"`
	}{RecordID: id, Valid: true, Lines: lines.L, Summary: sum})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lang := s.lang
	if l := r.URL.Query().Get("lang"); l != "" {
		parsed, err := report.ParseLanguage(l)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lang = parsed
	}
	blob, ok := s.readBlob(w, r)
	if !ok {
		return
	}
	id := cper.NextRecordID()
	opts := report.Options{
		Source:   r.URL.Query().Get("source"),
		Prefix:   s.prefix,
		RecordID: id,
		DIMMs:    s.dimms,
	}
	var rep report.Report
	if rec, err := s.checkBlob(r, blob, id); err != nil {
		rep = report.Rejected(blob, err, opts)
	} else {
		rep = report.BuildChecked(blob, rec, opts)
	}
	s.metrics.AddSections(rep.Summary.Sections, rep.Summary.TooSmall, rep.Summary.Unknown)

	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("report temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		http.Error(w, fmt.Sprintf("write report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("report pdf temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SavePDF(rep, lang, pdfPath); err != nil {
		http.Error(w, fmt.Sprintf("write report pdf: %v", err), http.StatusInternalServerError)
		return
	}
	base := fmt.Sprintf("record_%016x", id)
	jsonArt, err := s.addArtifact(jsonPath, base+".json", "application/json", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, base+".pdf", "application/pdf", "report")
	if err != nil {
		http.Error(w, fmt.Sprintf("register report: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Report    report.Report `json:"report"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}{Report: rep, Artifacts: []ArtifactRef{toRef(jsonArt), toRef(pdfArt)}})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		s.handleArtifacts(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", art.Name))
	io.Copy(w, f)
}

func (s *Server) handleRecordID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := cper.NextRecordID()
	writeJSON(w, http.StatusOK, map[string]any{"recordId": id, "hex": fmt.Sprintf("%016x", id)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

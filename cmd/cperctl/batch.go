package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/dump"
	"example.com/cpergate/internal/report"
)

type batchOptions struct {
	InDir    string
	OutDir   string
	Audit    *common.AuditLog
	PDF      bool
	Lang     report.Language
	Metrics  *common.Metrics
	Progress bool
}

func batchCmd(args []string) {
	flags := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := flags.String("in", ".", "input directory")
	outDir := flags.String("out-dir", "out", "results directory")
	auditPath := flags.String("audit", "", "append check outcomes to this JSONL audit log")
	pdf := flags.Bool("pdf", false, "write a PDF next to every JSON report")
	lang := flags.String("lang", "en", "PDF language (en, tr)")
	progress := flags.Bool("progress", false, "display progress updates")
	flags.Parse(args)

	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	opts := batchOptions{
		InDir:    *inDir,
		OutDir:   *outDir,
		PDF:      *pdf,
		Lang:     language,
		Metrics:  common.NewMetrics(),
		Progress: *progress,
	}
	if *auditPath != "" {
		opts.Audit = common.NewAuditLog(*auditPath)
	}
	if err := runBatch(opts); err != nil {
		fmt.Println("batch:", err)
		os.Exit(1)
	}
	snap := opts.Metrics.Snapshot()
	fmt.Printf("records=%d rejected=%d duplicates=%d sections=%d processed=%s in %s\n",
		snap.Records, snap.Rejected, snap.Duplicates, snap.Sections,
		common.FormatBytes(snap.Bytes), snap.Duration.Round(10*time.Millisecond))
}

// listInputs returns the regular files under dir in lexical order.
func listInputs(dir string) ([]string, int64, error) {
	var files []string
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, total, err
}

func runBatch(opts batchOptions) error {
	files, total, err := listInputs(opts.InDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no input files")
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return err
	}
	m := opts.Metrics
	m.SetTotalBytes(total)
	m.Start()
	defer m.Stop()
	if opts.Progress {
		stop := common.StartProgressPrinter(os.Stderr, m, 500*time.Millisecond)
		defer stop()
	}

	seen := common.NewDeduper()
	for _, path := range files {
		if err := batchFile(opts, seen, path); err != nil {
			common.Warnf("%s: %v", path, err)
		}
	}
	return nil
}

func batchFile(opts batchOptions, seen *common.Deduper, path string) error {
	data, _, err := dump.Load(path)
	if err != nil {
		return err
	}
	blocks, splitErr := dump.Split(data)
	rel, err := filepath.Rel(opts.InDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	name := strings.TrimSuffix(rel, filepath.Ext(rel))
	dir := filepath.Join(opts.OutDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for i, b := range blocks {
		fp := common.Fingerprint(b.Data)
		if seen.Seen(b.Data) {
			opts.Metrics.IncDuplicate()
			appendAudit(opts.Audit, common.AuditEntry{
				File: rel, Index: i, Offset: b.Offset, Fingerprint: fp, Duplicate: true,
			})
			continue
		}
		rep := report.Build(b.Data, report.Options{Source: rel, Offset: b.Offset})
		if rep.Valid {
			opts.Metrics.AddRecord(int64(len(b.Data)))
			opts.Metrics.AddSections(rep.Summary.Sections, rep.Summary.TooSmall, rep.Summary.Unknown)
		} else {
			opts.Metrics.AddRejected(int64(len(b.Data)))
		}
		if _, err := writeReport(rep, dir, fmt.Sprintf("block_%03d", i), opts.PDF, opts.Lang); err != nil {
			return err
		}
		appendAudit(opts.Audit, common.AuditEntry{
			RecordID:    rep.RecordID,
			File:        rel,
			Index:       i,
			Offset:      b.Offset,
			Fingerprint: fp,
			Valid:       rep.Valid,
			Error:       rep.Error,
			Sections:    rep.Summary.Sections,
		})
	}
	return splitErr
}

func appendAudit(a *common.AuditLog, entry common.AuditEntry) {
	if a == nil {
		return
	}
	if err := a.Append(entry); err != nil {
		common.Warnf("audit append: %v", err)
	}
}

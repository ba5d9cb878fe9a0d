package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"example.com/cpergate/internal/common"
	"example.com/cpergate/internal/cper"
	"example.com/cpergate/internal/dmi"
	"example.com/cpergate/internal/dump"
	"example.com/cpergate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "check":
		checkCmd(os.Args[2:])
	case "render":
		renderCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "id":
		idCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`cperctl %s (built %s) <command> [options]

Commands:
  check   --in <file> [--split]
  render  --in <file> [--prefix <text>] [--dmi none|local|<file>] [--log]
  report  --in <file> --out-dir <dir> [--pdf] [--lang en|tr] [--dmi none|local|<file>]
  batch   --in <dir> --out-dir <dir> [--audit <audit.jsonl>] [--pdf] [--progress]
  id      [-n <count>]

Input files may be raw or zstd, lz4 or s2 compressed.
`, version, buildDate)
}

// resolveDIMMs maps the --dmi flag to a handle resolver; "none" and "" yield nil.
func resolveDIMMs(src string) (cper.DIMMResolver, error) {
	switch strings.TrimSpace(src) {
	case "", "none":
		return nil, nil
	case "local":
		return dmi.Local()
	default:
		return dmi.FromFile(src)
	}
}

func loadInput(path string) []byte {
	if path == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	data, format, err := dump.Load(path)
	if err != nil {
		fmt.Println("load input:", err)
		os.Exit(1)
	}
	if format != dump.Raw {
		common.Logf("%s: %s compressed, %s decoded", path, format, common.FormatBytes(int64(len(data))))
	}
	return data
}

func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	in := fs.String("in", "", "status block file")
	split := fs.Bool("split", false, "treat the input as a dump of consecutive status blocks")
	fs.Parse(args)

	data := loadInput(*in)
	blocks := []dump.Block{{Data: data}}
	if *split {
		var err error
		blocks, err = dump.Split(data)
		if err != nil {
			fmt.Println("split:", err)
			if len(blocks) == 0 {
				os.Exit(1)
			}
		}
	}
	failed := 0
	for i, b := range blocks {
		rec, err := cper.Check(b.Data)
		if err != nil {
			failed++
			fmt.Printf("block %d @%d: INVALID: %v\n", i, b.Offset, err)
			continue
		}
		fmt.Printf("block %d @%d: OK severity=%s sections=%d fingerprint=%s\n",
			i, b.Offset, rec.Status().Severity, rec.NumSections(), common.Fingerprint(b.Data))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func renderCmd(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	in := fs.String("in", "", "status block file")
	prefix := fs.String("prefix", "", "text prepended to every line")
	dmiSrc := fs.String("dmi", "none", "DIMM names: none, local or an SMBIOS table file")
	toLog := fs.Bool("log", false, "write lines through the timestamped logger instead of stdout")
	fs.Parse(args)

	data := loadInput(*in)
	dimms, err := resolveDIMMs(*dmiSrc)
	if err != nil {
		fmt.Println("dmi:", err)
		os.Exit(1)
	}
	rec, err := cper.Check(data)
	if err != nil {
		fmt.Println("check:", err)
		os.Exit(1)
	}
	var opts []cper.RenderOption
	if dimms != nil {
		opts = append(opts, cper.WithDIMMResolver(dimms))
	}
	var sink cper.LineSink = cper.LineFunc(func(line string) { fmt.Println(line) })
	if *toLog {
		sink = cper.LogSink()
	}
	sum := cper.Render(rec, *prefix, sink, opts...)
	if sum.TooSmall > 0 || sum.Unknown > 0 {
		common.Logf("%s: %d sections, %d too small, %d unknown", *in, sum.Sections, sum.TooSmall, sum.Unknown)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "status block file")
	outDir := fs.String("out-dir", ".", "output directory")
	pdf := fs.Bool("pdf", false, "also write a PDF report")
	lang := fs.String("lang", "en", "PDF language (en, tr)")
	dmiSrc := fs.String("dmi", "none", "DIMM names: none, local or an SMBIOS table file")
	fs.Parse(args)

	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	data := loadInput(*in)
	dimms, err := resolveDIMMs(*dmiSrc)
	if err != nil {
		fmt.Println("dmi:", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Println("out dir:", err)
		os.Exit(1)
	}
	rep := report.Build(data, report.Options{Source: filepath.Base(*in), DIMMs: dimms})
	paths, err := writeReport(rep, *outDir, fmt.Sprintf("record_%016x", rep.RecordID), *pdf, language)
	if err != nil {
		fmt.Println("write report:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		fmt.Println("Wrote:", p)
	}
	if !rep.Valid {
		fmt.Println("INVALID:", rep.Error)
		os.Exit(1)
	}
}

func writeReport(rep report.Report, dir, base string, pdf bool, lang report.Language) ([]string, error) {
	jsonPath := filepath.Join(dir, base+".json")
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		return nil, err
	}
	paths := []string{jsonPath}
	if pdf {
		pdfPath := filepath.Join(dir, base+".pdf")
		if err := report.SavePDF(rep, lang, pdfPath); err != nil {
			return paths, err
		}
		paths = append(paths, pdfPath)
	}
	return paths, nil
}

func idCmd(args []string) {
	fs := flag.NewFlagSet("id", flag.ExitOnError)
	n := fs.Int("n", 1, "number of record ids")
	fs.Parse(args)
	if *n <= 0 {
		fmt.Println(errors.New("-n must be positive"))
		os.Exit(1)
	}
	for i := 0; i < *n; i++ {
		fmt.Printf("%016x\n", cper.NextRecordID())
	}
}

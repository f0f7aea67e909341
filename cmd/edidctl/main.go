package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"example.com/edidgen/internal/common"
	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/manifest"
	"example.com/edidgen/internal/report"
	"example.com/edidgen/internal/request"
	"example.com/edidgen/internal/rules"
	"example.com/edidgen/internal/vic"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// errInvalid marks a run that produced output which failed validation.
var errInvalid = errors.New("validation failed")

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	var err error
	switch os.Args[1] {
	case "generate":
		err = generateCmd(os.Args[2:], os.Stdout)
	case "validate":
		err = validateCmd(os.Args[2:], os.Stdout)
	case "vic":
		err = vicCmd(os.Args[2:], os.Stdout)
	case "manifest":
		err = manifestCmd(os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("edidctl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, errInvalid) {
		os.Exit(3)
	}
	os.Exit(1)
}

func usage() {
	fmt.Printf(`edidctl %s (built %s) <command> [options]

Commands:
  generate  --default <WxH@R> [--mode <WxH@R> ...] [--audio] [--hdr] [--deep-color] [--vrr] [--listed-only] [--dsc auto|on|off]
            [--request <file.yaml|json>] [--out <edid.bin|->] [--hex <file>] [--report <report.json>] [--cbor <report.cbor>]
            [--pdf <report.pdf> --lang en|tr] [--manifest <manifest.json>] [--year <YYYY>] [--vic-table <file>]
  validate  --in <edid.bin|edid.hex> [--rules <rulepack.json>] [--out <diagnostics.jsonl>] [--acceptance <acceptance.json>]
  vic       [--table <file>] [--mode <WxH@R>]
  manifest  --inputs <comma-separated> --out <manifest.json>
            --verify <manifest.json> [--base <dir>]
  version
`, version, buildDate)
}

// modeList collects repeated --mode flags. Commas split a single value.
type modeList []string

func (l *modeList) String() string { return strings.Join(*l, ",") }

func (l *modeList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func generateCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	def := fs.String("default", "", "default (preferred) mode, WxH@R")
	var modes modeList
	fs.Var(&modes, "mode", "additional mode, WxH@R (repeatable)")
	audio := fs.Bool("audio", false, "advertise LPCM stereo audio")
	hdr := fs.Bool("hdr", false, "advertise HDR10 static metadata")
	deep := fs.Bool("deep-color", false, "advertise 10-bit colour")
	vrr := fs.Bool("vrr", false, "advertise a VRR range")
	listed := fs.Bool("listed-only", false, "advertise only the listed modes")
	dsc := fs.String("dsc", "", "DSC policy: auto, on or off")
	reqPath := fs.String("request", "", "request document (.yaml, .yml or .json)")
	out := fs.String("out", "", "EDID binary output; - writes to stdout")
	hexOut := fs.String("hex", "", "formatted hex output")
	reportOut := fs.String("report", "", "report JSON output")
	cborOut := fs.String("cbor", "", "report CBOR output")
	pdfOut := fs.String("pdf", "", "report PDF output")
	manifestOut := fs.String("manifest", "", "manifest of written artifacts")
	langFlag := fs.String("lang", "en", "report language (en|tr)")
	year := fs.Int("year", 0, "manufacture year (defaults to the current year)")
	vendor := fs.String("vendor", edid.DefaultVendor, "three letter manufacturer id")
	product := fs.String("product", edid.DefaultName, "monitor name descriptor")
	tablePath := fs.String("vic-table", "", "replacement VIC table (.json or .yaml)")
	verbose := fs.Bool("verbose", false, "log degraded outcomes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var doc request.Document
	if *reqPath != "" {
		loaded, err := request.LoadFile(*reqPath)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		doc = loaded
	}
	if *def != "" {
		doc.DefaultMode = *def
	}
	doc.Modes = append(doc.Modes, modes...)
	doc.Audio = doc.Audio || *audio
	doc.HDR = doc.HDR || *hdr
	doc.DeepColor = doc.DeepColor || *deep
	doc.VRR = doc.VRR || *vrr
	doc.ListedModesOnly = doc.ListedModesOnly || *listed
	if *dsc != "" {
		p, err := request.ParsePolicy(*dsc)
		if err != nil {
			return err
		}
		doc.DSC = p
	}
	req, policy, err := doc.Request()
	if err != nil {
		return err
	}
	lang, err := report.ParseLanguage(*langFlag)
	if err != nil {
		return err
	}

	table := vic.Default()
	if *tablePath != "" {
		if table, err = vic.LoadFile(*tablePath); err != nil {
			return fmt.Errorf("load vic table: %w", err)
		}
	}
	now := time.Now
	if *year > 0 {
		y := *year
		now = func() time.Time { return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC) }
	}
	g := edid.NewGenerator(edid.Options{
		Table:       table,
		Vendor:      *vendor,
		ProductName: *product,
		Now:         now,
		Verbose:     *verbose,
	})
	res := request.Run(g, req, policy)

	var written []string
	write := func(path string, data []byte) error {
		if err := common.WriteFileAtomic(path, data, 0o644); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	switch *out {
	case "":
	case "-":
		if isTerminal(stdout) {
			fmt.Fprintln(stdout, edid.FormatHex(res.Bytes))
		} else if _, err := stdout.Write(res.Bytes); err != nil {
			return err
		}
	default:
		if err := write(*out, res.Bytes); err != nil {
			return fmt.Errorf("write edid: %w", err)
		}
	}
	if *hexOut != "" {
		if err := write(*hexOut, []byte(edid.FormatHex(res.Bytes)+"\n")); err != nil {
			return fmt.Errorf("write hex: %w", err)
		}
	}
	if *reportOut != "" || *cborOut != "" || *pdfOut != "" {
		rep, err := report.New(req, res, now())
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		if *reportOut != "" {
			if err := report.SaveJSON(rep, *reportOut); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			written = append(written, *reportOut)
		}
		if *cborOut != "" {
			if err := report.SaveCBOR(rep, *cborOut); err != nil {
				return fmt.Errorf("write cbor: %w", err)
			}
			written = append(written, *cborOut)
		}
		if *pdfOut != "" {
			if err := report.SavePDF(rep, lang, *pdfOut); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			written = append(written, *pdfOut)
		}
	}
	if *manifestOut != "" {
		m, err := manifest.Build(written, now())
		if err != nil {
			return fmt.Errorf("build manifest: %w", err)
		}
		if err := manifest.Save(m, *manifestOut); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	// Raw bytes on stdout leave no room for the human summary.
	info := stdout
	if *out == "-" && !isTerminal(stdout) {
		info = os.Stderr
	}
	for _, line := range res.Summary {
		fmt.Fprintln(info, line)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "WARNING: %s\n", w)
	}
	fmt.Fprintf(info, "Size: %s (%d blocks)\n", common.FormatBytes(int64(len(res.Bytes))), len(res.Bytes)/128)
	if !res.Valid {
		return errInvalid
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readBlob loads a binary EDID, or a hex dump when the file is text.
func readBlob(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".hex" || ext == ".txt" {
		return edid.ParseHex(string(data))
	}
	return data, nil
}

func validateCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	in := fs.String("in", "", "EDID binary or .hex dump")
	outDiag := fs.String("out", "", "diagnostics output (jsonl)")
	outAcc := fs.String("acceptance", "", "acceptance json")
	rulesPath := fs.String("rules", "", "rulepack.json replacing the built-in checks")
	includeTimestamps := fs.Bool("diag-include-timestamps", true, "include timestamp metadata in diagnostics output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("required: --in")
	}
	data, err := readBlob(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}

	engine := rules.NewDefaultEngine()
	if *rulesPath != "" {
		rp, err := rules.LoadRulePack(*rulesPath)
		if err != nil {
			return fmt.Errorf("load rulepack: %w", err)
		}
		engine = rules.NewEngine(rp)
		engine.RegisterBuiltins()
	}
	engine.SetConfigValue("diag.include_timestamps", *includeTimestamps)
	diags, err := engine.Eval(&rules.Context{File: *in, Data: data})
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	if *outDiag != "" {
		if err := engine.WriteDiagnosticsNDJSON(*outDiag); err != nil {
			return fmt.Errorf("write diags: %w", err)
		}
	}
	rep := engine.MakeAcceptance()
	if *outAcc != "" {
		if err := saveJSON(rep, *outAcc); err != nil {
			return fmt.Errorf("write acceptance: %w", err)
		}
	}
	for _, issue := range engine.Issues() {
		fmt.Fprintf(stdout, "ISSUE: %s\n", issue)
	}
	fmt.Fprintf(stdout, "PASS=%v, errors=%d, warnings=%d, diagnostics=%d\n", rep.Summary.Pass, rep.Summary.Errors, rep.Summary.Warnings, len(diags))
	if !rep.Summary.Pass {
		return errInvalid
	}
	return nil
}

func saveJSON(v any, path string) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(path, append(b, '\n'), 0o644)
}

func vicCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("vic", flag.ContinueOnError)
	tablePath := fs.String("table", "", "VIC table (.json or .yaml); defaults to the built-in catalogue")
	modeFlag := fs.String("mode", "", "look up a single mode, WxH@R")
	if err := fs.Parse(args); err != nil {
		return err
	}
	table := vic.Default()
	if *tablePath != "" {
		var err error
		if table, err = vic.LoadFile(*tablePath); err != nil {
			return fmt.Errorf("load vic table: %w", err)
		}
	}
	entries := table.Entries()
	if *modeFlag != "" {
		m, err := request.ParseMode(*modeFlag)
		if err != nil {
			return err
		}
		e, ok := table.Match(m)
		if !ok {
			return fmt.Errorf("no VIC for %s (aspect %s)", m.Key(), m.Aspect())
		}
		entries = []vic.Entry{e}
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VIC\tMODE\tASPECT\tPIXEL CLOCK\tH FREQ")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f MHz\t%.3f kHz\n", e.Code, e.Mode().Key(), e.Aspect, float64(e.PixelClockKHz)/1000, e.HFreqKHz())
	}
	return tw.Flush()
}

func manifestCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	inputs := fs.String("inputs", "", "comma-separated artifact paths")
	out := fs.String("out", "manifest.json", "manifest output")
	verify := fs.String("verify", "", "verify an existing manifest instead of writing one")
	base := fs.String("base", "", "directory relative manifest paths resolve against")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verify != "" {
		m, err := manifest.Load(*verify)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		problems := manifest.Verify(m, *base)
		for _, p := range problems {
			fmt.Fprintln(stdout, p)
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d of %d items failed verification", len(problems), len(m.Items))
		}
		fmt.Fprintf(stdout, "%d items verified\n", len(m.Items))
		return nil
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return errors.New("required: --inputs")
	}
	m, err := manifest.Build(paths, time.Now())
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := manifest.Save(m, *out); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%d items)\n", *out, len(m.Items))
	return nil
}

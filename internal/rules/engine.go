package rules

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"example.com/edidgen/internal/block"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Rule struct {
	RuleId   string   `json:"ruleId"`
	Name     string   `json:"name,omitempty"`
	Scope    string   `json:"scope"` // edid|block|cta|displayid
	Severity Severity `json:"severity"`
	Gate     bool     `json:"gate,omitempty"`
	Check    string   `json:"check,omitempty"`
	Refs     []string `json:"refs"`
	Message  string   `json:"message"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

type Diagnostic struct {
	Ts       time.Time `json:"ts"`
	File     string    `json:"file"`
	Block    *int      `json:"block,omitempty"`
	Offset   string    `json:"offset,omitempty"`
	RuleId   string    `json:"ruleId"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Refs     []string  `json:"refs"`
}

type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	GateMatrix []map[string]any `json:"gateMatrix"`
	Findings   []Diagnostic     `json:"findings,omitempty"`
}

// Context is the blob under evaluation.
type Context struct {
	File string
	Data []byte
}

// Blocks returns the whole 128-byte blocks of the blob.
func (ctx *Context) Blocks() [][]byte {
	return block.Split(ctx.Data)
}

// CheckFunc evaluates one rule and returns its findings. No findings means
// the rule passed.
type CheckFunc func(ctx *Context, rule Rule) []Finding

// Finding is a failed check, optionally tied to a block and byte offset.
type Finding struct {
	Block   int
	Offset  int
	Message string
}

// NoBlock marks a finding that applies to the whole blob.
const NoBlock = -1

//go:embed rulepack.json
var defaultPack []byte

// DefaultRulePack returns the built-in structural self-check pack.
func DefaultRulePack() RulePack {
	var rp RulePack
	if err := json.Unmarshal(defaultPack, &rp); err != nil {
		panic("rules: embedded rule pack: " + err.Error())
	}
	return rp
}

type Engine struct {
	rulePack               RulePack
	registry               map[string]CheckFunc
	diagnostics            []Diagnostic
	includeTimestampFields bool
	now                    func() time.Time
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack:               rp,
		registry:               make(map[string]CheckFunc),
		includeTimestampFields: true,
		now:                    time.Now,
	}
}

// NewDefaultEngine returns an engine with the built-in pack and checks.
func NewDefaultEngine() *Engine {
	e := NewEngine(DefaultRulePack())
	e.RegisterBuiltins()
	return e
}

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

// SetClock replaces the timestamp source used for diagnostics.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Eval runs every rule in pack order. A gate rule that reports an ERROR
// stops evaluation of the remaining rules.
func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.Check == "" {
			continue
		}
		fn, ok := e.registry[r.Check]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: e.now(), File: ctx.File, RuleId: r.RuleId, Severity: WARN,
				Message: "no function for rule", Refs: r.Refs,
			})
			continue
		}
		findings := fn(ctx, r)
		if len(findings) == 0 {
			diags = append(diags, Diagnostic{
				Ts: e.now(), File: ctx.File, RuleId: r.RuleId, Severity: INFO,
				Message: r.Name + " ok", Refs: r.Refs,
			})
			continue
		}
		for _, f := range findings {
			d := Diagnostic{
				Ts: e.now(), File: ctx.File, RuleId: r.RuleId, Severity: r.Severity,
				Message: f.Message, Refs: r.Refs,
			}
			if f.Block != NoBlock {
				idx := f.Block
				d.Block = &idx
				d.Offset = fmt.Sprintf("0x%04X", f.Block*block.Size+f.Offset)
			}
			diags = append(diags, d)
		}
		if r.Gate && r.Severity == ERROR {
			break
		}
	}
	e.diagnostics = diags
	return diags, nil
}

// Issues returns the messages of every ERROR and WARN diagnostic from the
// last evaluation, in order.
func (e *Engine) Issues() []string {
	var out []string
	for _, d := range e.diagnostics {
		if d.Severity == ERROR || d.Severity == WARN {
			out = append(out, d.Message)
		}
	}
	return out
}

// Diagnostics returns the last evaluation's diagnostics.
func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.WriteNDJSON(f)
}

// WriteNDJSON writes one JSON diagnostic per line to w.
func (e *Engine) WriteNDJSON(out io.Writer) error {
	w := bufio.NewWriter(out)
	for _, d := range e.diagnostics {
		var b []byte
		var err error
		if e.includeTimestampFields {
			b, err = json.Marshal(d)
		} else {
			b, err = json.Marshal(d.toNoTimestamp())
		}
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

type diagnosticNoTimestamp struct {
	File     string   `json:"file"`
	Block    *int     `json:"block,omitempty"`
	Offset   string   `json:"offset,omitempty"`
	RuleId   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Refs     []string `json:"refs"`
}

func (d Diagnostic) toNoTimestamp() diagnosticNoTimestamp {
	return diagnosticNoTimestamp{
		File:     d.File,
		Block:    d.Block,
		Offset:   d.Offset,
		RuleId:   d.RuleId,
		Severity: d.Severity,
		Message:  d.Message,
		Refs:     d.Refs,
	}
}

func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "diag.include_timestamps":
		switch v := value.(type) {
		case bool:
			e.includeTimestampFields = v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				e.includeTimestampFields = b
			}
		default:
			if s, ok := value.(fmt.Stringer); ok {
				if b, err := strconv.ParseBool(s.String()); err == nil {
					e.includeTimestampFields = b
				}
			}
		}
	}
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	failed := map[string]bool{}
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
			failed[d.RuleId] = true
		case WARN:
			warns++
			failed[d.RuleId] = true
		}
	}
	seen := map[string]bool{}
	for _, d := range e.diagnostics {
		if seen[d.RuleId] {
			continue
		}
		seen[d.RuleId] = true
		rep.GateMatrix = append(rep.GateMatrix, map[string]any{
			"ruleId": d.RuleId,
			"pass":   !failed[d.RuleId],
		})
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	return rep
}

func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	err = json.Unmarshal(b, &rp)
	return rp, err
}

// Validate runs the default pack over data and returns the issue messages.
func Validate(data []byte) []string {
	e := NewDefaultEngine()
	if _, err := e.Eval(&Context{Data: data}); err != nil {
		return []string{err.Error()}
	}
	return e.Issues()
}

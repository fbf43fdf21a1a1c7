// Package filter evaluates the user's content filter: a single boolean
// expression over the plain-text summary and body, kept in a file that is
// re-read when it changes.
//
// Example filter file:
//
//	!(summary matches "^Spam" || body contains "unsubscribe")
package filter

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	logx "notithing/pkg/logx"
)

// Env is what a filter expression can see.
type Env struct {
	Summary string `expr:"summary"`
	Body    string `expr:"body"`
}

// Compile parses src. An empty (or whitespace-only) source yields a nil program, which allows everything.
func Compile(src string) (*vm.Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	p, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return p, nil
}

// Eval runs p against one message. A nil program allows everything.
func Eval(p *vm.Program, summary, body string) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, err := expr.Run(p, Env{Summary: summary, Body: body})
	if err != nil {
		return true, fmt.Errorf("run filter: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Load compiles the filter stored at path.
func Load(path string) (*vm.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(string(src))
}

// File is a filter backed by a file. The file mtime is checked at most once
// per poll interval. Any failure to load or evaluate allows the message.
type File struct {
	path string
	poll time.Duration
	now  func() time.Time
	log  logx.Logger

	checked time.Time
	mtime   time.Time
	program *vm.Program
}

func NewFile(path string, poll time.Duration, now func() time.Time, log logx.Logger) *File {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &File{path: path, poll: poll, now: now, log: log}
}

// SetPath switches to another filter file, forcing a reload on next use.
func (f *File) SetPath(path string) {
	if path == f.path {
		return
	}
	f.path = path
	f.checked, f.mtime, f.program = time.Time{}, time.Time{}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) refresh() {
	ts := f.now()
	if !f.checked.IsZero() && ts.Sub(f.checked) < f.poll {
		return
	}
	f.checked = ts

	st, err := os.Stat(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.log.Debug("cannot stat filter file", logx.String("path", f.path), logx.Err(err))
		}
		f.program, f.mtime = nil, time.Time{}
		return
	}
	if !st.ModTime().After(f.mtime) {
		return
	}
	p, err := Load(f.path)
	if err != nil {
		f.program, f.mtime = nil, time.Time{}
		f.log.Warn("failed to load notification filters",
			logx.String("path", f.path), logx.Err(err), logx.Notify())
		return
	}
	f.program, f.mtime = p, st.ModTime()
	f.log.Debug("(re)loaded notification filters", logx.String("path", f.path))
}

// Allow implements the flow controller's filter.
func (f *File) Allow(summary, body string) bool {
	f.refresh()
	ok, err := Eval(f.program, summary, body)
	if err != nil {
		f.log.Warn("notification filters failed", logx.Err(err), logx.Notify())
		return true
	}
	return ok
}

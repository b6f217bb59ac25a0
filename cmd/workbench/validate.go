package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
	"github.com/randalmurphal/dataflow/pkg/dataflow/nodetypes"
)

// ValidateCommand checks document files.
type ValidateCommand struct {
	Meta
}

func (c *ValidateCommand) Run(args []string) int {
	var strict bool
	fs := c.flagSet("validate", c.Help)
	fs.BoolVar(&strict, "strict", false, "")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		c.Ui.Error("at least one document file is required")
		c.Ui.Error(c.Help())
		return 1
	}

	code := 0
	for _, path := range fs.Args() {
		problems, warnings := c.check(path)
		for _, w := range warnings {
			c.Ui.Warn(fmt.Sprintf("%s: warning: %s", path, w))
		}
		for _, p := range problems {
			c.Ui.Error(fmt.Sprintf("%s: %s", path, p))
		}
		switch {
		case len(problems) > 0, strict && len(warnings) > 0:
			code = 1
		default:
			c.Ui.Output(fmt.Sprintf("%s: ok", path))
		}
	}
	return code
}

// check returns the document's errors, then its graph errors as warnings.
// Graph errors are computed against the built-in node types.
func (c *ValidateCommand) check(path string) (problems, warnings []string) {
	doc, err := c.readDocument(path)
	if err != nil {
		return []string{err.Error()}, nil
	}
	if err := document.Validate(doc); err != nil {
		return flatten(err), nil
	}

	s := dataflow.NewStore(dataflow.WithStoreLogger(c.logger()))
	defer s.Close()
	if err := nodetypes.Register(s, nodetypes.Builtins()...); err != nil {
		return []string{err.Error()}, nil
	}
	if err := document.Load(s, doc); err != nil {
		problems = flatten(err)
	}
	for _, ge := range s.GraphErrors() {
		warnings = append(warnings, ge.Message)
	}
	return problems, warnings
}

func flatten(err error) []string {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, e.Error())
	}
	return out
}

func (c *ValidateCommand) Help() string {
	helpText := `
Usage: workbench validate [options] FILE...

  Decodes each document file, picking the format from its extension
  (.json, .yaml, .yml, .msgpack, optionally followed by .zst), and
  reports every problem found.

  Structural problems such as edges to missing nodes or nodes of an
  unknown type are reported as warnings.

Options:

  -strict   Treat warnings as errors.
`
	return strings.TrimSpace(helpText)
}

func (c *ValidateCommand) Synopsis() string {
	return "Check workflow document files"
}

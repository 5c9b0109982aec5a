// Package compose injects runtime context values into resolved template
// text. Insertion points use the text/template {{.name}} syntax. Every
// declared insertion point must be bound by the supplied context or
// composition fails; context keys the template never uses are collected as
// warnings rather than errors. Injected values are never re-expanded.
package compose

import (
	"context"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpipe/pkg/logger"
)

// ErrUnboundInsertionPoint is returned when a template declares an insertion
// point the supplied context does not bind.
var ErrUnboundInsertionPoint = errors.New("unbound insertion point")

// Context is an ordered mapping from insertion-point name to substitution
// text. Ordering is preserved so warnings and error aggregation are
// deterministic across runs.
type Context struct {
	keys   []string
	values map[string]string
}

// NewContext creates an empty context
func NewContext() *Context {
	return &Context{values: make(map[string]string)}
}

// Set binds an insertion-point name to its substitution text. Re-setting a
// key overwrites the value but keeps its original position.
func (c *Context) Set(key, value string) *Context {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
	return c
}

// Get returns the value bound to key
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the bound keys in insertion order
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of bound keys
func (c *Context) Len() int {
	return len(c.keys)
}

// Warning records a non-fatal issue encountered during composition
type Warning struct {
	// Key is the context key the template never referenced
	Key string
}

func (w Warning) String() string {
	return "unknown context key: " + w.Key
}

// Result holds the composed output and any non-fatal warnings
type Result struct {
	// Output is the composed text
	Output string
	// Warnings lists context keys that were supplied but unused by the template
	Warnings []Warning
}

// InsertionPoints returns the insertion-point names declared by the template
// text, in first-appearance order. Invalid template syntax is an error.
func InsertionPoints(text string) ([]string, error) {
	tmpl, err := template.New("compose").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse template")
	}

	seen := make(map[string]bool)
	var points []string
	collectFields(tmpl.Tree.Root, func(name string) {
		if !seen[name] {
			seen[name] = true
			points = append(points, name)
		}
	})
	return points, nil
}

// collectFields walks a template parse tree and reports the first identifier
// of every field access ({{.diff}}, {{.code | printf "%q"}}, ...).
func collectFields(node parse.Node, report func(string)) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, item := range n.Nodes {
			collectFields(item, report)
		}
	case *parse.ActionNode:
		collectPipeFields(n.Pipe, report)
	case *parse.IfNode:
		collectPipeFields(n.Pipe, report)
		collectFields(n.List, report)
		if n.ElseList != nil {
			collectFields(n.ElseList, report)
		}
	case *parse.RangeNode:
		collectPipeFields(n.Pipe, report)
		collectFields(n.List, report)
		if n.ElseList != nil {
			collectFields(n.ElseList, report)
		}
	case *parse.WithNode:
		collectPipeFields(n.Pipe, report)
		collectFields(n.List, report)
		if n.ElseList != nil {
			collectFields(n.ElseList, report)
		}
	}
}

func collectPipeFields(pipe *parse.PipeNode, report func(string)) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					report(a.Ident[0])
				}
			case *parse.PipeNode:
				collectPipeFields(a, report)
			}
		}
	}
}

// Compose substitutes the context values into the template text in a single
// left-to-right pass. All unbound insertion points are reported together,
// wrapped around ErrUnboundInsertionPoint.
func Compose(ctx context.Context, text string, values *Context) (*Result, error) {
	if values == nil {
		values = NewContext()
	}

	points, err := InsertionPoints(text)
	if err != nil {
		return nil, err
	}

	var unbound *multierror.Error
	declared := make(map[string]bool, len(points))
	for _, point := range points {
		declared[point] = true
		if _, ok := values.Get(point); !ok {
			unbound = multierror.Append(unbound, errors.Wrapf(ErrUnboundInsertionPoint, "insertion point %q", point))
		}
	}
	if err := unbound.ErrorOrNil(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, key := range values.Keys() {
		if !declared[key] {
			result.Warnings = append(result.Warnings, Warning{Key: key})
			logger.G(ctx).WithField("key", key).Warn("context key unused by template")
		}
	}

	tmpl, err := template.New("compose").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse template")
	}

	data := make(map[string]string, values.Len())
	for _, key := range values.Keys() {
		value, _ := values.Get(key)
		data[key] = value
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, "failed to execute template")
	}

	result.Output = buf.String()
	return result, nil
}

// Package nodetypes provides the built-in node types.
package nodetypes

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
)

// Type names of the built-in node types.
const (
	TypeDefault     dataflow.TypeName = "default"
	TypeString      dataflow.TypeName = "string"
	TypeTempWrapper dataflow.TypeName = "tempWrapper"
	TypeConcat      dataflow.TypeName = "concat"
	TypeDelay       dataflow.TypeName = "delay"
)

// ValueTypeString tags ports carrying strings.
const ValueTypeString dataflow.ValueType = "string"

// ErrNotImplemented is returned by placeholder node types.
var ErrNotImplemented = errors.New("not implemented")

// Builtins returns every built-in node type.
func Builtins() []dataflow.NodeType {
	return []dataflow.NodeType{Default(), String(), TempWrapper(), Concat(), Delay()}
}

// Register registers types with s and returns every failure.
func Register(s *dataflow.Store, types ...dataflow.NodeType) error {
	var result *multierror.Error
	for _, def := range types {
		if err := s.CreateNodeType(def); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Default is the fallback node type. It has no ports and always fails.
func Default() dataflow.NodeType {
	return dataflow.NodeType{Name: TypeDefault, Execute: notImplemented}
}

// TempWrapper groups child nodes on the canvas. It has no ports and
// always fails when executed.
func TempWrapper() dataflow.NodeType {
	return dataflow.NodeType{Name: TypeTempWrapper, Execute: notImplemented}
}

func notImplemented(dataflow.Controller, dataflow.ExecuteArgs) (*dataflow.Result, error) {
	return nil, ErrNotImplemented
}

// String forwards its "value" input, falling back to data["value"] when
// the input is unset or null. With neither, the output is null.
func String() dataflow.NodeType {
	return dataflow.NodeType{
		Name:    TypeString,
		Inputs:  []dataflow.InputSchema{{Name: "value", Type: ValueTypeString}},
		Outputs: []dataflow.OutputSchema{{Name: "value", Type: ValueTypeString}},
		Execute: func(_ dataflow.Controller, args dataflow.ExecuteArgs) (*dataflow.Result, error) {
			var out any
			if v, _ := args.Input("value"); v != nil {
				out = v
			} else if v := args.Data["value"]; v != nil {
				out = v
			}
			return &dataflow.Result{Outputs: map[dataflow.OutputName]any{"value": out}}, nil
		},
	}
}

// Concat joins its "a" and "b" inputs with data["separator"]. Unset and
// null inputs count as empty strings.
func Concat() dataflow.NodeType {
	return dataflow.NodeType{
		Name: TypeConcat,
		Inputs: []dataflow.InputSchema{
			{Name: "a", Type: ValueTypeString},
			{Name: "b", Type: ValueTypeString},
		},
		Outputs: []dataflow.OutputSchema{{Name: "value", Type: ValueTypeString}},
		Execute: func(_ dataflow.Controller, args dataflow.ExecuteArgs) (*dataflow.Result, error) {
			sep, _ := args.Data["separator"].(string)
			a, _ := args.Input("a")
			b, _ := args.Input("b")
			return &dataflow.Result{Outputs: map[dataflow.OutputName]any{
				"value": text(a) + sep + text(b),
			}}, nil
		},
	}
}

func text(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DefaultDelay is used by Delay when data["delay"] is absent.
const DefaultDelay = 100 * time.Millisecond

// Delay forwards its "value" input after data["delay"], given as
// milliseconds or a duration string. It reports progress while waiting and
// stops early when the run is aborted.
func Delay() dataflow.NodeType {
	return dataflow.NodeType{
		Name:    TypeDelay,
		Inputs:  []dataflow.InputSchema{{Name: "value"}},
		Outputs: []dataflow.OutputSchema{{Name: "value"}},
		Execute: func(ctl dataflow.Controller, args dataflow.ExecuteArgs) (*dataflow.Result, error) {
			d, err := delayOf(args.Data["delay"])
			if err != nil {
				return nil, err
			}
			ctl.SetProgress(0, "waiting "+d.String())

			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctl.Done():
				return nil, ctl.Err()
			case <-timer.C:
			}

			ctl.SetProgress(1, "done")
			v, _ := args.Input("value")
			return &dataflow.Result{Outputs: map[dataflow.OutputName]any{"value": v}}, nil
		},
	}
}

func delayOf(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return DefaultDelay, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("delay: %w", err)
		}
		return d, nil
	}
	return 0, fmt.Errorf("delay: unsupported value %v (%T)", raw, raw)
}

package document

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func documentValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("identifier", validateIdentifier)
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateIdentifier accepts the strings the store accepts as node ids and
// port names.
func validateIdentifier(fl validator.FieldLevel) bool {
	_, err := dataflow.ParseNodeID(fl.Field().String())
	return err == nil
}

// Validate reports every structural problem in doc: malformed fields,
// duplicate node ids and duplicate port names. References to nodes that
// are missing from the document are not errors; they load as graph errors.
func Validate(doc *Document) error {
	var result *multierror.Error

	if err := documentValidator().Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			result = multierror.Append(result, fmt.Errorf("%s: %s", fieldPath(fe), message(fe)))
		}
	}

	seen := make(map[dataflow.NodeID]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if first, dup := seen[n.ID]; dup && n.ID != "" {
			result = multierror.Append(result, fmt.Errorf("nodes[%d].id: duplicate of nodes[%d] (%s)", i, first, n.ID))
		} else {
			seen[n.ID] = i
		}
		inputs := make(map[dataflow.InputName]bool, len(n.Inputs))
		for j, in := range n.Inputs {
			if inputs[in.Name] {
				result = multierror.Append(result, fmt.Errorf("nodes[%d].inputs[%d].name: duplicate input %s", i, j, in.Name))
			}
			inputs[in.Name] = true
		}
		outputs := make(map[dataflow.OutputName]bool, len(n.Outputs))
		for j, out := range n.Outputs {
			if outputs[out.Name] {
				result = multierror.Append(result, fmt.Errorf("nodes[%d].outputs[%d].name: duplicate output %s", i, j, out.Name))
			}
			outputs[out.Name] = true
		}
	}

	return result.ErrorOrNil()
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "identifier":
		return fmt.Sprintf("invalid identifier %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "nefield":
		return "must differ from " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

package elections

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and converts failures into a
// *shared.ValidationError keyed by JSON field name.
func validateStruct(v any, extra map[string]string) error {
	fields := make(map[string]string, len(extra))
	for k, msg := range extra {
		fields[k] = msg
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			field := fieldPath(fe)
			if _, seen := fields[field]; !seen {
				fields[field] = describe(fe)
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return shared.NewValidationError(fields)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gtfield":
		return "must be after start_at"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// positionErrors reports blank or duplicate positions under case folding.
func positionErrors(positions []string) map[string]string {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		key := positionKey(p)
		if key == "" {
			return map[string]string{"positions": "must not contain blank names"}
		}
		if _, dup := seen[key]; dup {
			return map[string]string{"positions": fmt.Sprintf("duplicate position %q", strings.TrimSpace(p))}
		}
		seen[key] = struct{}{}
	}
	return nil
}

func cleanPositions(positions []string) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, strings.Join(strings.Fields(p), " "))
	}
	return out
}

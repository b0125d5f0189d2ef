// Package validation holds the field -> code violation map returned to API clients.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// RequiredID flags a missing (zero) foreign key.
func RequiredID(field string, id uint, v Violations) {
	if id == 0 {
		v[field] = "required"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct runs the `validate` tags of s and merges failures into v.
// Field names come from the json tag namespace (e.g. "lines[0].quantity").
func Struct(s any, v Violations) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		v["_"] = "invalid"
		return
	}
	for _, fe := range ves {
		v[fieldName(fe)] = code(fe)
	}
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	// drop the root struct name
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

func code(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return "required"
	case "gt":
		return "must_be_positive"
	case "gte":
		return "must_not_be_negative"
	case "min":
		return "too_few"
	case "dive":
		return "invalid"
	default:
		return "invalid_" + fe.Tag()
	}
}

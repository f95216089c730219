package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their JSON or query name so errors match
// what the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds the body and query into req, applies default
// tags and validates it. It returns a []ValidationError or nil.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return validationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return validationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func validationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		errs := make([]ValidationError, 0, len(fieldErrs))
		for _, e := range fieldErrs {
			errs = append(errs, ValidationError{
				Code:    "ERR_" + strings.ToUpper(e.Tag()),
				Field:   fieldPath(e),
				Message: errorMessage(e),
				Params:  errorParams(e),
			})
		}
		return errs
	}

	// echo reports bind failures (bad JSON, wrong types) as HTTPError
	if he := (*echo.HTTPError)(nil); errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_MALFORMED", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// fieldPath drops the struct name, keeping nested paths such as
// observations[3].sentiment for batch items.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// ruleText maps a validator tag to a phrase completed by the rule's param.
var ruleText = map[string]string{
	"gt":      "must be greater than %s",
	"gte":     "must be greater than or equal to %s",
	"lt":      "must be less than %s",
	"lte":     "must be less than or equal to %s",
	"nefield": "must differ from %s",
	"oneof":   "must be one of: %s",
}

// paramKey names the Params entry that carries the rule's argument.
var paramKey = map[string]string{
	"min": "min", "gte": "min",
	"max": "max", "lte": "max",
	"gt": "value", "lt": "value",
	"nefield": "other",
}

func errorMessage(fe validator.FieldError) string {
	field, param := fieldPath(fe), fe.Param()
	switch tag := fe.Tag(); tag {
	case "required":
		return field + " is required"
	case "min", "max":
		bound := map[string]string{"min": "at least", "max": "at most"}[tag]
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("%s must contain %s %s items", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	case "oneof":
		param = strings.ReplaceAll(param, " ", ", ")
	case "nefield":
		param = strings.ToLower(param)
	}
	if text, ok := ruleText[fe.Tag()]; ok {
		return field + " " + fmt.Sprintf(text, param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}

func errorParams(fe validator.FieldError) map[string]interface{} {
	params := map[string]interface{}{}
	switch tag := fe.Tag(); {
	case tag == "oneof":
		params["options"] = strings.Fields(fe.Param())
	case paramKey[tag] == "other":
		params["other"] = strings.ToLower(fe.Param())
	case paramKey[tag] != "":
		params[paramKey[tag]] = fe.Param()
	}
	return params
}

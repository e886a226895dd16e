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

// requests reports fields by their query or json name, never the Go name.
var requests = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json"} {
			if name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}()

// ReadAndValidateRequest binds query or body into req, applies `default`
// tags and validates. A non-nil result is the []ValidationError to return.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := requests.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		out := make([]ValidationError, 0, len(fields))
		for _, fe := range fields {
			out = append(out, fieldError(fe))
		}
		return out
	}
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_BIND", Message: msg}}
}

// fieldError covers the bounds the status API declares: limit and trigger.
func fieldError(fe validator.FieldError) ValidationError {
	ve := ValidationError{Code: "ERR_" + strings.ToUpper(fe.Tag()), Field: fe.Field()}
	switch fe.Tag() {
	case "required":
		ve.Message = fe.Field() + " is required"
	case "gte":
		ve.Message = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		ve.Params = map[string]interface{}{"min": fe.Param()}
	case "lte":
		ve.Message = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		ve.Params = map[string]interface{}{"max": fe.Param()}
	case "max":
		ve.Message = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		ve.Params = map[string]interface{}{"max": fe.Param()}
	default:
		ve.Message = fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
	return ve
}

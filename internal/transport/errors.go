package transport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Well-known server error codes.
const (
	CodeValidationError  = "validation_error"
	CodeNotAuthenticated = "not_authenticated"
)

// RequestError is a failed API call: either a transport failure or a decoded
// server-side error body.
type RequestError struct {
	HTTPStatus  int
	Code        string
	Message     string
	FieldErrors map[string]string
}

func (e *RequestError) Error() string {
	if len(e.FieldErrors) > 0 {
		fields := make([]string, 0, len(e.FieldErrors))
		for f := range e.FieldErrors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, f+": "+e.FieldErrors[f])
		}
		return strings.Join(parts, "\n")
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("request failed with status %d", e.HTTPStatus)
}

// IsAuthError reports whether the failure means the stored token is invalid.
func (e *RequestError) IsAuthError() bool {
	return e.HTTPStatus == 401 || e.Code == CodeNotAuthenticated
}

// parseErrorBody decodes a non-2xx response body into a RequestError.
//
// Validation failures arrive as {"code": "validation_error", "message":
// {field: [texts...]}}; other failures carry a flat message or just a code.
// A 404 with no usable body reads as a missing resource.
func parseErrorBody(status int, body []byte) *RequestError {
	e := &RequestError{HTTPStatus: status}

	j := gjson.ParseBytes(body)
	e.Code = j.Get("code").String()

	msg := j.Get("message")
	switch {
	case e.Code == CodeValidationError && msg.IsObject():
		e.FieldErrors = make(map[string]string)
		msg.ForEach(func(field, errs gjson.Result) bool {
			var texts []string
			errs.ForEach(func(_, t gjson.Result) bool {
				texts = append(texts, t.String())
				return true
			})
			e.FieldErrors[field.String()] = strings.Join(texts, ", ")
			return true
		})
	case msg.Type == gjson.String:
		e.Message = msg.String()
	}

	if e.Message == "" && len(e.FieldErrors) == 0 && e.Code == "" && status == 404 {
		e.Message = "Resource not found"
	}
	return e
}

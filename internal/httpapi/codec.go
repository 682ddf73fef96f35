// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/pkg/errutil"
)

// maxBodyBytes bounds request bodies. Every request is a handful of short
// strings.
const maxBodyBytes = 16 << 10

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value) //nolint:errcheck // client may have gone away
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorResponse{Error: body})
}

// statusOf maps an error Kind to its HTTP status.
func statusOf(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error response. Only *auth.Error messages reach the
// caller; anything else is logged and reported as an internal error.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		errutil.LogErrorAt(r.Context(), h.logger, slog.LevelError, "unclassified api error", err,
			"method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, errorBody{
			Kind:    auth.KindInternal.String(),
			Message: auth.MsgInternal,
		})
		return
	}
	body := errorBody{Kind: authErr.Kind.String(), Message: authErr.Message, Fields: authErr.Fields}
	if authErr.Kind == auth.KindInternal {
		body.Message = auth.MsgInternal
		body.Fields = nil
	}
	writeError(w, statusOf(authErr.Kind), body)
}

// requestValidator validates decoded request bodies and reports failures by
// JSON field name.
type requestValidator struct {
	v *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

// Validate returns per-field messages, or nil when req is valid.
func (rv *requestValidator) Validate(req any) (map[string]string, error) {
	err := rv.v.Struct(req)
	if err == nil {
		return nil, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, err //nolint:wrapcheck // invalid validation input is a programming error
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fieldError(fe)
	}
	return fields, nil
}

// fieldError converts a single validation failure into a message.
func fieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{
			Kind:    auth.KindValidation.String(),
			Message: decodeMessage(err),
		})
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, errorBody{
			Kind:    auth.KindValidation.String(),
			Message: "request body must contain a single JSON object",
		})
		return false
	}

	fields, err := h.validate.Validate(dst)
	if err != nil {
		h.fail(w, r, err)
		return false
	}
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, errorBody{
			Kind:    auth.KindValidation.String(),
			Message: auth.MsgValidationFailed,
			Fields:  fields,
		})
		return false
	}
	return true
}

func decodeMessage(err error) string {
	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "request body is not valid JSON"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &maxBytesErr):
		return "request body is too large"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "invalid request body"
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"restaurant-pos/internal/common/logger"
	"restaurant-pos/internal/microservices/pos/models"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// problem is a simplified RFC 7807 body. State carries the current entity
// on business-rule rejections so the terminal can resynchronize.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	State  any    `json:"state,omitempty"`
}

func writeProblem(w http.ResponseWriter, code int, typ, detail string, state any) {
	writeJSON(w, code, problem{Type: typ, Title: http.StatusText(code), Status: code, Detail: detail, State: state})
}

func statusFor(kind error) int {
	switch kind {
	case models.ErrValidation:
		return http.StatusBadRequest
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrAmountMismatch:
		return http.StatusUnprocessableEntity
	case models.ErrInvalidState, models.ErrInvalidTransition, models.ErrTableUnavailable,
		models.ErrConcurrentModification, models.ErrNoActiveShift, models.ErrShiftAlreadyOpen:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps business errors to their HTTP status and hides anything
// else behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, lg *logger.Logger, err error) {
	var e *models.Error
	if errors.As(err, &e) {
		writeProblem(w, statusFor(e.Kind), e.Code(), e.Message, e.State)
		return
	}
	logger.FromContext(r.Context(), lg).Error("request_failed", err, map[string]any{"method": r.Method, "path": r.URL.Path})
	writeProblem(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
}

// decodeJSON reads one JSON object into dst and runs struct validation.
// It writes the 400 itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "validation_error", "invalid json body: "+err.Error(), nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "validation_error", "extra data after json", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "validation_error", describe(err), nil)
		return false
	}
	return true
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/interchange/internal/platform/middleware"
	"github.com/ehr/interchange/internal/platform/segment"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error    string           `json:"error"`
	Kind     string           `json:"kind,omitempty"`
	Segment  string           `json:"segment,omitempty"`
	Position int              `json:"position,omitempty"`
	Fields   []FieldViolation `json:"fields,omitempty"`
}

// FieldViolation is one failed validation rule.
type FieldViolation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Error kinds reported in ErrorBody.Kind.
const (
	KindStructural = "structural"
	KindField      = "field"
	KindValidation = "validation"
)

// Describe maps an error to its HTTP status and response body. Codec errors
// are the caller's fault and become 400 with the offending segment and
// position. Validation failures become 422. Anything unrecognised is a 500
// whose detail is withheld from the client.
func Describe(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, ErrorBody{Error: msg}
	}

	var se *segment.Error
	if errors.As(err, &se) {
		body := ErrorBody{Error: se.Error(), Segment: se.Segment, Position: se.Position}
		switch {
		case errors.Is(err, segment.ErrStructural):
			body.Kind = KindStructural
		case errors.Is(err, segment.ErrField):
			body.Kind = KindField
		}
		return http.StatusBadRequest, body
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		body := ErrorBody{Error: "validation failed", Kind: KindValidation}
		for _, fe := range ve {
			body.Fields = append(body.Fields, FieldViolation{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
		}
		return http.StatusUnprocessableEntity, body
	}

	return http.StatusInternalServerError, ErrorBody{Error: "internal server error"}
}

// ErrorHandler renders handler errors with Describe and logs server faults.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := Describe(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", middleware.GetRequestID(c)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// MIMEHL7 is the content type of ER7-encoded HL7 v2 messages.
const MIMEHL7 = "x-application/hl7-v2+er7"

// ReadBody reads the whole request body and rejects empty payloads. Errors
// raised by the body limit middleware pass through unchanged.
func ReadBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
	}
	return body, nil
}

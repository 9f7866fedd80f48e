package hl7v2

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/interchange/internal/platform/server"
)

// Handler provides HTTP endpoints for generic HL7v2 inspection and
// acknowledgment. Order and result endpoints live with the diagnostics
// domain.
type Handler struct{}

// NewHandler creates a new HL7v2 handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers HL7v2 endpoints on the provided route group.
//
//	POST /api/v1/hl7v2/parse - Parse HL7v2 message to JSON
//	POST /api/v1/hl7v2/ack   - Acknowledge an HL7v2 message
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7v2/parse", h.ParseMessage)
	g.POST("/hl7v2/ack", h.AckMessage)
}

// segmentJSON is the JSON representation of a parsed segment.
type segmentJSON struct {
	Name   string      `json:"name"`
	Fields []fieldJSON `json:"fields"`
}

// fieldJSON is the JSON representation of a parsed field.
type fieldJSON struct {
	Value      string     `json:"value"`
	Components []string   `json:"components,omitempty"`
	Repeats    [][]string `json:"repeats,omitempty"`
}

// ParseMessage handles POST /api/v1/hl7v2/parse.
// It reads raw HL7v2 from the request body and returns parsed JSON.
func (h *Handler) ParseMessage(c echo.Context) error {
	body, err := server.ReadBody(c)
	if err != nil {
		return err
	}

	msg, err := Parse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to parse HL7v2 message: " + err.Error(),
		})
	}

	segments := make([]segmentJSON, len(msg.Segments))
	for i, seg := range msg.Segments {
		fields := make([]fieldJSON, len(seg.Fields))
		for j, f := range seg.Fields {
			fields[j] = fieldJSON{
				Value:      f.Value,
				Components: f.Components,
				Repeats:    f.Repeats,
			}
		}
		segments[i] = segmentJSON{Name: seg.Name, Fields: fields}
	}

	result := map[string]interface{}{
		"type":         msg.Type,
		"controlId":    msg.ControlID,
		"version":      msg.Version,
		"timestamp":    msg.Timestamp.Format("2006-01-02T15:04:05Z"),
		"sendingApp":   msg.SendingApp,
		"sendingFac":   msg.SendingFac,
		"receivingApp": msg.ReceivingApp,
		"receivingFac": msg.ReceivingFac,
		"segments":     segments,
	}

	return c.JSON(http.StatusOK, result)
}

// AckMessage handles POST /api/v1/hl7v2/ack.
// It answers a parseable message with an ACK whose MSA-1 is taken from the
// code query parameter (AA when absent).
func (h *Handler) AckMessage(c echo.Context) error {
	body, err := server.ReadBody(c)
	if err != nil {
		return err
	}

	msg, err := Parse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to parse HL7v2 message: " + err.Error(),
		})
	}

	code := c.QueryParam("code")
	switch code {
	case "":
		code = AckAccept
	case AckAccept, AckError, AckReject:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "code must be AA, AE or AR",
		})
	}

	ack := GenerateACK(msg, code, c.QueryParam("text"))
	return c.Blob(http.StatusOK, server.MIMEHL7, SerializeMessage(ack))
}

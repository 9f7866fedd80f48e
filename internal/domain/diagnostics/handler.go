package diagnostics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/interchange/internal/platform/auth"
	"github.com/ehr/interchange/internal/platform/hl7v2"
	"github.com/ehr/interchange/internal/platform/server"
)

// HeaderControlID carries the MSH-10 of a generated message.
const HeaderControlID = "X-HL7-Control-ID"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleLab))
	g.POST("/lab-orders/orm", h.PlaceOrder)
	g.POST("/lab-results/oru", h.ReadResults)
	g.POST("/lab-results/oru/generate", h.GenerateResults)
}

// PlaceOrder handles POST /lab-orders/orm. The ORM is returned as ER7 text
// unless format=json asks for the message record.
func (h *Handler) PlaceOrder(c echo.Context) error {
	var order hl7v2.LabOrder
	if err := c.Bind(&order); err != nil {
		return err
	}
	msg, err := h.svc.PlaceOrder(c.Request().Context(), &order)
	if err != nil {
		return err
	}
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusCreated, msg)
	}
	return writeMessage(c, msg)
}

// ReadResults handles POST /lab-results/oru.
func (h *Handler) ReadResults(c echo.Context) error {
	body, err := server.ReadBody(c)
	if err != nil {
		return err
	}
	results, err := h.svc.ReadResults(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResultBatch{Count: len(results), Results: results})
}

// GenerateResults handles POST /lab-results/oru/generate.
func (h *Handler) GenerateResults(c echo.Context) error {
	var report ResultReport
	if err := c.Bind(&report); err != nil {
		return err
	}
	msg, err := h.svc.GenerateResults(c.Request().Context(), &report)
	if err != nil {
		return err
	}
	return writeMessage(c, msg)
}

func writeMessage(c echo.Context, msg *OrderMessage) error {
	c.Response().Header().Set(HeaderControlID, msg.ControlID)
	return c.Blob(http.StatusCreated, server.MIMEHL7, []byte(msg.Text))
}

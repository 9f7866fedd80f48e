package billing

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/interchange/internal/platform/auth"
	"github.com/ehr/interchange/internal/platform/server"
	"github.com/ehr/interchange/internal/platform/x12"
)

// Response headers carrying the envelope numbers of a generated interchange.
const (
	HeaderInterchangeControl = "X-Interchange-Control"
	HeaderGroupControl       = "X-Group-Control"
	HeaderTransactionControl = "X-Transaction-Control"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleBilling))
	g.POST("/claims/837", h.SubmitClaim)
	g.POST("/remittances/835", h.ReadRemittance)
	g.POST("/remittances/835/generate", h.GenerateRemittance)
	g.POST("/remittances/835/simulate", h.SimulateRemittance)
}

// SubmitClaim handles POST /claims/837. The 837 is returned as text unless
// format=json asks for the full submission record.
func (h *Handler) SubmitClaim(c echo.Context) error {
	var claim x12.Claim
	if err := c.Bind(&claim); err != nil {
		return err
	}
	sub, err := h.svc.SubmitClaim(c.Request().Context(), &claim)
	if err != nil {
		return err
	}
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusCreated, sub)
	}
	return writeDocument(c, &sub.Document)
}

// ReadRemittance handles POST /remittances/835.
func (h *Handler) ReadRemittance(c echo.Context) error {
	body, err := server.ReadBody(c)
	if err != nil {
		return err
	}
	report, err := h.svc.ReadRemittance(c.Request().Context(), string(body))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// GenerateRemittance handles POST /remittances/835/generate.
func (h *Handler) GenerateRemittance(c echo.Context) error {
	var advice x12.RemittanceAdvice
	if err := c.Bind(&advice); err != nil {
		return err
	}
	doc, err := h.svc.GenerateRemittance(c.Request().Context(), &advice)
	if err != nil {
		return err
	}
	return writeDocument(c, doc)
}

// SimulateRemittance handles POST /remittances/835/simulate.
func (h *Handler) SimulateRemittance(c echo.Context) error {
	var req SimulationRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	doc, err := h.svc.SimulateRemittance(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return writeDocument(c, doc)
}

func writeDocument(c echo.Context, doc *Document) error {
	hdr := c.Response().Header()
	hdr.Set(HeaderInterchangeControl, strconv.FormatInt(doc.Control.Interchange, 10))
	hdr.Set(HeaderGroupControl, strconv.FormatInt(doc.Control.Group, 10))
	hdr.Set(HeaderTransactionControl, strconv.FormatInt(doc.Control.Transaction, 10))
	return c.Blob(http.StatusCreated, echo.MIMETextPlainCharsetUTF8, []byte(doc.Text))
}

package handler

import (
	"net/http"

	"fxdesk/internal/middleware"
	"fxdesk/internal/model"
	"fxdesk/internal/service"
	"fxdesk/pkg/pagination"
	"fxdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type MarginHandler struct {
	marginService service.MarginService
	auditService  service.AuditService
}

func NewMarginHandler(marginService service.MarginService, auditService service.AuditService) *MarginHandler {
	return &MarginHandler{marginService: marginService, auditService: auditService}
}

func (h *MarginHandler) RegisterRoutes(router *gin.RouterGroup) {
	margins := router.Group("/margins")
	read := middleware.RequireRole(model.RoleAdmin, model.RoleViewer)
	write := middleware.RequireRole(model.RoleAdmin)
	{
		margins.GET("", read, h.GetMargins)
		margins.GET("/history", read, h.GetMarginHistory)
		margins.GET("/audit", write, h.GetAuditLogs)
		margins.GET("/:id", read, h.GetMargin)
		margins.POST("/create", write, h.CreateMargin)
		margins.PUT("/update/:id", write, h.UpdateMargin)
		margins.POST("/relink", write, h.RelinkRates)
	}
}

// GetMargins lists margins, newest start first
// @Summary      List margins
// @Description  Lists all margins, or only the one effective today when active=true
// @Tags         margins
// @Security     BearerAuth
// @Produce      json
// @Param        active  query     bool  false  "Only the margin effective today"
// @Success      200     {object}  response.Response{data=[]service.MarginResponse}
// @Failure      401     {object}  response.Response
// @Failure      500     {object}  response.Response
// @Router       /margins [get]
func (h *MarginHandler) GetMargins(c *gin.Context) {
	margins, err := h.marginService.GetMargins(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, margins))
}

// GetMarginHistory returns the full timeline in chronological order
// @Summary      Margin history
// @Description  Lists every margin ordered by start date ascending
// @Tags         margins
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.MarginResponse}
// @Failure      401  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /margins/history [get]
func (h *MarginHandler) GetMarginHistory(c *gin.Context) {
	margins, err := h.marginService.GetMarginHistory(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, margins))
}

// GetMargin returns a single margin
// @Summary      Get margin
// @Tags         margins
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Margin ID"
// @Success      200  {object}  response.Response{data=service.MarginResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /margins/{id} [get]
func (h *MarginHandler) GetMargin(c *gin.Context) {
	margin, err := h.marginService.GetMargin(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, margin))
}

// CreateMargin inserts a margin, negotiating overlaps with the caller
// @Summary      Create margin
// @Description  Creates a margin. Returns 409 with the neighbours that would be closed, shifted or deleted unless forceCreate is set.
// @Tags         margins
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateMarginRequest  true  "Create Margin Payload"
// @Success      201      {object}  response.Response{data=service.MarginMutationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response{conflicts=response.Conflicts}
// @Failure      500      {object}  response.Response
// @Router       /margins/create [post]
func (h *MarginHandler) CreateMargin(c *gin.Context) {
	var req service.CreateMarginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.marginService.CreateMargin(c.Request.Context(), req, currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// UpdateMargin rewrites a margin and applies the neighbour changes it requires
// @Summary      Update margin
// @Description  Replaces value and window of a margin. Overlapping neighbours are adjusted without confirmation.
// @Tags         margins
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Margin ID"
// @Param        payload  body      service.UpdateMarginRequest  true  "Update Margin Payload"
// @Success      200      {object}  response.Response{data=service.MarginMutationResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /margins/update/{id} [put]
func (h *MarginHandler) UpdateMargin(c *gin.Context) {
	var req service.UpdateMarginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.marginService.UpdateMargin(c.Request.Context(), c.Param("id"), req, currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// RelinkRates recomputes every exchange rate's margin reference
// @Summary      Relink exchange rates
// @Description  Repairs rate to margin links that drifted from the timeline
// @Tags         margins
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.RelinkResponse}
// @Failure      500  {object}  response.Response
// @Router       /margins/relink [post]
func (h *MarginHandler) RelinkRates(c *gin.Context) {
	res, err := h.marginService.RelinkRates(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetAuditLogs pages the margin change trail
// @Summary      Margin audit trail
// @Tags         margins
// @Security     BearerAuth
// @Produce      json
// @Param        marginId  query     string  false  "Only entries for this margin"
// @Param        action    query     string  false  "Only entries with this action, e.g. CLOSE_MARGIN"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 50)"
// @Success      200       {object}  response.Response{data=pagination.Page}
// @Failure      400       {object}  response.Response
// @Failure      500       {object}  response.Response
// @Router       /margins/audit [get]
func (h *MarginHandler) GetAuditLogs(c *gin.Context) {
	params := pagination.Parse(c)
	query := service.AuditQuery{MarginID: c.Query("marginId"), Action: c.Query("action")}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), query, params.Page, params.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, params.Wrap(logs, total)))
}

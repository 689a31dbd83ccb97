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

type RateHandler struct {
	rateService service.RateService
}

func NewRateHandler(rateService service.RateService) *RateHandler {
	return &RateHandler{rateService: rateService}
}

func (h *RateHandler) RegisterRoutes(router *gin.RouterGroup) {
	rates := router.Group("/rates")
	rates.Use(middleware.RequireRole(model.RoleAdmin, model.RoleViewer))
	{
		rates.GET("", h.GetRates)
		rates.GET("/convert", h.Convert)
	}
}

// GetRates lists exchange rate observations with their effective margin
// @Summary      List exchange rates
// @Tags         rates
// @Security     BearerAuth
// @Produce      json
// @Param        currency  query     string  false  "ISO currency code"
// @Param        from      query     string  false  "First day (YYYY-MM-DD)"
// @Param        to        query     string  false  "Last day (YYYY-MM-DD)"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 50)"
// @Success      200       {object}  response.Response{data=pagination.Page}
// @Failure      400       {object}  response.Response
// @Router       /rates [get]
func (h *RateHandler) GetRates(c *gin.Context) {
	params := pagination.Parse(c)
	query := service.RateQuery{
		Currency: c.Query("currency"),
		From:     c.Query("from"),
		To:       c.Query("to"),
	}

	rates, total, err := h.rateService.GetRates(c.Request.Context(), query, params.Page, params.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, params.Wrap(rates, total)))
}

// Convert prices an amount between two currencies with the margin applied
// @Summary      Convert amount
// @Tags         rates
// @Security     BearerAuth
// @Produce      json
// @Param        from    query     string  true   "Source currency"
// @Param        to      query     string  true   "Target currency"
// @Param        amount  query     string  true   "Amount in source currency"
// @Param        date    query     string  false  "Pricing day (YYYY-MM-DD, default today)"
// @Success      200     {object}  response.Response{data=service.ConversionResponse}
// @Failure      400     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Router       /rates/convert [get]
func (h *RateHandler) Convert(c *gin.Context) {
	res, err := h.rateService.Convert(c.Request.Context(), service.ConvertRequest{
		From:   c.Query("from"),
		To:     c.Query("to"),
		Amount: c.Query("amount"),
		Date:   c.Query("date"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

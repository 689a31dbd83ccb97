package handler

import (
	"errors"
	"log"
	"net/http"

	"fxdesk/internal/service"
	"fxdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto the response envelope. Anything that is not a
// ServiceError is a storage fault and is reported as 500 without its details.
func writeError(c *gin.Context, err error) {
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
		return
	}

	if serviceErr.Status == http.StatusConflict {
		c.JSON(http.StatusConflict, response.Conflict(serviceErr.Code, serviceErr.Message, serviceErr.Conflicts))
		return
	}
	c.JSON(serviceErr.Status, response.CodedError(serviceErr.Status, serviceErr.Code, serviceErr.Message))
}

func currentUserID(c *gin.Context) string {
	return c.GetString("userID")
}

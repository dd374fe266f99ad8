package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventqueue/internal/checkin"
)

func statusOf(err error) int {
	switch checkin.KindOf(err) {
	case checkin.KindValidation:
		return http.StatusUnprocessableEntity
	case checkin.KindNotFound:
		return http.StatusNotFound
	case checkin.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes {"error": msg}. Internal errors are logged and hidden.
func (s *Server) fail(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("op", op), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

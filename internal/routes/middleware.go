package routes

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mini-task-manager/internal/handlers"
)

// RecoveryHandler はpanicをログに出して500ページを返します。
func RecoveryHandler(c *gin.Context, recovered any) {
	log.Printf("panic recovered: %v", recovered)
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	handlers.RenderError(c, http.StatusInternalServerError, "Internal server error")
	c.Abort()
}

// NotFoundHandler は存在しないパスに対して404を返します。
func NotFoundHandler(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
		return
	}
	handlers.RenderError(c, http.StatusNotFound, "Page not found")
}

// CSRFFailureHandler はCSRFトークンが一致しないフォーム送信を拒否します。
func CSRFFailureHandler(c *gin.Context) {
	handlers.RenderError(c, http.StatusBadRequest, "The CSRF token is missing or invalid.")
}

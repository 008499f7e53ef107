package utils

import (
	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
}

// ErrorResponse writes a short, client-safe error message. Internal error
// detail belongs in the logs, never in message.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorBody{Error: message})
}

// AbortWithError is ErrorResponse for middleware that must stop the chain.
func AbortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorBody{Error: message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

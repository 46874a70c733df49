// Package response defines the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Application error codes. The first three digits mirror the HTTP status
// class, the last two distinguish causes within it.
const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeEmailExists          = 40002
	CodeUnsupportedFile      = 40003
	CodeUnauthorized         = 40100
	CodeInvalidCredentials   = 40101
	CodeForbidden            = 40300
	CodeUserNotFound         = 40401
	CodeConversationNotFound = 40402
	CodeDocumentNotFound     = 40403
	CodeInternalServer       = 50000
)

type APIResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a 200 envelope wrapping data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Code: CodeOK, Message: "ok", Data: data})
}

// Error writes an error envelope with the given HTTP status and app code.
func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{Code: code, Message: message})
}

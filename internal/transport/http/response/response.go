package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK               = 0
	CodeBadRequest       = 40000
	CodeUnauthorized     = 40100
	CodeNotFound         = 40400
	CodeDocumentNotFound = 40401
	CodePageNotFound     = 40402
	CodeFileMissing      = 40901
	CodeValidation       = 42200
	CodeInternalServer   = 50000
	CodeUpstream         = 50200
	CodeUnavailable      = 50300
)

type APIResponse struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Code:    CodeOK,
		Message: message,
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithDetail is Error plus the underlying error text.
func ErrorWithDetail(c *gin.Context, httpStatus, code int, message, detail string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Error:   detail,
	})
}

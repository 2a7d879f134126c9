// internal/pkg/response/response.go
package response

import "github.com/gin-gonic/gin"

// Envelope is the wire format every endpoint returns
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Success writes a successful response envelope
func Success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error writes a failed response envelope
func Error(c *gin.Context, status int, message string, errs interface{}) {
	c.JSON(status, Envelope{
		Success: false,
		Message: message,
		Errors:  errs,
	})
}

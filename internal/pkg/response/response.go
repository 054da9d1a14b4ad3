package response

import "github.com/gin-gonic/gin"

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func Error(c *gin.Context, status int, err error) {
	msg := "erro interno"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, Envelope{Success: false, Message: msg})
}

func ErrorWithMessage(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Message: message})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response codes carried in every envelope.
const (
	CodeOK   = 0
	CodeFail = -1
)

// authEnvelope is the response shape of the /api/auth routes.
type authEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// dataEnvelope is the response shape of the knowledge routes.
type dataEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func authOK(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, authEnvelope{Code: CodeOK, Msg: msg, Data: data})
}

// authFail reports a handled failure. The auth routes answer 200 and carry
// the failure in code.
func authFail(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, authEnvelope{Code: CodeFail, Msg: msg})
}

func authAbort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, authEnvelope{Code: CodeFail, Msg: msg})
}

func dataOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dataEnvelope{Code: CodeOK, Message: "success", Data: data})
}

func dataFail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, dataEnvelope{Code: CodeFail, Message: msg})
}

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeTransactionNotFound    = 1001
	CodeInvalidStateTransition = 1002
	CodeInsufficientBalance    = 1003
	CodeDuplicateRequest       = 1004
	CodeAccountNotFound        = 1005
	CodeWalletNotFound         = 1006
	CodeAssetNotFound          = 1007
	CodeDuplicateConfirmation  = 1008
	CodeInvalidAmount          = 1009
	CodeAtomicCommitFailure    = 1010
	CodeOptimisticLock         = 1011 // 版本冲突，调用方可重试
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// Package httpx は JSON エラーレスポンスなど、ハンドラー共通の処理をまとめます。
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
)

// エラーコード
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
	CodeConflict      = "CONFLICT"
	CodeInternalError = "INTERNAL_ERROR"
)

// Error は {"code","message"} 形式のエラーを返して処理を中断します。
func Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// Internal は err をログに残し、詳細を含まない 500 を返します。
func Internal(c *gin.Context, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = c.Error(err)
	logger.Error("internal error",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	Error(c, http.StatusInternalServerError, CodeInternalError, "Something went wrong")
}

// InvalidInput は入力エラーを 400 で返します。ozzo-validation のエラーはフィールドごとに展開します。
func InvalidInput(c *gin.Context, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"code":    CodeInvalidInput,
			"message": "Validation failed",
			"fields":  fields,
		})
		return
	}
	Error(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
}

// ParamID はパスパラメーターを正の整数 ID として読み取ります。
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		Error(c, http.StatusBadRequest, CodeInvalidInput, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

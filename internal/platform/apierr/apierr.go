package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/logger"
	"campus-backend/internal/platform/reqid"
)

// ===== Error model (全パッケージ共通) =====
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidCode     Code = "INVALID_CODE"
	CodeConflict        Code = "CONFLICT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeInternal        Code = "INTERNAL"
)

// レスポンスボディ {"message": ..., "error": CODE} をそのまま表す
type APIError struct {
	Code    Code   `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Unauthenticated(msg string) *APIError { return &APIError{Code: CodeUnauthenticated, Message: msg} }
func Forbidden(msg string) *APIError       { return &APIError{Code: CodeForbidden, Message: msg} }
func NotFound(msg string) *APIError        { return &APIError{Code: CodeNotFound, Message: msg} }
func Invalid(msg string) *APIError         { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func InvalidCode(msg string) *APIError     { return &APIError{Code: CodeInvalidCode, Message: msg} }
func Conflict(msg string) *APIError        { return &APIError{Code: CodeConflict, Message: msg} }
func InvalidState(msg string) *APIError    { return &APIError{Code: CodeInvalidState, Message: msg} }
func Internal(msg string) *APIError        { return &APIError{Code: CodeInternal, Message: msg} }

// Is は err が指定コードの APIError かどうか
func Is(err error, code Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == code
}

func HTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeUnauthenticated:
			return http.StatusUnauthorized
		case CodeForbidden:
			return http.StatusForbidden
		case CodeNotFound:
			return http.StatusNotFound
		case CodeInvalidArgument, CodeInvalidCode, CodeInvalidState:
			return http.StatusBadRequest
		case CodeConflict:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// Write: err を JSON エンベロープに変換して返す。
// APIError 以外は原因をログに残し、クライアントには汎用メッセージのみ返す。
func Write(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), bodyFrom(c, err))
}

// Abort: ミドルウェア用。以降のハンドラを止める
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(HTTPStatus(err), bodyFrom(c, err))
}

func bodyFrom(c *gin.Context, err error) *APIError {
	var api *APIError
	if errors.As(err, &api) {
		if api.Code == CodeInternal {
			logger.Errorf("request_id=%s %s %s: %v", reqid.From(c), c.Request.Method, c.FullPath(), err)
		}
		return api
	}
	logger.Errorf("request_id=%s %s %s: %v", reqid.From(c), c.Request.Method, c.FullPath(), err)
	return Internal("internal server error")
}

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/mapcache"
)

// Error は利用者に返す {code, message} 形式のエラーです。
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func badRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "INVALID_INPUT", Message: message}
}

var (
	errDownloadNotFound    = &Error{Status: http.StatusNotFound, Code: "DOWNLOAD_NOT_FOUND", Message: "找不到指定的下載申請或檔案"}
	errCacheNotReady       = &Error{Status: http.StatusServiceUnavailable, Code: "CACHE_NOT_READY", Message: "地圖資料準備中，請稍後再試"}
	errObservationNotFound = &Error{Status: http.StatusNotFound, Code: "OBSERVATION_NOT_FOUND", Message: "找不到指定的觀測資料"}
	errQueueUnavailable    = &Error{Status: http.StatusServiceUnavailable, Code: "QUEUE_UNAVAILABLE", Message: "目前無法受理處理工作，請稍後再試"}
)

// respondWithError はエラーの種類に応じたステータスと JSON を返します。
func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	var validationErr *ledger.ValidationError
	switch {
	case errors.As(err, &apiErr):
		c.JSON(apiErr.Status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
	case errors.Is(err, ledger.ErrNotFound):
		respondWithError(c, errDownloadNotFound)
	case errors.Is(err, mapcache.ErrNotReady):
		respondWithError(c, errCacheNotReady)
	case errors.Is(err, mapcache.ErrInvalidYear):
		respondWithError(c, badRequest("年份格式錯誤"))
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "請求已取消",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "伺服器內部錯誤",
		})
	}
}

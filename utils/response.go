package utils

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every API response uses. Code 0 is success; other codes are
// HTTP status * 100 plus a per-endpoint detail.
type JSONResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data any) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data any) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// SuccessPage returns one page of items with its pagination block.
func SuccessPage(ctx *gin.Context, items any, page, pageSize int, total int64) {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	Success(ctx, gin.H{
		"items": items,
		"pagination": Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: pages,
		},
	})
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Reject answers a refused wallet command. reason is the stable machine-readable cause.
func Reject(ctx *gin.Context, status int, code int, message, reason string) {
	Respond(ctx, status, code, message, gin.H{"reason": reason})
}

// Unavailable answers 503 with a Retry-After hint. The same request may be retried unchanged.
func Unavailable(ctx *gin.Context, code int, message string, retryAfter time.Duration, extra gin.H) {
	data := gin.H{"retryable": true}
	for k, v := range extra {
		data[k] = v
	}
	ctx.Header("Retry-After", RetryAfterSeconds(retryAfter))
	Respond(ctx, http.StatusServiceUnavailable, code, message, data)
}

// RetryAfterSeconds renders d as a Retry-After header value, at least one second.
func RetryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(int(d/time.Second), 1))
}

package controllers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/middleware"
)

// likeOperator returns the case-insensitive LIKE operator for the active
// dialect. Postgres needs ILIKE (served by the trigram indexes); sqlite's
// plain LIKE is already case-insensitive.
func likeOperator(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "ILIKE"
	}
	return "LIKE"
}

// getUserID extracts the authenticated user ID from the gin context.
func getUserID(ctx *gin.Context) (uint, bool) {
	v, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// getUsername extracts the authenticated username from the gin context.
func getUsername(ctx *gin.Context) string {
	return ctx.GetString(middleware.ContextUsernameKey)
}

// parsePagination normalizes page/page_size query values. page_size is capped at 100.
func parsePagination(pageStr, sizeStr string) (int, int) {
	page, pageSize := 1, 10
	if v := strings.TrimSpace(pageStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := strings.TrimSpace(sizeStr); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			pageSize = n
		}
	}
	return page, pageSize
}

// paginationMeta builds the uniform pagination block for list responses.
func paginationMeta(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// cacheWrapper mirrors the standard response envelope for cached payloads so
// raw cached bytes and live responses are byte-compatible.
type cacheWrapper struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func wrapForCache(payload interface{}) cacheWrapper {
	return cacheWrapper{Code: 0, Message: "success", Data: payload}
}

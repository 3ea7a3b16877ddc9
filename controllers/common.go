package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/models"
)

// responseEnvelope mirrors the standard response wrapper for cached payloads.
type responseEnvelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func envelope(data interface{}) responseEnvelope {
	return responseEnvelope{Code: 0, Message: "success", Data: data}
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func paginationPayload(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func getRole(ctx *gin.Context) string {
	roleVal, exists := ctx.Get(middleware.ContextRoleKey)
	if !exists {
		return ""
	}
	role, _ := roleVal.(string)
	return role
}

func isAdmin(ctx *gin.Context) bool {
	return getRole(ctx) == models.RoleAdmin
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user's id set by the auth middleware.
func currentUserID(c *gin.Context) string {
	v, ok := c.Get("userID")
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// currentSessionID returns the session id set by the auth middleware.
func currentSessionID(c *gin.Context) string {
	v, ok := c.Get("sessionID")
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

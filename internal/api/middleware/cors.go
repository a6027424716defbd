package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig permits the origins local UI surfaces actually use.
// The listener binds loopback, so this guards against hostile web pages
// reaching the backend through the user's browser, not against the network.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// CORS creates a CORS middleware admitting loopback and packaged-app
// origins.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  allowedOrigin,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}

// allowedOrigin admits localhost in any scheme/port, packaged desktop-app
// schemes, and the "null" origin file:// pages produce.
func allowedOrigin(origin string) bool {
	if origin == "null" {
		return true
	}
	if strings.HasPrefix(origin, "app://") || strings.HasPrefix(origin, "tauri://") {
		return true
	}
	rest, ok := schemeHost(origin)
	if !ok {
		return false
	}
	host := rest
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host = rest[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]"
}

func schemeHost(origin string) (string, bool) {
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(origin, scheme) {
			return origin[len(scheme):], true
		}
	}
	return "", false
}

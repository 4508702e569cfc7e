// middleware.go - Middleware-Funktionen fuer den HTTP-Router
// Enthaelt: requestIDMiddleware(), loggingMiddleware()

package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey ist der Context-Schluessel der Request-ID
const requestIDKey = "request_id"

// requestIDMiddleware erzeugt pro Anfrage eine frische X-Request-ID und
// setzt sie auf jede Antwort; eingehende Header werden nicht uebernommen
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestID liest die Request-ID aus dem Gin-Context
func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// loggingMiddleware schreibt strukturierte Start- und Ende-Zeilen pro Anfrage
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		slog.Info("request empfangen",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote", c.ClientIP())

		c.Next()

		slog.Info("request beendet",
			"request_id", requestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	}
}

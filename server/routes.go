// Package server - Haupt-Router und Server-Setup des Klassifikationsdienstes
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/makodaa/docker-classification-model/envconfig"
	"github.com/makodaa/docker-classification-model/labels"
	"github.com/makodaa/docker-classification-model/model"
	"github.com/makodaa/docker-classification-model/store"
	"github.com/makodaa/docker-classification-model/version"
)

// MaxImageSize begrenzt Uploads auf 10 MiB
const MaxImageSize = 10 * 1024 * 1024

// Server haelt den unveraenderlichen Laufzeitzustand des Dienstes.
// Modell und Labels sind nach dem Start read-only und damit sicher fuer
// parallele Anfragen; der Store serialisiert intern.
type Server struct {
	model   *model.Model
	labels  *labels.Set
	store   *store.Store
	metrics *metrics

	modelPath    string
	inputH       int
	inputW       int
	maxImageSize int64
}

// NewServer baut den Server-Zustand auf
func NewServer(m *model.Model, ls *labels.Set, st *store.Store, inputH, inputW int) *Server {
	return &Server{
		model:        m,
		labels:       ls,
		store:        st,
		metrics:      newMetrics(),
		modelPath:    envconfig.ModelPath(),
		inputH:       inputH,
		inputW:       inputW,
		maxImageSize: MaxImageSize,
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	if envconfig.Debug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		"X-Request-ID",
	}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		requestIDMiddleware(),
		loggingMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Image classifier is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Image classifier is running") })
	r.HEAD("/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Klassifikation
	r.GET("/health", s.HealthHandler)
	r.GET("/info", s.InfoHandler)
	r.POST("/predict", s.PredictHandler)

	// Historie und Statistik
	r.GET("/history", s.HistoryHandler)
	r.DELETE("/history", s.ClearHistoryHandler)
	r.GET("/stats", s.StatsHandler)

	// Prometheus
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))

	return r
}

// inputShape beschreibt die erwartete Tensor-Form fuer die Antwort-Metadaten
func (s *Server) inputShape() string {
	return fmt.Sprintf("(1,3,%d,%d)", s.inputH, s.inputW)
}

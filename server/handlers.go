// handlers.go - HTTP-Handler des Klassifikationsdienstes
// Enthaelt: HealthHandler, InfoHandler, PredictHandler,
//           HistoryHandler, ClearHistoryHandler, StatsHandler

package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/makodaa/docker-classification-model/api"
	"github.com/makodaa/docker-classification-model/vision"
)

// HealthHandler meldet den Dienstzustand.
// 503, sobald Modell, Labels oder Datenbank fehlen.
func (s *Server) HealthHandler(c *gin.Context) {
	resp := api.HealthResponse{
		ModelLoaded:  s.model != nil,
		LabelsLoaded: s.labels != nil,
		DBConnected:  s.store.Connected(),
	}

	status := http.StatusOK
	if resp.ModelLoaded && resp.LabelsLoaded && resp.DBConnected {
		resp.Status = "healthy"
	} else {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	slog.Info("health check",
		"request_id", requestID(c),
		"status", resp.Status,
		"model_loaded", resp.ModelLoaded,
		"labels_loaded", resp.LabelsLoaded,
		"db_connected", resp.DBConnected)

	c.JSON(status, resp)
}

// InfoHandler beschreibt das geladene Modell
func (s *Server) InfoHandler(c *gin.Context) {
	if s.model == nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Model not loaded"})
		return
	}

	c.JSON(http.StatusOK, api.InfoResponse{
		ModelPath:       s.modelPath,
		ModelLoaded:     true,
		Device:          string(s.model.Device),
		NumClasses:      s.model.NumClasses(),
		LabelsAvailable: s.labels != nil,
		InputSize:       [2]int{s.inputH, s.inputW},
	})
}

// PredictHandler klassifiziert ein hochgeladenes Bild.
// Validierungsreihenfolge: Modell, Datei vorhanden, Dateiname, Groesse.
func (s *Server) PredictHandler(c *gin.Context) {
	if s.model == nil {
		s.metrics.errors.WithLabelValues(errModelNotLoaded).Inc()
		c.JSON(http.StatusInternalServerError, api.PredictResponse{
			Success: false,
			Error:   "Model not loaded",
		})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		s.metrics.errors.WithLabelValues(errNoImageProvided).Inc()
		c.JSON(http.StatusBadRequest, api.PredictResponse{
			Success: false,
			Error:   `No image file provided. Please upload an image using the "image" field.`,
		})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.metrics.errors.WithLabelValues(errEmptyFilename).Inc()
		c.JSON(http.StatusBadRequest, api.PredictResponse{
			Success: false,
			Error:   "Empty filename",
		})
		return
	}

	if header.Size > s.maxImageSize {
		s.metrics.errors.WithLabelValues(errFileTooLarge).Inc()
		c.JSON(http.StatusBadRequest, api.PredictResponse{
			Success: false,
			Error:   fmt.Sprintf("File too large. Maximum size is %.1fMB", float64(s.maxImageSize)/(1024*1024)),
		})
		return
	}

	topK := s.clampTopK(c.DefaultPostForm("top_k", "5"))

	s.metrics.requests.Inc()
	slog.Info("verarbeite bild",
		"request_id", requestID(c),
		"image_filename", header.Filename,
		"image_size", header.Size)

	start := time.Now()

	data, err := io.ReadAll(file)
	if err != nil {
		s.processingError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	tensor, err := vision.Preprocess(data, s.inputH, s.inputW)
	if err != nil {
		s.processingError(c, err)
		return
	}
	tensor = tensor.To(string(s.model.Device))

	preds, err := s.model.Predict(tensor, topK)
	if err != nil {
		s.processingError(c, err)
		return
	}

	processingMS := float64(time.Since(start).Microseconds()) / 1000.0
	s.metrics.processing.Observe(processingMS)

	results := make([]api.Prediction, len(preds))
	for i, p := range preds {
		results[i] = api.Prediction{
			ClassID:    p.Class,
			Label:      s.labels.Label(p.Class),
			Confidence: p.Confidence,
		}
	}

	resp := api.PredictResponse{
		Success:     true,
		Predictions: results,
		ModelInfo: &api.ModelInfo{
			Device:           string(s.model.Device),
			InputShape:       s.inputShape(),
			NumClasses:       s.model.NumClasses(),
			ProcessingTimeMS: processingMS,
		},
		Filename:  header.Filename,
		RequestID: requestID(c),
	}

	// Best-effort: ein Persistenzfehler aendert weder Status noch Ergebnis
	if ref, err := s.store.SavePrediction(header.Filename, results[0].Label, results[0].Confidence, results, header.Size); err != nil {
		slog.Warn("historie nicht gespeichert",
			"request_id", requestID(c),
			"error", err)
	} else {
		resp.HistoryRecord = ref
	}

	slog.Info("vorhersage erfolgreich",
		"request_id", requestID(c),
		"image_filename", header.Filename,
		"prediction", results[0].Label,
		"confidence", results[0].Confidence,
		"processing_time_ms", processingMS)

	c.JSON(http.StatusOK, resp)
}

// clampTopK parst den top_k-Formwert und begrenzt ihn auf [1, num_classes].
// Unparsbare Werte fallen auf 5 zurueck.
func (s *Server) clampTopK(raw string) int {
	topK, err := strconv.Atoi(raw)
	if err != nil {
		topK = 5
	}

	maxK := s.model.NumClasses()
	if maxK <= 0 {
		maxK = s.labels.Len()
	}
	if maxK <= 0 {
		maxK = 1000
	}

	if topK < 1 {
		topK = 1
	}
	if topK > maxK {
		topK = maxK
	}
	return topK
}

// processingError zaehlt und beantwortet Verarbeitungsfehler einheitlich
func (s *Server) processingError(c *gin.Context, err error) {
	s.metrics.errors.WithLabelValues(errProcessing).Inc()
	slog.Error("fehler bei der verarbeitung",
		"request_id", requestID(c),
		"error", err)
	c.JSON(http.StatusInternalServerError, api.PredictResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HistoryHandler liefert die juengsten History-Eintraege
func (s *Server) HistoryHandler(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	history, err := s.store.History(limit, offset)
	if err != nil {
		slog.Error("historie nicht lesbar", "request_id", requestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, history)
}

// ClearHistoryHandler loescht die gesamte Historie
func (s *Server) ClearHistoryHandler(c *gin.Context) {
	deleted, err := s.store.Clear()
	if err != nil {
		slog.Error("historie nicht loeschbar", "request_id", requestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ClearResponse{
		Message:      "History cleared",
		DeletedCount: deleted,
	})
}

// StatsHandler fasst die gespeicherten Vorhersagen zusammen
func (s *Server) StatsHandler(c *gin.Context) {
	stats, err := s.store.Stats()
	if err != nil {
		slog.Error("statistik nicht lesbar", "request_id", requestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// queryInt parst einen Query-Parameter mit Default bei Fehlern
func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

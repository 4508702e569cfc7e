package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/makodaa/docker-classification-model/api"
	"github.com/makodaa/docker-classification-model/labels"
	"github.com/makodaa/docker-classification-model/model"
	"github.com/makodaa/docker-classification-model/store"
)

// newTestServer baut einen Server mit 3 Klassen, initialisierten Gewichten
// und frischer Datenbank
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	ckptPath := filepath.Join(dir, "model.pt")
	if err := os.WriteFile(ckptPath, []byte("kein checkpoint"), 0o644); err != nil {
		t.Fatalf("Checkpoint-Datei nicht schreibbar: %v", err)
	}

	m, err := model.Load(ckptPath, 3)
	if err != nil {
		t.Fatalf("Modell nicht ladbar: %v", err)
	}

	st := store.New(filepath.Join(dir, "predictions.db"))
	if err := st.Connect(); err != nil {
		t.Fatalf("Datenbank nicht erreichbar: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewServer(m, labels.Synthesize(3), st, 64, 64)
}

// pngUpload baut einen Multipart-Body mit einem kleinen PNG im Feld "image"
func pngUpload(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 60, B: 200, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("PNG nicht kodierbar: %v", err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("Multipart-Feld nicht erstellbar: %v", err)
	}
	part.Write(pngBuf.Bytes())
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	return body, w.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.GenerateRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthGesund(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d: %s", rec.Code, rec.Body.String())
	}

	var resp api.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Antwort nicht parsbar: %v", err)
	}
	if resp.Status != "healthy" || !resp.ModelLoaded || !resp.DBConnected {
		t.Errorf("unerwarteter Zustand: %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID Header fehlt")
	}
}

func TestHealthOhneDatenbank(t *testing.T) {
	s := newTestServer(t)
	s.store.Close()

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("erwartete 503 ohne Datenbank, bekam %d", rec.Code)
	}

	var resp api.HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "unhealthy" || resp.DBConnected {
		t.Errorf("unerwarteter Zustand: %+v", resp)
	}
}

func TestInfo(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/info", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d", rec.Code)
	}

	var resp api.InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Antwort nicht parsbar: %v", err)
	}
	if !resp.ModelLoaded || resp.NumClasses != 3 {
		t.Errorf("unerwartete Info: %+v", resp)
	}
	if resp.InputSize != [2]int{64, 64} {
		t.Errorf("falsche input_size: %v", resp.InputSize)
	}
}

func TestPredictErfolgreich(t *testing.T) {
	s := newTestServer(t)

	body, contentType := pngUpload(t, "blume.png", map[string]string{"top_k": "2"})
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d: %s", rec.Code, rec.Body.String())
	}

	var resp api.PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Antwort nicht parsbar: %v", err)
	}
	if !resp.Success {
		t.Fatalf("erwartete Erfolg: %s", resp.Error)
	}
	if len(resp.Predictions) != 2 {
		t.Errorf("erwartete 2 Vorhersagen, bekam %d", len(resp.Predictions))
	}
	if resp.Filename != "blume.png" || resp.RequestID == "" {
		t.Errorf("Metadaten unvollstaendig: %+v", resp)
	}
	if resp.ModelInfo == nil || resp.ModelInfo.ProcessingTimeMS <= 0 {
		t.Errorf("model_info unvollstaendig: %+v", resp.ModelInfo)
	}
	if resp.HistoryRecord == nil || resp.HistoryRecord.ID == 0 {
		t.Errorf("history_record fehlt: %+v", resp.HistoryRecord)
	}
	if len(resp.Predictions) == 2 && resp.Predictions[0].Confidence < resp.Predictions[1].Confidence {
		t.Error("Vorhersagen nicht absteigend sortiert")
	}
}

func TestPredictOhneDatei(t *testing.T) {
	s := newTestServer(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("erwartete 400, bekam %d", rec.Code)
	}

	var resp api.PredictResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || !strings.Contains(resp.Error, "No image file provided") {
		t.Errorf("unerwartete Antwort: %+v", resp)
	}
}

func TestPredictZuGross(t *testing.T) {
	s := newTestServer(t)
	s.maxImageSize = 64 // Limit unter die Testbild-Groesse senken

	body, contentType := pngUpload(t, "gross.png", nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("erwartete 400, bekam %d", rec.Code)
	}

	var resp api.PredictResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || !strings.Contains(resp.Error, "File too large") {
		t.Errorf("unerwartete Antwort: %+v", resp)
	}
}

func TestPredictUngueltigesBild(t *testing.T) {
	s := newTestServer(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, _ := w.CreateFormFile("image", "kaputt.jpg")
	part.Write([]byte("das ist kein bild"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := doRequest(s, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("erwartete 500, bekam %d", rec.Code)
	}

	var resp api.PredictResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.Error == "" {
		t.Errorf("unerwartete Antwort: %+v", resp)
	}
}

func TestPredictTopKWirdBegrenzt(t *testing.T) {
	s := newTestServer(t)

	body, contentType := pngUpload(t, "blume.png", map[string]string{"top_k": "999"})
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	var resp api.PredictResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Predictions) != 3 {
		t.Errorf("top_k=999 sollte auf 3 Klassen begrenzt werden, bekam %d", len(resp.Predictions))
	}
}

func TestPredictPersistenzfehlerBleibtErfolg(t *testing.T) {
	s := newTestServer(t)

	// Store auf einen Pfad umbiegen, dessen Elternverzeichnis eine Datei ist:
	// jeder Schreibversuch schlaegt fehl
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Blocker-Datei nicht schreibbar: %v", err)
	}
	s.store = store.New(filepath.Join(blocker, "unerreichbar", "db.sqlite"))

	body, contentType := pngUpload(t, "blume.png", nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Persistenzfehler darf den Status nicht aendern, bekam %d", rec.Code)
	}

	var resp api.PredictResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || len(resp.Predictions) == 0 {
		t.Errorf("Vorhersage sollte trotzdem erfolgreich sein: %+v", resp)
	}
	if resp.HistoryRecord != nil {
		t.Error("history_record darf bei Persistenzfehler nicht gesetzt sein")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"erste.png", "zweite.png"} {
		body, contentType := pngUpload(t, name, nil)
		req := httptest.NewRequest(http.MethodPost, "/predict", body)
		req.Header.Set("Content-Type", contentType)
		if rec := doRequest(s, req); rec.Code != http.StatusOK {
			t.Fatalf("Vorhersage fehlgeschlagen: %d", rec.Code)
		}
	}

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d", rec.Code)
	}

	var history []api.HistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("Historie nicht parsbar: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("erwartete 2 Eintraege, bekam %d", len(history))
	}
	if history[0].ImageName != "zweite.png" {
		t.Errorf("neuester Eintrag sollte vorne stehen, bekam %s", history[0].ImageName)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/history", nil))
	var cleared api.ClearResponse
	json.Unmarshal(rec.Body.Bytes(), &cleared)
	if cleared.DeletedCount != 2 {
		t.Errorf("erwartete 2 geloeschte Eintraege, bekam %d", cleared.DeletedCount)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/history", nil))
	history = nil
	json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history) != 0 {
		t.Errorf("Historie sollte leer sein, bekam %d Eintraege", len(history))
	}
}

func TestHistoryEndpunkteOhneDatenbank(t *testing.T) {
	s := newTestServer(t)

	// Store auf einen unerreichbaren Pfad umbiegen: keine Verbindung moeglich
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Blocker-Datei nicht schreibbar: %v", err)
	}
	s.store = store.New(filepath.Join(blocker, "unerreichbar", "db.sqlite"))

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /history ohne Datenbank sollte 200 liefern, bekam %d", rec.Code)
	}
	var history []api.HistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("Historie nicht parsbar: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Historie ohne Datenbank sollte leer sein, bekam %d Eintraege", len(history))
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /history ohne Datenbank sollte 200 liefern, bekam %d", rec.Code)
	}
	var cleared api.ClearResponse
	json.Unmarshal(rec.Body.Bytes(), &cleared)
	if cleared.DeletedCount != 0 {
		t.Errorf("deleted_count ohne Datenbank sollte 0 sein, bekam %d", cleared.DeletedCount)
	}

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats ohne Datenbank sollte 200 liefern, bekam %d", rec.Code)
	}
	var stats api.StatsResponse
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.TotalPredictions != 0 {
		t.Errorf("Statistik ohne Datenbank sollte leer sein, bekam %+v", stats)
	}
}

func TestStatsEndpunkt(t *testing.T) {
	s := newTestServer(t)

	body, contentType := pngUpload(t, "blume.png", nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	doRequest(s, req)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d", rec.Code)
	}

	var stats api.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Statistik nicht parsbar: %v", err)
	}
	if stats.TotalPredictions != 1 || stats.AvgConfidence == nil {
		t.Errorf("unerwartete Statistik: %+v", stats)
	}
}

func TestMetricsEndpunkt(t *testing.T) {
	s := newTestServer(t)

	body, contentType := pngUpload(t, "blume.png", nil)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	doRequest(s, req)

	// Fehler-Zaehler erscheint erst nach dem ersten Inkrement
	doRequest(s, httptest.NewRequest(http.MethodPost, "/predict", nil))

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("erwartete 200, bekam %d", rec.Code)
	}
	metricsBody := rec.Body.String()
	for _, name := range []string{
		"prediction_requests_total",
		"prediction_errors_total",
		"prediction_processing_time_ms",
	} {
		if !strings.Contains(metricsBody, name) {
			t.Errorf("Metrik %s fehlt in der Ausgabe", name)
		}
	}
}

func TestRequestIDFrischProAnfrage(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-vorgabe-42")

	rec := doRequest(s, req)
	got := rec.Header().Get("X-Request-ID")
	if got == "" {
		t.Fatal("Antwort sollte eine X-Request-ID tragen")
	}
	if got == "client-vorgabe-42" {
		t.Errorf("eingehende X-Request-ID darf nicht uebernommen werden, bekam %q", got)
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("X-Request-ID sollte eine UUID sein, bekam %q: %v", got, err)
	}

	rec2 := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec2.Header().Get("X-Request-ID") == got {
		t.Error("zwei Anfragen sollten unterschiedliche Request-IDs bekommen")
	}
}

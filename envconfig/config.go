// config.go - Haupt-Konfigurationsfunktionen fuer den Classifier-Server
//
// Dieses Modul enthaelt:
// - Host: Gibt die Bind-Adresse zurueck (CLASSIFIER_HOST)
// - ModelPath: Pfad zur Checkpoint-Datei (CLASSIFIER_MODEL)
// - LabelsPath: Pfad zur Label-Datei (CLASSIFIER_LABELS)
// - InputSize: Raeumliche Eingabegroesse "H,W" (CLASSIFIER_INPUT_SIZE)
// - Database: SQLite-DSN fuer die History (CLASSIFIER_DB)
// - AllowedOrigins: Erlaubte CORS-Origins (CLASSIFIER_ORIGINS)
// - LogLevel: Log-Level aus Debug-Flag (CLASSIFIER_DEBUG)
//
// Utility-Funktionen und AsMap/Values sind in config_utils.go ausgelagert.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
)

// Host gibt die Bind-Adresse des HTTP-Servers zurueck
// Konfigurierbar via CLASSIFIER_HOST ("host:port" oder nur Port)
// Default: 0.0.0.0:8000
func Host() string {
	defaultHost, defaultPort := "0.0.0.0", "8000"

	s := Var("CLASSIFIER_HOST")
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	// Nackte Portnummer erlauben ("8000" wie im PORT-Env der Vorgaenger)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil && n > 0 && n <= 65535 {
		return net.JoinHostPort(defaultHost, s)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return net.JoinHostPort(host, port)
}

// ModelPath gibt den Pfad zur Checkpoint-Datei zurueck
// Konfigurierbar via CLASSIFIER_MODEL
func ModelPath() string {
	if s := Var("CLASSIFIER_MODEL"); s != "" {
		return s
	}
	return "./models/model.pt"
}

// LabelsPath gibt den Pfad zur Klassen-Label-Datei zurueck
// Konfigurierbar via CLASSIFIER_LABELS
func LabelsPath() string {
	if s := Var("CLASSIFIER_LABELS"); s != "" {
		return s
	}
	return "./models/class_labels.json"
}

// InputSize gibt die raeumliche Eingabegroesse (H, W) zurueck
// Konfigurierbar via CLASSIFIER_INPUT_SIZE im Format "H,W"
// Default: 224,224 (uebliche Groesse fuer ImageNet-Netze)
func InputSize() (int, int) {
	const defaultSize = 224

	s := Var("CLASSIFIER_INPUT_SIZE")
	if s == "" {
		return defaultSize, defaultSize
	}

	hs, ws, ok := strings.Cut(s, ",")
	if !ok {
		ws = hs
	}

	h, errH := strconv.Atoi(strings.TrimSpace(hs))
	w, errW := strconv.Atoi(strings.TrimSpace(ws))
	if errH != nil || errW != nil || h <= 0 || w <= 0 {
		slog.Warn("invalid input size, using default", "value", s, "default", defaultSize)
		return defaultSize, defaultSize
	}

	return h, w
}

// InputSizeString gibt die Eingabegroesse als "H,W" zurueck (fuer /info und Logs)
func InputSizeString() string {
	h, w := InputSize()
	return fmt.Sprintf("%d,%d", h, w)
}

// Database gibt den SQLite-DSN der Prediction-History zurueck
// Konfigurierbar via CLASSIFIER_DB
func Database() string {
	if s := Var("CLASSIFIER_DB"); s != "" {
		return s
	}
	return "./data/predictions.db"
}

// AllowedOrigins gibt erlaubte CORS-Origins zurueck
// Konfigurierbar via CLASSIFIER_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("CLASSIFIER_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	// Standard-Origins fuer localhost
	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// LogLevel gibt das Log-Level zurueck
// CLASSIFIER_DEBUG=1 aktiviert Debug-Logging
func LogLevel() slog.Level {
	if Debug() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// logutil.go - Strukturiertes JSON-Logging fuer den Classifier-Server
// Enthaelt: NewLogger - erstellt einen slog.Logger mit JSON-Handler
//
// Alle Log-Zeilen gehen als JSON raus, damit Loki/Promtail sie direkt
// indizieren kann. Request-bezogene Felder (request_id, image_filename,
// prediction, confidence) werden von den Handlern als Attribute angehaengt.
package logutil

import (
	"io"
	"log/slog"
	"path/filepath"
)

// NewLogger erstellt einen JSON-Logger mit dem angegebenen Level.
// Source-Pfade werden auf den Dateinamen gekuerzt, damit die Log-Zeilen
// kompakt bleiben.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Var: Roh-Getter fuer Environment-Variablen
// - Bool/String: Getter-Fabriken
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Var liest eine Environment-Variable und entfernt Quotes/Whitespace
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

var (
	// Debug aktiviert Debug-Logging und den gin-Debug-Modus
	Debug = Bool("CLASSIFIER_DEBUG")

	// Accelerator ueberschreibt die automatische Backend-Erkennung
	// Gueltige Werte: "cpu", "cuda", "metal"
	Accelerator = String("CLASSIFIER_ACCELERATOR")
)

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CLASSIFIER_DEBUG":       {"CLASSIFIER_DEBUG", Debug(), "Show additional debug information (e.g. CLASSIFIER_DEBUG=1)"},
		"CLASSIFIER_HOST":        {"CLASSIFIER_HOST", Host(), "Bind address for the classifier server (default 0.0.0.0:8000)"},
		"CLASSIFIER_MODEL":       {"CLASSIFIER_MODEL", ModelPath(), "Path to the model checkpoint file"},
		"CLASSIFIER_LABELS":      {"CLASSIFIER_LABELS", LabelsPath(), "Path to the class label JSON file"},
		"CLASSIFIER_INPUT_SIZE":  {"CLASSIFIER_INPUT_SIZE", InputSizeString(), "Model input size as \"H,W\" (default \"224,224\")"},
		"CLASSIFIER_DB":          {"CLASSIFIER_DB", Database(), "SQLite DSN for the prediction history"},
		"CLASSIFIER_ACCELERATOR": {"CLASSIFIER_ACCELERATOR", Accelerator(), "Override compute backend detection (cpu, cuda, metal)"},
		"CLASSIFIER_ORIGINS":     {"CLASSIFIER_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// MODUL: backend
// ZWECK: Abstraktion fuer Compute-Backends (CPU/CUDA/Metal)
// INPUT: Optionaler Override-String aus der Konfiguration
// OUTPUT: Backend-Typ, Verfuegbarkeit
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen (nur stdlib)
// HINWEISE: Erkennung in detect.go; das gewaehlte Backend ist ein Label,
//           die Forward-Passes selbst laufen in-process

package backend

// ============================================================================
// Backend-Typ Definition
// ============================================================================

// Backend repraesentiert ein verfuegbares Compute-Backend.
type Backend string

// Verfuegbare Backend-Typen
const (
	BackendCPU   Backend = "cpu"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// SelectionPriority definiert Praeferenzreihenfolge fuer Backend-Auswahl.
type SelectionPriority []Backend

// DefaultPriority gibt die Standard-Praeferenzreihenfolge zurueck.
// Beschleuniger werden der CPU vorgezogen.
func DefaultPriority() SelectionPriority {
	return SelectionPriority{BackendCUDA, BackendMetal, BackendCPU}
}

// ============================================================================
// Detection Interface
// ============================================================================

// Detector ist das Interface fuer Backend-Erkennung.
// Implementierungen: cpuDetector, cudaDetector, metalDetector
type Detector interface {
	// Detect prueft ob das Backend verfuegbar ist
	Detect() bool

	// Backend gibt den Backend-Typ zurueck
	Backend() Backend
}

// registeredDetectors haelt alle registrierten Backend-Detektoren.
var registeredDetectors = map[Backend]Detector{
	BackendCPU:   &cpuDetector{},
	BackendCUDA:  &cudaDetector{},
	BackendMetal: &metalDetector{},
}

// DetectBackends erkennt alle verfuegbaren Backends.
// CPU ist immer verfuegbar.
func DetectBackends() []Backend {
	available := []Backend{BackendCPU}

	if d := registeredDetectors[BackendCUDA]; d.Detect() {
		available = append(available, BackendCUDA)
	}
	if d := registeredDetectors[BackendMetal]; d.Detect() {
		available = append(available, BackendMetal)
	}

	return available
}

// Select waehlt das Backend: expliziter Override gewinnt, sonst das erste
// verfuegbare Backend in Prioritaetsreihenfolge.
func Select(override string) Backend {
	if override != "" {
		b := Backend(override)
		if d, ok := registeredDetectors[b]; ok && (b == BackendCPU || d.Detect()) {
			return b
		}
		// Unbekannter oder nicht verfuegbarer Override faellt auf Auswahl zurueck
	}

	available := DetectBackends()
	for _, want := range DefaultPriority() {
		for _, have := range available {
			if want == have {
				return want
			}
		}
	}

	return BackendCPU
}

// String implementiert Stringer Interface
func (b Backend) String() string {
	return string(b)
}

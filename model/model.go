// MODUL: model
// ZWECK: Laden des Klassifikationsmodells und Verwaltung des Laufzeitzustands
// INPUT: Checkpoint-Pfad, erwartete Klassenanzahl aus den Labels
// OUTPUT: Einsatzbereites Model fuer die Inferenz
// NEBENEFFEKTE: Dateisystem-Lesezugriff, Logging
// ABHAENGIGKEITEN: backend (intern), envconfig (intern)
// HINWEISE: Ein Fehler wird nur bei unlesbarer Checkpoint-Datei gemeldet.
//           Nicht erkennbare Checkpoint-Formen degradieren zu initialisierten
//           Gewichten mit Warnung im Log.

package model

import (
	"fmt"
	"log/slog"

	"github.com/makodaa/docker-classification-model/backend"
	"github.com/makodaa/docker-classification-model/envconfig"
)

// DefaultNumClasses greift, wenn weder Labels noch Checkpoint eine
// Klassenanzahl hergeben (ImageNet-Konvention)
const DefaultNumClasses = 1000

// Model buendelt Netz, Geraet und Lade-Metadaten
type Model struct {
	net    *Network
	Path   string
	Device backend.Backend
	Kind   CheckpointKind

	// WeightsLoaded zeigt an, ob Gewichte aus dem Checkpoint uebernommen
	// wurden (false bei unerkanntem Format: rein initialisierte Gewichte)
	WeightsLoaded bool
	// Matched/Skipped zaehlen die Tensoren beim namensbasierten Kopieren
	Matched int
	Skipped int
}

// Load liest den Checkpoint und baut das Modell auf.
//
// classHint gibt die aus den Labels bekannte Klassenanzahl vor; bei
// classHint <= 0 wird die Anzahl aus der finalen Klassifikations-Schicht
// des Checkpoints abgeleitet, ersatzweise DefaultNumClasses.
func Load(path string, classHint int) (*Model, error) {
	ckpt, err := ReadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("modell laden: %w", err)
	}

	// Die Checkpoint-Architektur hat Vorrang: Labels bestimmen nur die
	// Anzeige, nicht die Netzform. Abweichungen werden einmalig gemeldet.
	numClasses := 0
	if n, ok := InferNumClasses(ckpt.Weights); ok {
		numClasses = n
		slog.Info("klassenanzahl aus checkpoint abgeleitet", "num_classes", n)
		if classHint > 0 && classHint != n {
			slog.Warn("labelanzahl weicht vom checkpoint ab",
				"labels", classHint, "checkpoint", n)
		}
	}
	if numClasses <= 0 {
		numClasses = classHint
	}
	if numClasses <= 0 {
		numClasses = DefaultNumClasses
		slog.Warn("klassenanzahl nicht ermittelbar, nutze standard", "num_classes", numClasses)
	}

	m := &Model{
		net:    NewNetwork(numClasses),
		Path:   path,
		Device: backend.Select(envconfig.Accelerator()),
		Kind:   ckpt.Kind,
	}

	if ckpt.Kind == CheckpointUnrecognized {
		slog.Warn("checkpoint-format nicht erkannt, modell startet mit initialisierten gewichten", "path", path)
		return m, nil
	}

	m.applyWeights(ckpt.Weights)
	slog.Info("modell geladen",
		"path", path,
		"kind", ckpt.Kind.String(),
		"device", m.Device,
		"num_classes", numClasses,
		"tensors_matched", m.Matched,
		"tensors_skipped", m.Skipped)
	return m, nil
}

// applyWeights uebernimmt Checkpoint-Tensoren namens- und formbasiert.
// Tensoren ohne passendes Ziel oder mit abweichender Form werden
// uebersprungen und gezaehlt, nicht als Fehler behandelt.
func (m *Model) applyWeights(sd StateDict) {
	params := m.net.Params()

	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		name, w := pair.Key, pair.Value

		target, ok := params[name]
		if !ok {
			m.Skipped++
			continue
		}
		if !sameShape(target.Shape, w.Shape) {
			slog.Warn("tensor-form passt nicht, behalte initialisierte gewichte",
				"tensor", name, "checkpoint", w.Shape, "modell", target.Shape)
			m.Skipped++
			continue
		}
		copy(target.Data, w.Data)
		m.Matched++
	}

	m.WeightsLoaded = m.Matched > 0
	if !m.WeightsLoaded {
		slog.Warn("kein tensor aus dem checkpoint uebernommen", "path", m.Path)
	}
}

// sameShape vergleicht zwei Tensor-Formen
func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NumClasses gibt die Anzahl der Ausgabeklassen zurueck
func (m *Model) NumClasses() int {
	return m.net.NumClasses()
}

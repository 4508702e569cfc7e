// MODUL: predict
// ZWECK: Inferenz auf vorverarbeiteten Bildtensoren mit Top-k-Auswahl
// INPUT: Vorverarbeiteter CHW-Tensor, gewuenschte Anzahl Ergebnisse
// OUTPUT: Klassen-Indizes mit Softmax-Konfidenzen, absteigend sortiert
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: gonum (extern), vision (intern)
// HINWEISE: Panics im Vorwaertslauf werden abgefangen und als Fehler
//           gemeldet, damit ein defekter Checkpoint den Server nicht reisst.

package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/makodaa/docker-classification-model/vision"
)

// Prediction ist ein einzelnes Klassifikationsergebnis
type Prediction struct {
	Class      int
	Confidence float64
}

// Predict fuehrt den Vorwaertslauf aus und liefert die topK
// wahrscheinlichsten Klassen. topK wird auf [1, NumClasses] begrenzt.
func (m *Model) Predict(input *vision.Tensor, topK int) (result []Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("inferenz fehlgeschlagen: %v", r)
		}
	}()

	if input.Shape[1] != 3 {
		return nil, fmt.Errorf("inferenz erwartet 3 kanaele, bekam %d", input.Shape[1])
	}

	heads := m.net.Forward(input.Data, input.Shape[1], input.Shape[2], input.Shape[3])
	if len(heads) == 0 || len(heads[0]) == 0 {
		return nil, fmt.Errorf("inferenz lieferte keine logits")
	}
	// Bei mehreren Ausgabe-Koepfen zaehlt der erste
	logits := heads[0]

	probs := softmax(logits)

	if topK < 1 {
		topK = 1
	}
	if topK > len(probs) {
		topK = len(probs)
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	// Absteigend nach Konfidenz, bei Gleichstand gewinnt der kleinere Index
	sort.SliceStable(idx, func(a, b int) bool {
		if probs[idx[a]] != probs[idx[b]] {
			return probs[idx[a]] > probs[idx[b]]
		}
		return idx[a] < idx[b]
	})

	result = make([]Prediction, topK)
	for i := 0; i < topK; i++ {
		result[i] = Prediction{Class: idx[i], Confidence: probs[idx[i]]}
	}
	return result, nil
}

// softmax rechnet Logits in eine Wahrscheinlichkeitsverteilung um,
// numerisch stabilisiert durch Verschiebung um das Maximum
func softmax(logits []float32) []float64 {
	x := make([]float64, len(logits))
	for i, v := range logits {
		x[i] = float64(v)
	}

	shift := floats.Max(x)
	for i := range x {
		x[i] = math.Exp(x[i] - shift)
	}
	floats.Scale(1/floats.Sum(x), x)
	return x
}

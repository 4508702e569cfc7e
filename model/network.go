// MODUL: network
// ZWECK: Kompaktes Faltungsnetz fuer Bildklassifikation (reine Go-Inferenz)
// INPUT: Normalisierter CHW-Tensor aus der Vorverarbeitung
// OUTPUT: Logits pro Klasse
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: Keine externen
// HINWEISE: Parameter-Namen folgen der PyTorch-Konvention
//           (features.N / classifier.N), damit Checkpoints namensbasiert
//           geladen werden koennen. Dropout entfaellt bei Inferenz.

package model

import (
	"math"
	"math/rand"
)

// ============================================================================
// Schichten
// ============================================================================

// conv2d ist eine Faltungsschicht mit quadratischem Kernel
type conv2d struct {
	weight *Weight // [outC, inC, k, k]
	bias   *Weight // [outC]
	inC    int
	outC   int
	k      int
	stride int
	pad    int
}

// linear ist eine vollverbundene Schicht
type linear struct {
	weight *Weight // [out, in]
	bias   *Weight // [out]
	in     int
	out    int
}

// Network ist das Klassifikationsnetz:
// drei Faltungsbloecke mit ReLU, Global Average Pooling, zwei Linear-Schichten
type Network struct {
	convs      [3]conv2d
	fc1        linear
	fc2        linear
	numClasses int
}

// netSeed sorgt fuer deterministische Initialisierung ueber Prozesse hinweg
const netSeed = 7

// NewNetwork baut das Netz mit numClasses Ausgabeklassen und
// deterministisch initialisierten Gewichten
func NewNetwork(numClasses int) *Network {
	rng := rand.New(rand.NewSource(netSeed))

	n := &Network{numClasses: numClasses}
	n.convs[0] = newConv2d(rng, 3, 16)
	n.convs[1] = newConv2d(rng, 16, 32)
	n.convs[2] = newConv2d(rng, 32, 64)
	n.fc1 = newLinear(rng, 64, 128)
	n.fc2 = newLinear(rng, 128, numClasses)
	return n
}

// newConv2d initialisiert eine 3x3-Faltung mit Stride 2 und Padding 1
// (Kaiming-Uniform wie PyTorch-Default)
func newConv2d(rng *rand.Rand, inC, outC int) conv2d {
	c := conv2d{inC: inC, outC: outC, k: 3, stride: 2, pad: 1}
	fanIn := inC * c.k * c.k
	c.weight = initUniform(rng, []int{outC, inC, c.k, c.k}, fanIn)
	c.bias = initUniform(rng, []int{outC}, fanIn)
	return c
}

// newLinear initialisiert eine Linear-Schicht
func newLinear(rng *rand.Rand, in, out int) linear {
	l := linear{in: in, out: out}
	l.weight = initUniform(rng, []int{out, in}, in)
	l.bias = initUniform(rng, []int{out}, in)
	return l
}

// initUniform zieht Gewichte gleichverteilt aus [-1/sqrt(fanIn), 1/sqrt(fanIn)]
func initUniform(rng *rand.Rand, shape []int, fanIn int) *Weight {
	w := &Weight{Shape: shape}
	bound := 1.0 / math.Sqrt(float64(fanIn))
	w.Data = make([]float32, w.Numel())
	for i := range w.Data {
		w.Data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return w
}

// ============================================================================
// Parameter-Zugriff
// ============================================================================

// Params liefert alle Parameter unter ihren PyTorch-Namen.
// features enthaelt Conv/ReLU-Paare (Indizes 0, 2, 4), classifier
// Linear/ReLU/Dropout/Linear (Indizes 0 und 3).
func (n *Network) Params() map[string]*Weight {
	return map[string]*Weight{
		"features.0.weight":   n.convs[0].weight,
		"features.0.bias":     n.convs[0].bias,
		"features.2.weight":   n.convs[1].weight,
		"features.2.bias":     n.convs[1].bias,
		"features.4.weight":   n.convs[2].weight,
		"features.4.bias":     n.convs[2].bias,
		"classifier.0.weight": n.fc1.weight,
		"classifier.0.bias":   n.fc1.bias,
		"classifier.3.weight": n.fc2.weight,
		"classifier.3.bias":   n.fc2.bias,
	}
}

// NumClasses gibt die Anzahl der Ausgabeklassen zurueck
func (n *Network) NumClasses() int {
	return n.numClasses
}

// ResizeClassifier ersetzt die finale Linear-Schicht durch eine neu
// initialisierte mit numClasses Ausgaengen. Die Eingangsbreite bleibt
// erhalten, damit geladene Gewichte der uebrigen Schichten gueltig bleiben.
func (n *Network) ResizeClassifier(numClasses int) {
	rng := rand.New(rand.NewSource(netSeed + 1))
	n.fc2 = newLinear(rng, n.fc1.out, numClasses)
	n.numClasses = numClasses
}

// ============================================================================
// Vorwaertslauf
// ============================================================================

// Forward berechnet die Logits fuer einen CHW-Eingabetensor.
// Rueckgabe ist eine Liste von Ausgabe-Koepfen; der erste enthaelt die
// Klassifikations-Logits.
func (n *Network) Forward(data []float32, channels, height, width int) [][]float32 {
	x, c, h, w := data, channels, height, width

	for i := range n.convs {
		x, c, h, w = n.convs[i].apply(x, c, h, w)
		reluInPlace(x)
	}

	pooled := globalAvgPool(x, c, h, w)
	hidden := n.fc1.apply(pooled)
	reluInPlace(hidden)
	logits := n.fc2.apply(hidden)

	return [][]float32{logits}
}

// apply fuehrt die Faltung aus und liefert Ausgabe samt neuer Dimensionen
func (c *conv2d) apply(in []float32, inC, inH, inW int) ([]float32, int, int, int) {
	outH := (inH+2*c.pad-c.k)/c.stride + 1
	outW := (inW+2*c.pad-c.k)/c.stride + 1
	out := make([]float32, c.outC*outH*outW)

	for oc := 0; oc < c.outC; oc++ {
		bias := c.bias.Data[oc]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				sum := bias
				for ic := 0; ic < inC; ic++ {
					wBase := ((oc*c.inC+ic)*c.k + 0) * c.k
					inBase := ic * inH * inW
					for ky := 0; ky < c.k; ky++ {
						iy := oy*c.stride - c.pad + ky
						if iy < 0 || iy >= inH {
							continue
						}
						row := inBase + iy*inW
						wRow := wBase + ky*c.k
						for kx := 0; kx < c.k; kx++ {
							ix := ox*c.stride - c.pad + kx
							if ix < 0 || ix >= inW {
								continue
							}
							sum += c.weight.Data[wRow+kx] * in[row+ix]
						}
					}
				}
				out[(oc*outH+oy)*outW+ox] = sum
			}
		}
	}
	return out, c.outC, outH, outW
}

// apply fuehrt die Linear-Transformation aus
func (l *linear) apply(in []float32) []float32 {
	out := make([]float32, l.out)
	for o := 0; o < l.out; o++ {
		sum := l.bias.Data[o]
		row := o * l.in
		for i := 0; i < l.in; i++ {
			sum += l.weight.Data[row+i] * in[i]
		}
		out[o] = sum
	}
	return out
}

// reluInPlace setzt negative Werte auf Null
func reluInPlace(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// globalAvgPool mittelt jede Feature-Map zu einem Skalar
func globalAvgPool(x []float32, c, h, w int) []float32 {
	out := make([]float32, c)
	area := float32(h * w)
	for ch := 0; ch < c; ch++ {
		var sum float32
		base := ch * h * w
		for i := 0; i < h*w; i++ {
			sum += x[base+i]
		}
		out[ch] = sum / area
	}
	return out
}

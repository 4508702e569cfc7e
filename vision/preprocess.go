// MODUL: preprocess
// ZWECK: Vollstaendige Preprocessing-Pipeline vom Upload zum Modell-Input
// INPUT: Bild-Bytes, Zielgroesse (H, W)
// OUTPUT: Tensor [1, 3, H, W], normalisiert mit ImageNet mean/std
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: formats.go, image.go, normalize.go
// HINWEISE: Pipeline ist deterministisch - gleiche Bytes und gleiche
//           Zielgroesse ergeben bit-identische Tensors

package vision

import (
	"errors"
	"fmt"
)

// ErrPreprocess kennzeichnet alle Fehler der Preprocessing-Pipeline.
// Der HTTP-Layer unterscheidet darueber Client-Fehler von Inference-Fehlern.
var ErrPreprocess = errors.New("preprocess")

// Tensor ist ein float32-Tensor im NCHW Layout.
// Device ist ein Label des Compute-Backends, auf dem der Tensor "liegt" -
// die Berechnung selbst laeuft in-process.
type Tensor struct {
	Data   []float32
	Shape  [4]int // [N, C, H, W]
	Device string
}

// To bewegt den Tensor auf das angegebene Geraet (Label-Semantik)
func (t *Tensor) To(device string) *Tensor {
	t.Device = device
	return t
}

// Numel gibt die Anzahl der Elemente zurueck
func (t *Tensor) Numel() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// Preprocess fuehrt die volle Pipeline aus:
// 1. Format pruefen und dekodieren (Konvertierung zu RGB via RGBA+Composite)
// 2. Skalieren, so dass die Zielflaeche abgedeckt ist
// 3. CenterCrop auf exakt (H, W)
// 4. float32 [0,1], CHW Layout, ImageNet-Normalisierung
// 5. Batch-Dimension 1 voranstellen
func Preprocess(data []byte, targetH, targetW int) (*Tensor, error) {
	img, err := LoadImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocess, err)
	}

	// Alpha-Kanal entfernen, damit exakt 3 Kanaele vorliegen
	img = Composite(img)

	resized, err := ResizeToCover(img, targetW, targetH)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocess, err)
	}

	cropped, err := CenterCrop(resized, targetW, targetH)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreprocess, err)
	}

	chw := NormalizeRGB(cropped, ImageNetMean, ImageNetStd)

	return &Tensor{
		Data:  chw,
		Shape: [4]int{1, 3, targetH, targetW},
	}, nil
}

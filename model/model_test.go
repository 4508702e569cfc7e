package model

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/makodaa/docker-classification-model/vision"
)

func testTensor(h, w int) *vision.Tensor {
	return &vision.Tensor{
		Data:  make([]float32, 3*h*w),
		Shape: [4]int{1, 3, h, w},
	}
}

func TestNewNetworkDeterministisch(t *testing.T) {
	a := NewNetwork(10)
	b := NewNetwork(10)

	wa := a.Params()["classifier.3.weight"]
	wb := b.Params()["classifier.3.weight"]
	for i := range wa.Data {
		if wa.Data[i] != wb.Data[i] {
			t.Fatalf("Initialisierung nicht deterministisch an Index %d: %v != %v", i, wa.Data[i], wb.Data[i])
		}
	}
}

func TestForwardLogitsLaenge(t *testing.T) {
	n := NewNetwork(7)
	in := testTensor(32, 32)

	heads := n.Forward(in.Data, 3, 32, 32)
	if len(heads) != 1 {
		t.Fatalf("erwartete einen Ausgabe-Kopf, bekam %d", len(heads))
	}
	if len(heads[0]) != 7 {
		t.Errorf("erwartete 7 Logits, bekam %d", len(heads[0]))
	}
}

func TestResizeClassifier(t *testing.T) {
	n := NewNetwork(10)
	n.ResizeClassifier(3)

	if n.NumClasses() != 3 {
		t.Errorf("erwartete 3 Klassen nach Resize, bekam %d", n.NumClasses())
	}
	heads := n.Forward(testTensor(32, 32).Data, 3, 32, 32)
	if len(heads[0]) != 3 {
		t.Errorf("erwartete 3 Logits nach Resize, bekam %d", len(heads[0]))
	}
}

func TestPredictTopKBegrenzung(t *testing.T) {
	m := &Model{net: NewNetwork(5)}

	preds, err := m.Predict(testTensor(32, 32), 0)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	if len(preds) != 1 {
		t.Errorf("topK=0 sollte auf 1 begrenzt werden, bekam %d Ergebnisse", len(preds))
	}

	preds, err = m.Predict(testTensor(32, 32), 999)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	if len(preds) != 5 {
		t.Errorf("topK=999 sollte auf 5 begrenzt werden, bekam %d Ergebnisse", len(preds))
	}
}

func TestPredictSortierungUndSumme(t *testing.T) {
	m := &Model{net: NewNetwork(8)}

	preds, err := m.Predict(testTensor(32, 32), 8)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}

	var sum float64
	for i, p := range preds {
		sum += p.Confidence
		if i > 0 && preds[i-1].Confidence < p.Confidence {
			t.Errorf("Konfidenzen nicht absteigend sortiert an Position %d", i)
		}
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("Softmax-Summe sollte 1 sein, bekam %v", sum)
	}
}

func TestPredictGleichstandKleinererIndex(t *testing.T) {
	m := &Model{net: NewNetwork(6)}

	// Finale Schicht nullen: alle Logits gleich, reine Gleichstand-Situation
	params := m.net.Params()
	for i := range params["classifier.3.weight"].Data {
		params["classifier.3.weight"].Data[i] = 0
	}
	for i := range params["classifier.3.bias"].Data {
		params["classifier.3.bias"].Data[i] = 0
	}

	preds, err := m.Predict(testTensor(32, 32), 3)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	for i, p := range preds {
		if p.Class != i {
			t.Errorf("bei Gleichstand erwartete Klasse %d an Position %d, bekam %d", i, i, p.Class)
		}
	}
}

func TestInferNumClasses(t *testing.T) {
	sd := orderedmap.New[string, *Weight]()
	sd.Set("features.0.weight", &Weight{Shape: []int{16, 3, 3, 3}})
	sd.Set("classifier.0.weight", &Weight{Shape: []int{128, 64}})
	sd.Set("classifier.3.weight", &Weight{Shape: []int{7, 128}})

	n, ok := InferNumClasses(sd)
	if !ok {
		t.Fatal("Klassenanzahl sollte ableitbar sein")
	}
	if n != 7 {
		t.Errorf("erwartete 7 Klassen aus der finalen Schicht, bekam %d", n)
	}
}

func TestInferNumClassesOhneClassifier(t *testing.T) {
	sd := orderedmap.New[string, *Weight]()
	sd.Set("features.0.weight", &Weight{Shape: []int{16, 3, 3, 3}})

	if _, ok := InferNumClasses(sd); ok {
		t.Error("ohne classifier-Schicht darf keine Klassenanzahl abgeleitet werden")
	}
}

func TestClassifierLayerIndex(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"classifier.3.weight", 3},
		{"classifier.0.weight", 0},
		{"classifier.weight", 0},
		{"module.classifier.12.weight", 12},
	}
	for _, c := range cases {
		if got := classifierLayerIndex(c.name); got != c.want {
			t.Errorf("%s: erwartete Index %d, bekam %d", c.name, c.want, got)
		}
	}
}

func TestApplyWeightsTolerant(t *testing.T) {
	m := &Model{net: NewNetwork(4)}

	sd := orderedmap.New[string, *Weight]()
	good := &Weight{Shape: []int{16}, Data: make([]float32, 16)}
	for i := range good.Data {
		good.Data[i] = 0.5
	}
	sd.Set("features.0.bias", good)
	sd.Set("classifier.3.weight", &Weight{Shape: []int{99, 128}, Data: make([]float32, 99*128)})
	sd.Set("unbekannter.tensor", &Weight{Shape: []int{2}, Data: []float32{1, 2}})

	m.applyWeights(sd)

	if m.Matched != 1 {
		t.Errorf("erwartete 1 uebernommenen Tensor, bekam %d", m.Matched)
	}
	if m.Skipped != 2 {
		t.Errorf("erwartete 2 uebersprungene Tensoren, bekam %d", m.Skipped)
	}
	if got := m.net.Params()["features.0.bias"].Data[0]; got != 0.5 {
		t.Errorf("Bias nicht uebernommen: %v", got)
	}
}

func writeSafetensors(t *testing.T, dir string) string {
	t.Helper()

	header := map[string]any{
		"klein": map[string]any{
			"dtype":        "F32",
			"shape":        []int{2, 3},
			"data_offsets": []int{0, 24},
		},
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("Header nicht serialisierbar: %v", err)
	}

	buf := make([]byte, 8, 8+len(hdr)+24)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	buf = append(buf, hdr...)
	for i := 0; i < 6; i++ {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(i)+0.25))
		buf = append(buf, b[:]...)
	}

	path := filepath.Join(dir, "model.safetensors")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("Testdatei nicht schreibbar: %v", err)
	}
	return path
}

func TestReadCheckpointSafetensors(t *testing.T) {
	path := writeSafetensors(t, t.TempDir())

	ckpt, err := ReadCheckpoint(path)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	if ckpt.Kind != CheckpointStateDict {
		t.Fatalf("erwartete Kind state_dict, bekam %s", ckpt.Kind)
	}

	w, ok := ckpt.Weights.Get("klein")
	if !ok {
		t.Fatal("Tensor 'klein' fehlt im State-Dict")
	}
	if len(w.Shape) != 2 || w.Shape[0] != 2 || w.Shape[1] != 3 {
		t.Errorf("falsche Form: %v", w.Shape)
	}
	if w.Data[0] != 0.25 || w.Data[5] != 5.25 {
		t.Errorf("falsche Werte: %v", w.Data)
	}
}

func TestReadCheckpointFehlendeDatei(t *testing.T) {
	_, err := ReadCheckpoint(filepath.Join(t.TempDir(), "gibt-es-nicht.pt"))
	if err == nil {
		t.Fatal("fehlende Datei muss einen Fehler liefern")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("erwartete os.ErrNotExist, bekam %v", err)
	}
}

func TestReadCheckpointUnbekanntesFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaputt.pt")
	if err := os.WriteFile(path, []byte("kein checkpoint"), 0o644); err != nil {
		t.Fatalf("Testdatei nicht schreibbar: %v", err)
	}

	ckpt, err := ReadCheckpoint(path)
	if err != nil {
		t.Fatalf("unbekanntes Format darf kein Fehler sein: %v", err)
	}
	if ckpt.Kind != CheckpointUnrecognized {
		t.Errorf("erwartete Kind unrecognized, bekam %s", ckpt.Kind)
	}
}

func TestLoadCheckpointArchitekturHatVorrang(t *testing.T) {
	// Checkpoint mit finaler classifier-Schicht fuer 7 Klassen,
	// Labels melden aber nur 3
	numel := 7 * 128
	header := map[string]any{
		"classifier.3.weight": map[string]any{
			"dtype":        "F32",
			"shape":        []int{7, 128},
			"data_offsets": []int{0, numel * 4},
		},
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("Header nicht serialisierbar: %v", err)
	}

	buf := make([]byte, 8, 8+len(hdr)+numel*4)
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	buf = append(buf, hdr...)
	buf = append(buf, make([]byte, numel*4)...)

	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("Testdatei nicht schreibbar: %v", err)
	}

	m, err := Load(path, 3)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	if m.NumClasses() != 7 {
		t.Errorf("Checkpoint-Architektur sollte gewinnen, bekam %d Klassen", m.NumClasses())
	}
	if !m.WeightsLoaded || m.Matched != 1 {
		t.Errorf("classifier-Gewichte sollten uebernommen werden: matched=%d", m.Matched)
	}
}

func TestLoadDegradiertBeiUnbekanntemFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaputt.pt")
	if err := os.WriteFile(path, []byte("kein checkpoint"), 0o644); err != nil {
		t.Fatalf("Testdatei nicht schreibbar: %v", err)
	}

	m, err := Load(path, 5)
	if err != nil {
		t.Fatalf("unerwarteter Fehler: %v", err)
	}
	if m.WeightsLoaded {
		t.Error("bei unbekanntem Format duerfen keine Gewichte als geladen gelten")
	}
	if m.NumClasses() != 5 {
		t.Errorf("erwartete 5 Klassen aus dem Hint, bekam %d", m.NumClasses())
	}
}

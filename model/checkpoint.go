// MODUL: checkpoint
// ZWECK: Laden und Normalisieren von Modell-Checkpoints
// INPUT: Checkpoint-Datei (PyTorch-Pickle oder safetensors)
// OUTPUT: Checkpoint mit normalisiertem State-Dict (Name -> Gewichts-Tensor)
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: nlpodyssey/gopickle (extern), x448/float16 (extern),
//                  d4l3k/go-bfloat16 (extern), wk8/go-ordered-map (extern)
// HINWEISE: Format-Erkennung via Magic-Bytes. Nicht erkennbare Formate sind
//           kein Fehler - der Loader faehrt dann mit initialisierten
//           Gewichten fort (Kind = CheckpointUnrecognized).

package model

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/x448/float16"
)

// ============================================================================
// Datentypen
// ============================================================================

// Weight ist ein einzelner Gewichts-Tensor in float32
type Weight struct {
	Shape []int
	Data  []float32
}

// Numel gibt die Anzahl der Elemente laut Shape zurueck
func (w *Weight) Numel() int {
	n := 1
	for _, d := range w.Shape {
		n *= d
	}
	return n
}

// StateDict ist die normalisierte Abbildung Tensor-Name -> Gewicht.
// Die Reihenfolge entspricht der Datei-Reihenfolge, soweit das Container-
// Format eine liefert (sonst alphabetisch sortiert).
type StateDict = *orderedmap.OrderedMap[string, *Weight]

// CheckpointKind beschreibt die erkannte Checkpoint-Form
type CheckpointKind int

const (
	// CheckpointStateDict: flaches Mapping Tensor-Name -> Tensor
	CheckpointStateDict CheckpointKind = iota
	// CheckpointWrapped: Wrapper-Dict mit verschachteltem "state_dict"
	CheckpointWrapped
	// CheckpointModule: vollstaendig serialisiertes Modell-Objekt
	CheckpointModule
	// CheckpointUnrecognized: Form nicht erkannt, Gewichte unbrauchbar
	CheckpointUnrecognized
)

// String implementiert Stringer Interface
func (k CheckpointKind) String() string {
	switch k {
	case CheckpointStateDict:
		return "state_dict"
	case CheckpointWrapped:
		return "wrapped"
	case CheckpointModule:
		return "module"
	default:
		return "unrecognized"
	}
}

// Checkpoint ist das Ergebnis der Format-Erkennung (Tagged Union):
// bei Kind == CheckpointUnrecognized ist Weights leer
type Checkpoint struct {
	Kind    CheckpointKind
	Weights StateDict
}

// ============================================================================
// Format-Erkennung und Dispatch
// ============================================================================

// safetensors beginnt mit einer 8-Byte Little-Endian Header-Laenge,
// PyTorch-ZIP-Archive mit der PK-Signatur
var magicZIP = []byte{0x50, 0x4B}

// ReadCheckpoint erkennt das Container-Format und liefert den normalisierten
// Checkpoint. Ein Fehler bedeutet: Datei nicht lesbar. Erkennungs- und
// Parse-Probleme innerhalb der Datei degradieren zu CheckpointUnrecognized.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	head := make([]byte, 16)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint oeffnen: %w", err)
	}
	n, _ := f.Read(head)
	f.Close()
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZIP):
		return readPickleCheckpoint(path)
	case looksLikeSafetensors(head) || strings.HasSuffix(path, ".safetensors"):
		return readSafetensorsCheckpoint(path)
	default:
		// Legacy-Pickle ohne ZIP-Container probiert gopickle ebenfalls
		return readPickleCheckpoint(path)
	}
}

// looksLikeSafetensors prueft auf plausible Header-Laenge gefolgt von JSON
func looksLikeSafetensors(head []byte) bool {
	if len(head) < 9 {
		return false
	}
	size := binary.LittleEndian.Uint64(head[:8])
	return size > 0 && size < 100*1024*1024 && (head[8] == '{' || head[8] == ' ')
}

// ============================================================================
// PyTorch Pickle
// ============================================================================

// readPickleCheckpoint laedt einen PyTorch-Checkpoint via gopickle
func readPickleCheckpoint(path string) (*Checkpoint, error) {
	loaded, err := pytorch.Load(path)
	if err != nil {
		// Nicht entpickelbar (z.B. vollstaendiges nn.Module mit fremden
		// Klassen) - kein harter Fehler, der Loader degradiert
		return &Checkpoint{Kind: CheckpointUnrecognized, Weights: orderedmap.New[string, *Weight]()}, nil
	}

	entries, ok := dictEntries(loaded)
	if !ok {
		return &Checkpoint{Kind: CheckpointUnrecognized, Weights: orderedmap.New[string, *Weight]()}, nil
	}

	// Wrapper-Form: verschachteltes "state_dict"
	for _, e := range entries {
		if key, ok := e.key.(string); ok && key == "state_dict" {
			if nested, ok := dictEntries(e.value); ok {
				if sd, ok := toStateDict(nested); ok {
					return &Checkpoint{Kind: CheckpointWrapped, Weights: sd}, nil
				}
			}
		}
	}

	// Flaches State-Dict: alle Werte sind Tensoren
	if sd, ok := toStateDict(entries); ok {
		return &Checkpoint{Kind: CheckpointStateDict, Weights: sd}, nil
	}

	// Modell-Objekt-Form: Tensor-Dicts koennen tiefer haengen
	sd := orderedmap.New[string, *Weight]()
	collectTensors("", entries, sd, 0)
	if sd.Len() > 0 {
		return &Checkpoint{Kind: CheckpointModule, Weights: sd}, nil
	}

	return &Checkpoint{Kind: CheckpointUnrecognized, Weights: orderedmap.New[string, *Weight]()}, nil
}

// kv ist ein Key/Value-Paar aus einem entpickelten Dict
type kv struct {
	key   any
	value any
}

// dictEntries extrahiert Eintraege aus den Dict-Formen, die gopickle liefert.
// OrderedDict-Eintraege werden alphabetisch sortiert, da die Map-Iteration
// in Go keine Reihenfolge garantiert.
func dictEntries(obj any) ([]kv, bool) {
	switch d := obj.(type) {
	case *types.Dict:
		entries := make([]kv, 0, len(*d))
		for _, e := range *d {
			entries = append(entries, kv{e.Key, e.Value})
		}
		return entries, true
	case *types.OrderedDict:
		entries := make([]kv, 0, len(d.Map))
		for k, e := range d.Map {
			entries = append(entries, kv{k, e.Value})
		}
		sort.Slice(entries, func(i, j int) bool {
			return fmt.Sprint(entries[i].key) < fmt.Sprint(entries[j].key)
		})
		return entries, true
	case map[any]any:
		entries := make([]kv, 0, len(d))
		for k, v := range d {
			entries = append(entries, kv{k, v})
		}
		sort.Slice(entries, func(i, j int) bool {
			return fmt.Sprint(entries[i].key) < fmt.Sprint(entries[j].key)
		})
		return entries, true
	}
	return nil, false
}

// toStateDict konvertiert Eintraege zu einem State-Dict.
// Nicht-Tensor-Werte (Metadaten wie "epoch" oder "optimizer") und nicht
// konvertierbare Dtypes werden uebersprungen. Gibt false zurueck, wenn
// kein einziger Tensor uebrig bleibt.
func toStateDict(entries []kv) (StateDict, bool) {
	sd := orderedmap.New[string, *Weight]()
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}
		t, ok := e.value.(*pytorch.Tensor)
		if !ok {
			continue
		}
		w, err := tensorToWeight(t)
		if err != nil {
			continue
		}
		sd.Set(name, w)
	}
	return sd, sd.Len() > 0
}

// collectTensors sammelt rekursiv alle Tensoren aus verschachtelten Dicts,
// mit Punkt-separierten Namenspfaden wie in PyTorch ueblich
func collectTensors(prefix string, entries []kv, sd StateDict, depth int) {
	if depth > 8 {
		return
	}
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}

		if t, ok := e.value.(*pytorch.Tensor); ok {
			if w, err := tensorToWeight(t); err == nil {
				sd.Set(name, w)
			}
			continue
		}
		if nested, ok := dictEntries(e.value); ok {
			collectTensors(name, nested, sd, depth+1)
		}
	}
}

// tensorToWeight konvertiert einen gopickle-Tensor zu float32
func tensorToWeight(t *pytorch.Tensor) (*Weight, error) {
	shape := make([]int, len(t.Size))
	numel := 1
	for i, d := range t.Size {
		shape[i] = d
		numel *= d
	}

	data := make([]float32, numel)
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		if t.StorageOffset+numel > len(s.Data) {
			return nil, fmt.Errorf("storage zu klein: %d+%d > %d", t.StorageOffset, numel, len(s.Data))
		}
		copy(data, s.Data[t.StorageOffset:t.StorageOffset+numel])
	case *pytorch.HalfStorage:
		if t.StorageOffset+numel > len(s.Data) {
			return nil, fmt.Errorf("storage zu klein: %d+%d > %d", t.StorageOffset, numel, len(s.Data))
		}
		copy(data, s.Data[t.StorageOffset:t.StorageOffset+numel])
	case *pytorch.DoubleStorage:
		if t.StorageOffset+numel > len(s.Data) {
			return nil, fmt.Errorf("storage zu klein: %d+%d > %d", t.StorageOffset, numel, len(s.Data))
		}
		for i, v := range s.Data[t.StorageOffset : t.StorageOffset+numel] {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("nicht unterstuetzter storage-typ %T", t.Source)
	}

	return &Weight{Shape: shape, Data: data}, nil
}

// ============================================================================
// safetensors
// ============================================================================

// safetensorsEntry beschreibt einen Tensor im safetensors-Header
type safetensorsEntry struct {
	Dtype       string    `json:"dtype"`
	Shape       []int     `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// readSafetensorsCheckpoint parst das safetensors-Format:
// 8 Byte Header-Laenge (LE), JSON-Header, danach rohe Tensor-Bytes
func readSafetensorsCheckpoint(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint lesen: %w", err)
	}

	empty := &Checkpoint{Kind: CheckpointUnrecognized, Weights: orderedmap.New[string, *Weight]()}
	if len(raw) < 8 {
		return empty, nil
	}

	headerSize := binary.LittleEndian.Uint64(raw[:8])
	if headerSize == 0 || 8+headerSize > uint64(len(raw)) {
		return empty, nil
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerSize], &header); err != nil {
		return empty, nil
	}

	type named struct {
		name  string
		entry safetensorsEntry
	}
	var tensors []named
	for name, msg := range header {
		if name == "__metadata__" {
			continue
		}
		var e safetensorsEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		tensors = append(tensors, named{name, e})
	}

	// Datei-Reihenfolge wiederherstellen (JSON-Maps sind in Go unsortiert)
	sort.Slice(tensors, func(i, j int) bool {
		return tensors[i].entry.DataOffsets[0] < tensors[j].entry.DataOffsets[0]
	})

	payload := raw[8+headerSize:]
	sd := orderedmap.New[string, *Weight]()
	for _, t := range tensors {
		begin, end := t.entry.DataOffsets[0], t.entry.DataOffsets[1]
		if begin > end || end > uint64(len(payload)) {
			continue
		}
		w := decodeSafetensorsData(t.entry.Dtype, t.entry.Shape, payload[begin:end])
		if w != nil {
			sd.Set(t.name, w)
		}
	}

	if sd.Len() == 0 {
		return empty, nil
	}
	return &Checkpoint{Kind: CheckpointStateDict, Weights: sd}, nil
}

// decodeSafetensorsData konvertiert rohe Tensor-Bytes zu float32
func decodeSafetensorsData(dtype string, shape []int, bts []byte) *Weight {
	numel := 1
	for _, d := range shape {
		numel *= d
	}

	var data []float32
	switch dtype {
	case "F32":
		if len(bts) < numel*4 {
			return nil
		}
		data = make([]float32, numel)
		for i := range data {
			bits := binary.LittleEndian.Uint32(bts[i*4:])
			data[i] = math.Float32frombits(bits)
		}
	case "F16":
		if len(bts) < numel*2 {
			return nil
		}
		data = make([]float32, numel)
		for i := range data {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(bts[i*2:])).Float32()
		}
	case "BF16":
		if len(bts) < numel*2 {
			return nil
		}
		data = bfloat16.DecodeFloat32(bts[:numel*2])
	default:
		return nil
	}

	cp := make([]int, len(shape))
	copy(cp, shape)
	return &Weight{Shape: cp, Data: data}
}

// ============================================================================
// num_classes Inferenz
// ============================================================================

// InferNumClasses sucht den Gewichts-Tensor der finalen Klassifikations-
// Schicht und liest dessen erste Dimension. Bei mehrschichtigen Koepfen
// (classifier.0, classifier.3, ...) gewinnt der hoechste Layer-Index -
// das ist die finale Linear-Schicht.
func InferNumClasses(sd StateDict) (int, bool) {
	bestIdx := -1
	bestClasses := 0

	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		name, w := pair.Key, pair.Value
		if !strings.HasSuffix(name, ".weight") || !strings.Contains(name, "classifier") || len(w.Shape) != 2 {
			continue
		}
		idx := classifierLayerIndex(name)
		if idx > bestIdx {
			bestIdx = idx
			bestClasses = w.Shape[0]
		}
	}

	if bestIdx < 0 || bestClasses <= 0 {
		return 0, false
	}
	return bestClasses, true
}

// classifierLayerIndex parst den Layer-Index aus "classifier.<n>.weight".
// "classifier.weight" ohne Index zaehlt als 0.
func classifierLayerIndex(name string) int {
	i := strings.Index(name, "classifier.")
	if i < 0 {
		return 0
	}
	rest := name[i+len("classifier."):]
	numStr, _, _ := strings.Cut(rest, ".")
	if n, err := strconv.Atoi(numStr); err == nil {
		return n
	}
	return 0
}

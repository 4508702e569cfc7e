// MODUL: labels
// ZWECK: Laden und Nachschlagen der Klassennamen
// INPUT: JSON-Datei mit Klassennamen (Liste oder Index-Map)
// OUTPUT: Set mit Name-pro-Klassenindex
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: Keine externen
// HINWEISE: Fehlende oder defekte Label-Dateien sind kein Startfehler -
//           der Aufrufer synthetisiert dann generische Namen.

package labels

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Set haelt die Klassennamen in Indexreihenfolge
type Set struct {
	names []string
}

// Read laedt Klassennamen aus einer JSON-Datei. Unterstuetzt werden eine
// Liste ["katze", "hund"] und eine Index-Map {"0": "katze", "1": "hund"}.
func Read(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labels lesen: %w", err)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return &Set{names: list}, nil
	}

	var byIndex map[string]string
	if err := json.Unmarshal(raw, &byIndex); err == nil {
		return fromIndexMap(byIndex)
	}

	return nil, fmt.Errorf("labels parsen: weder liste noch index-map in %s", path)
}

// fromIndexMap ordnet eine {"0": name}-Map in Indexreihenfolge
func fromIndexMap(byIndex map[string]string) (*Set, error) {
	type entry struct {
		idx  int
		name string
	}
	entries := make([]entry, 0, len(byIndex))
	for k, v := range byIndex {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("labels parsen: ungueltiger index %q", k)
		}
		entries = append(entries, entry{idx, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return &Set{names: names}, nil
}

// Synthesize erzeugt generische Namen "Class 0" .. "Class n-1"
func Synthesize(n int) *Set {
	names := make([]string, n)
	for i := range names {
		names[i] = "Class " + strconv.Itoa(i)
	}
	return &Set{names: names}
}

// Len gibt die Anzahl bekannter Klassen zurueck
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Label liefert den Namen zum Klassenindex. Fuer Indizes ausserhalb der
// bekannten Namen faellt die Zuordnung auf "Class <idx>" zurueck.
func (s *Set) Label(idx int) string {
	if s != nil && idx >= 0 && idx < len(s.names) {
		return s.names[idx]
	}
	return "Class " + strconv.Itoa(idx)
}

// Names liefert eine Kopie aller Namen in Indexreihenfolge
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

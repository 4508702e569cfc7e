// predictions.go - CRUD-Operationen der Vorhersage-Historie
// Enthaelt: SavePrediction, History, Clear, Stats

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/makodaa/docker-classification-model/api"
)

// SavePrediction schreibt einen History-Eintrag in einer expliziten
// Transaktion und liefert ID und Zeitstempel des neuen Datensatzes
func (s *Store) SavePrediction(imageName, prediction string, confidence float64, top5 []api.Prediction, imageSize int64) (*api.HistoryRef, error) {
	conn, err := s.ensure()
	if err != nil {
		return nil, err
	}

	top5JSON, err := json.Marshal(top5)
	if err != nil {
		return nil, fmt.Errorf("encode top_5: %w", err)
	}

	// Zeitstempel in Go erzeugen, damit er ohne Rueckfrage an die Datenbank
	// in der Antwort landen kann
	ts := time.Now().UTC().Format(time.RFC3339)

	tx, err := conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO predictions
			(timestamp, image_name, prediction, confidence, top_5_predictions, image_size)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, imageName, prediction, confidence, string(top5JSON), imageSize,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("insert prediction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &api.HistoryRef{ID: id, Timestamp: ts}, nil
}

// History liefert die juengsten Eintraege, neueste zuerst.
// Bei gleichem Zeitstempel entscheidet die hoehere ID.
// Ohne erreichbare Datenbank kommt eine leere Liste zurueck, kein Fehler.
func (s *Store) History(limit, offset int) ([]api.HistoryRecord, error) {
	conn, err := s.ensure()
	if err != nil {
		slog.Warn("datenbank nicht erreichbar, liefere leere historie", "error", err)
		return []api.HistoryRecord{}, nil
	}

	rows, err := conn.Query(`
		SELECT id, timestamp, image_name, prediction, confidence, top_5_predictions
		FROM predictions
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []api.HistoryRecord{}
	for rows.Next() {
		var rec api.HistoryRecord
		var confidence sql.NullFloat64
		var top5Raw sql.NullString

		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ImageName, &rec.Prediction, &confidence, &top5Raw); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		if confidence.Valid {
			v := confidence.Float64
			rec.Confidence = &v
		}
		if top5Raw.Valid {
			rec.Top5 = decodeTop5(top5Raw.String)
		}

		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return history, nil
}

// decodeTop5 parst die gespeicherte Top-Liste tolerant:
// direkte JSON-Liste oder doppelt kodierter JSON-String.
// Unlesbare Altbestaende ergeben nil statt eines Fehlers.
func decodeTop5(raw string) []api.Prediction {
	var preds []api.Prediction
	if err := json.Unmarshal([]byte(raw), &preds); err == nil {
		return preds
	}

	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &preds); err == nil {
			return preds
		}
	}
	return nil
}

// Clear loescht die gesamte Historie und liefert die Anzahl
// geloeschter Eintraege. Ohne erreichbare Datenbank gibt es nichts zu
// loeschen: Ergebnis 0, kein Fehler.
func (s *Store) Clear() (int64, error) {
	conn, err := s.ensure()
	if err != nil {
		slog.Warn("datenbank nicht erreichbar, nichts zu loeschen", "error", err)
		return 0, nil
	}

	res, err := conn.Exec("DELETE FROM predictions")
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

// Stats fasst die gespeicherten Vorhersagen zusammen: Gesamtzahl,
// Durchschnitts-Konfidenz und haeufigste Klasse. Bei Zaehlgleichstand
// gewinnt die alphabetisch kleinere Klasse. Ohne erreichbare Datenbank
// kommt eine leere Statistik zurueck, kein Fehler.
func (s *Store) Stats() (*api.StatsResponse, error) {
	conn, err := s.ensure()
	if err != nil {
		slog.Warn("datenbank nicht erreichbar, liefere leere statistik", "error", err)
		return &api.StatsResponse{}, nil
	}

	stats := &api.StatsResponse{}

	var avg sql.NullFloat64
	err = conn.QueryRow("SELECT COUNT(*), AVG(confidence) FROM predictions").
		Scan(&stats.TotalPredictions, &avg)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		stats.AvgConfidence = &v
	}

	err = conn.QueryRow(`
		SELECT prediction, COUNT(*) AS class_count
		FROM predictions
		GROUP BY prediction
		ORDER BY class_count DESC, prediction ASC
		LIMIT 1`).
		Scan(&stats.MostCommonClass, &stats.MostCommonCount)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query most common: %w", err)
	}

	return stats, nil
}

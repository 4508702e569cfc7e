// types.go - API-Typen des Klassifikationsdienstes
// Enthaelt: Health, Info, Predict, History, Stats und Fehler-Antworten
package api

// HealthResponse beschreibt den Dienstzustand.
// Status ist "healthy" nur, wenn Modell, Labels und Datenbank verfuegbar sind.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	LabelsLoaded bool   `json:"labels_loaded"`
	DBConnected  bool   `json:"db_connected"`
}

// InfoResponse beschreibt das geladene Modell
type InfoResponse struct {
	ModelPath       string `json:"model_path"`
	ModelLoaded     bool   `json:"model_loaded"`
	Device          string `json:"device"`
	NumClasses      int    `json:"num_classes"`
	LabelsAvailable bool   `json:"labels_available"`
	InputSize       [2]int `json:"input_size"`
}

// Prediction ist ein einzelnes Klassifikationsergebnis
type Prediction struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ModelInfo haengt an jeder Predict-Antwort
type ModelInfo struct {
	Device           string  `json:"device"`
	InputShape       string  `json:"input_shape"`
	NumClasses       int     `json:"num_classes"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// HistoryRef verweist auf den persistierten History-Eintrag einer Vorhersage
type HistoryRef struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
}

// PredictResponse ist die Antwort von POST /predict.
// Bei Success == false ist nur Error gesetzt.
type PredictResponse struct {
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
	Predictions   []Prediction `json:"predictions,omitempty"`
	ModelInfo     *ModelInfo   `json:"model_info,omitempty"`
	Filename      string       `json:"filename,omitempty"`
	RequestID     string       `json:"request_id,omitempty"`
	HistoryRecord *HistoryRef  `json:"history_record,omitempty"`
}

// HistoryRecord ist ein Eintrag aus GET /history.
// Confidence ist nullable, da Altbestaende ohne Wert vorkommen koennen.
type HistoryRecord struct {
	ID         int64        `json:"id"`
	Timestamp  string       `json:"timestamp"`
	ImageName  string       `json:"image_name"`
	Prediction string       `json:"prediction"`
	Confidence *float64     `json:"confidence"`
	Top5       []Prediction `json:"top_5_predictions"`
}

// ClearResponse ist die Antwort von DELETE /history
type ClearResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}

// StatsResponse fasst die gespeicherten Vorhersagen zusammen
type StatsResponse struct {
	TotalPredictions int64    `json:"total_predictions"`
	AvgConfidence    *float64 `json:"avg_confidence"`
	MostCommonClass  string   `json:"most_common_class,omitempty"`
	MostCommonCount  int64    `json:"most_common_count,omitempty"`
}

// ErrorResponse ist die generische Fehlerantwort der History- und
// Stats-Endpunkte
type ErrorResponse struct {
	Error string `json:"error"`
}

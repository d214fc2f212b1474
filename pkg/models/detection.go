package models

import "time"

// FaceRegion is the bounding box reported by the detection backend.
// The engine stores it alongside events but never validates its geometry.
type FaceRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Observation is one resolved-or-resolvable facial detection delivered
// by the detection/recognition boundary. Per frame, the boundary yields
// zero or more observations; each carries the face embedding for
// identity resolution plus the classified emotion and its confidence.
type Observation struct {
	Embedding  []float64  `json:"embedding,omitempty"`
	Emotion    Emotion    `json:"emotion"`
	Confidence float64    `json:"confidence"`
	Region     FaceRegion `json:"region"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Match is the result of resolving an embedding against the enrolled set.
// A zero EmployeeID means the face did not clear the similarity threshold.
type Match struct {
	EmployeeID string  `json:"employee_id,omitempty"`
	Score      float64 `json:"score"`
}

// Known reports whether the match resolved to an enrolled employee.
func (m Match) Known() bool {
	return m.EmployeeID != ""
}

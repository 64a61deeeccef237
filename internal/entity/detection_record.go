package entity

import "time"

// DetectionRecord is the persisted trace of a displayed detection. Images are
// never stored.
type DetectionRecord struct {
	ID               string    `db:"id" json:"id"`
	ClientID         string    `db:"client_id" json:"client_id"`
	Crop             string    `db:"crop" json:"crop"`
	Label            string    `db:"label" json:"label"`
	IsHealthy        bool      `db:"is_healthy" json:"is_healthy"`
	AdvisoryKnown    bool      `db:"advisory_known" json:"advisory_known"`
	ProcessingMillis int64     `db:"processing_ms" json:"processing_ms"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

package detectionRepository

import (
	"context"
	"time"

	"MinoriAI/internal/entity"
	contextPkg "MinoriAI/pkg/context"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type DetectionDB struct {
	ID            string    `db:"id"`
	ClientID      string    `db:"client_id"`
	Crop          string    `db:"crop"`
	Label         string    `db:"label"`
	IsHealthy     bool      `db:"is_healthy"`
	AdvisoryKnown bool      `db:"advisory_known"`
	ProcessingMS  int64     `db:"processing_ms"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *detectionsRepository) SaveDetection(ctx context.Context, record entity.DetectionRecord) error {
	requestID := contextPkg.GetRequestID(ctx)
	argsKV := map[string]interface{}{
		"id":             record.ID,
		"client_id":      record.ClientID,
		"crop":           record.Crop,
		"label":          record.Label,
		"is_healthy":     record.IsHealthy,
		"advisory_known": record.AdvisoryKnown,
		"processing_ms":  record.ProcessingMillis,
		"created_at":     record.CreatedAt.UTC(),
	}

	query, args, err := sqlx.Named(querySaveDetection, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for SaveDetection")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"client_id":  record.ClientID,
			"error":      err.Error(),
		}).Error("Database error when saving detection")
		return err
	}

	return nil
}

// ListDetections returns the newest records first. An empty clientID lists
// every client.
func (r *detectionsRepository) ListDetections(ctx context.Context, clientID string, limit int) ([]entity.DetectionRecord, error) {
	requestID := contextPkg.GetRequestID(ctx)
	argsKV := map[string]interface{}{
		"client_id": clientID,
		"limit":     limit,
	}

	query, args, err := sqlx.Named(queryListDetections, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListDetections named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	var rows []DetectionDB
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"client_id":  clientID,
			"error":      err.Error(),
		}).Error("Database error when listing detections")
		return nil, err
	}

	records := make([]entity.DetectionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, entity.DetectionRecord{
			ID:               row.ID,
			ClientID:         row.ClientID,
			Crop:             row.Crop,
			Label:            row.Label,
			IsHealthy:        row.IsHealthy,
			AdvisoryKnown:    row.AdvisoryKnown,
			ProcessingMillis: row.ProcessingMS,
			CreatedAt:        row.CreatedAt,
		})
	}
	return records, nil
}

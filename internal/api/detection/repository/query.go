package detectionRepository

const (
	queryCreateDetectionsTable = `
		CREATE TABLE IF NOT EXISTS detections (
			id             VARCHAR(26) PRIMARY KEY,
			client_id      VARCHAR(128) NOT NULL,
			crop           VARCHAR(16) NOT NULL,
			label          VARCHAR(128) NOT NULL,
			is_healthy     BOOLEAN NOT NULL,
			advisory_known BOOLEAN NOT NULL,
			processing_ms  BIGINT NOT NULL,
			created_at     TIMESTAMP NOT NULL
		)
	`

	queryCreateDetectionsIndex = `
		CREATE INDEX IF NOT EXISTS idx_detections_client_created
		ON detections (client_id, created_at)
	`

	querySaveDetection = `
		INSERT INTO detections (
			id,
			client_id,
			crop,
			label,
			is_healthy,
			advisory_known,
			processing_ms,
			created_at
		) VALUES (
			:id,
			:client_id,
			:crop,
			:label,
			:is_healthy,
			:advisory_known,
			:processing_ms,
			:created_at
		)
	`

	queryListDetections = `
		SELECT
			id,
			client_id,
			crop,
			label,
			is_healthy,
			advisory_known,
			processing_ms,
			created_at
		FROM detections
		WHERE (:client_id = '' OR client_id = :client_id)
		ORDER BY created_at DESC, id DESC
		LIMIT :limit
	`
)

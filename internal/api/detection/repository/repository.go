package detectionRepository

import (
	"MinoriAI/internal/entity"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

func New(db *sqlx.DB, log *logrus.Logger) Repository {
	return &repository{
		DB:  db,
		log: log,
	}
}

type repository struct {
	DB  *sqlx.DB
	log *logrus.Logger
}

type Repository interface {
	NewClient(tx bool) (Client, error)
	EnsureSchema(ctx context.Context) error
}

func (r *repository) NewClient(tx bool) (Client, error) {
	var sqlExecutor SQLExecutor
	var commitFunc, rollbackFunc func() error

	sqlExecutor = r.DB

	if tx {
		txx, err := r.DB.Beginx()
		if err != nil {
			return Client{}, err
		}

		sqlExecutor = txx
		commitFunc = txx.Commit
		rollbackFunc = txx.Rollback
	} else {
		commitFunc = func() error { return nil }
		rollbackFunc = func() error { return nil }
	}

	return Client{
		Detections: &detectionsRepository{q: sqlExecutor, log: r.log},
		Commit:     commitFunc,
		Rollback:   rollbackFunc,
	}, nil
}

// EnsureSchema creates the detections table when it is missing. The DDL is
// valid for both postgres and sqlite.
func (r *repository) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{queryCreateDetectionsTable, queryCreateDetectionsIndex} {
		if _, err := r.DB.ExecContext(ctx, q); err != nil {
			r.log.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Error("Failed to create detections schema")
			return err
		}
	}
	return nil
}

type Client struct {
	Detections interface {
		SaveDetection(ctx context.Context, record entity.DetectionRecord) error
		ListDetections(ctx context.Context, clientID string, limit int) ([]entity.DetectionRecord, error)
	}

	Commit   func() error
	Rollback func() error
}

type detectionsRepository struct {
	q   SQLExecutor
	log *logrus.Logger
}

package recorddb

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/dataflow-project/dataflow/internal/recordingester/model"
)

// BreakerName identifies the relational store to the circuit breaker registry.
const BreakerName = "records-db"

const tableName = "data_records"

// RecordStore commits converted rows.  The insert is all-or-nothing so that a
// failed batch leaves every buffer position pending.
type RecordStore interface {
	InsertBatch(ctx context.Context, rows []model.RelationalRow) error
}

type RecordDb struct {
	db *pgxpool.Pool
}

func NewRecordDb(db *pgxpool.Pool) *RecordDb {
	return &RecordDb{db: db}
}

// InsertBatch writes all rows in a single transaction.
func (r *RecordDb) InsertBatch(ctx context.Context, rows []model.RelationalRow) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		records = append(records, goqu.Record{
			"timestamp":    row.Timestamp,
			"random_value": row.RandomValue,
			"hash_value":   row.HashValue,
		})
	}
	sql, args, err := goqu.Dialect("postgres").
		Insert(tableName).
		Rows(records...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return errors.WithMessage(err, "error building insert statement")
	}
	return r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql, args...)
		return errors.WithMessagef(err, "error inserting %d rows into %s", len(rows), tableName)
	})
}

package recorddb

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/dataflow-project/dataflow/internal/recordingester/configuration"
)

// OpenPgxPool opens a connection pool to the database holding committed
// record rows.
func OpenPgxPool(config configuration.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(createConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithMessage(err, "error parsing postgres connection configuration")
	}
	if config.MaxConnections > 0 {
		poolConfig.MaxConns = config.MaxConnections
	}
	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "error connecting to postgres")
	}
	return pool, nil
}

func createConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(values))
	for k, v := range values {
		parts = append(parts, k+"='"+replacer.Replace(v)+"'")
	}
	return strings.Join(parts, " ")
}

// The schema deliberately carries no uniqueness constraint on
// (hash_value, timestamp): a crash between insert and acknowledge will
// duplicate rows on redelivery, which is accepted over rejecting legitimate
// hash collisions from the generator.
const schema = `
CREATE TABLE IF NOT EXISTS data_records (
	id           bigserial PRIMARY KEY,
	timestamp    timestamptz NOT NULL,
	random_value int         NOT NULL,
	hash_value   varchar(64) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_data_records_hash_time ON data_records (hash_value, timestamp);
`

// Migrate creates the data_records table if it does not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return errors.WithMessage(err, "error migrating data_records schema")
}

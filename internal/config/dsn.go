package config

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/quarry/dialect"
)

// NormalizeDSN prepares a data source name for the driver of a dialect.
// MySQL DSNs always parse time columns into time.Time, postgres URLs are
// converted to key/value connection strings, and SQLite databases are
// opened with foreign keys enforced.
func NormalizeDSN(name, dsn string) (string, error) {
	switch name {
	case dialect.MySQL:
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return "", fmt.Errorf("config: parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case dialect.Postgres:
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return dsn, nil
		}
		conn, err := pq.ParseURL(dsn)
		if err != nil {
			return "", fmt.Errorf("config: parse postgres url: %w", err)
		}
		return conn, nil
	case dialect.SQLite:
		if strings.Contains(dsn, "foreign_keys") {
			return dsn, nil
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=foreign_keys(1)", nil
	default:
		return dsn, nil
	}
}

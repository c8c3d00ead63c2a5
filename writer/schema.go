package writer

import (
	"fmt"
	"strings"

	"bookflow/models"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name        string
	floatType   string
	intType     string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{
		name:        "postgres",
		floatType:   "DOUBLE PRECISION",
		intType:     "BIGINT",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	sqliteDialect = dialect{
		name:        "sqlite",
		floatType:   "REAL",
		intType:     "INTEGER",
		placeholder: func(int) string { return "?" },
	}
)

const (
	keyTimestamp = "minute_ts"
	keySymbol    = "symbol"
)

func (d dialect) columnType(c models.Column) string {
	switch c.Kind {
	case models.KindTimestamp:
		return d.intType + " NOT NULL"
	case models.KindText:
		if c.Name == keySymbol {
			return "TEXT NOT NULL"
		}
		return "TEXT"
	case models.KindInt:
		return d.intType
	default:
		return d.floatType
	}
}

func (d dialect) createTable(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name())
	for _, c := range t.Columns() {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, d.columnType(c))
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s, %s)\n)", keyTimestamp, keySymbol)
	return b.String()
}

func (d dialect) placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

// upsert inserts a full row, overwriting every non-key column on conflict.
func (d dialect) upsert(t Table) string {
	cols := t.Columns()
	names := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		names[i] = c.Name
		if c.Name == keyTimestamp || c.Name == keySymbol {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.Name, c.Name))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s, %s) DO UPDATE SET %s",
		t.Name(),
		strings.Join(names, ", "),
		d.placeholders(1, len(cols)),
		keyTimestamp, keySymbol,
		strings.Join(sets, ", "),
	)
}

// updateTicker sets the ticker columns of one archive row.
func (d dialect) updateTicker() string {
	sets := make([]string, len(models.TickerColumns))
	for i, c := range models.TickerColumns {
		sets[i] = fmt.Sprintf("%s = %s", c.Name, d.placeholder(i+1))
	}
	n := len(models.TickerColumns)
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s AND %s = %s",
		TableArchive.Name(),
		strings.Join(sets, ", "),
		keyTimestamp, d.placeholder(n+1),
		keySymbol, d.placeholder(n+2),
	)
}

func (d dialect) lastMinute(t Table) string {
	return fmt.Sprintf("SELECT MAX(%s) FROM %s WHERE %s = %s", keyTimestamp, t.Name(), keySymbol, d.placeholder(1))
}

// tickerGaps selects minutes where the depth feed wrote a row but the ticker
// feed did not. snapshot_count and tick_count are never NULL on a present side.
func (d dialect) tickerGaps() string {
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = %s AND %s >= %s AND %s < %s AND snapshot_count IS NOT NULL AND tick_count IS NULL ORDER BY %s",
		keyTimestamp, TableArchive.Name(),
		keySymbol, d.placeholder(1),
		keyTimestamp, d.placeholder(2),
		keyTimestamp, d.placeholder(3),
		keyTimestamp,
	)
}

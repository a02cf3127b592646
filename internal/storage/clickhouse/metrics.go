package clickhouse

import (
	"context"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"intraday-backtest-lab/internal/observability"
)

// Query runs a query and reports its duration and outcome through the
// shared observability registry.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	start := time.Now()
	rows, err := c.Conn.Query(ctx, query, args...)
	observability.RecordDBQuery("clickhouse", queryVerb(query), time.Since(start).Seconds(), err)
	return rows, err
}

// QueryRow runs a single-row query. Scan errors surface later and are
// not attributed here.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	start := time.Now()
	row := c.Conn.QueryRow(ctx, query, args...)
	observability.RecordDBQuery("clickhouse", queryVerb(query), time.Since(start).Seconds(), nil)
	return row
}

// Exec runs a statement and reports its duration and outcome.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := c.Conn.Exec(ctx, query, args...)
	observability.RecordDBQuery("clickhouse", queryVerb(query), time.Since(start).Seconds(), err)
	return err
}

// PrepareBatch wraps the prepared batch so its Send is timed; batch
// cost sits in Send, not in the prepare.
func (c *Conn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	batch, err := c.Conn.PrepareBatch(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	return timedBatch{Batch: batch, verb: queryVerb(query)}, nil
}

type timedBatch struct {
	driver.Batch
	verb string
}

func (b timedBatch) Send() error {
	start := time.Now()
	err := b.Batch.Send()
	observability.RecordDBQuery("clickhouse", b.verb, time.Since(start).Seconds(), err)
	return err
}

// queryVerb extracts the leading SQL verb as the metric label.
func queryVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

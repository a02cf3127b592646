package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"intraday-backtest-lab/internal/observability"
)

type queryStartKey struct{}
type queryOpKey struct{}

// metricsTracer reports per-query duration and errors through the
// shared observability registry. It rides pgx's QueryTracer hooks, so
// every statement issued through the pool is timed.
type metricsTracer struct{}

func (metricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now())
	return context.WithValue(ctx, queryOpKey{}, sqlOperation(data.SQL))
}

func (metricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	op, _ := ctx.Value(queryOpKey{}).(string)
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), data.Err)
}

// sqlOperation extracts the leading SQL verb as the metric label.
func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

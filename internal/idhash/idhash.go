// Package idhash derives deterministic identifiers so that re-running
// the same input yields byte-identical results and stable storage keys.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(instrument_id|strategy_id|entry_timestamp_ms)
// Returns hex-encoded hash (64 characters). At most one trade can open
// per instrument per bar, so the triple is unique within a run.
func ComputeTradeID(instrumentID, strategyID string, entryTimestampMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", instrumentID, strategyID, entryTimestampMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRunID computes a deterministic run_id for one backtest.
// Formula: SHA256(instrument_id|strategy_id|first_bar_ts|last_bar_ts|bar_count)
// Returns hex-encoded hash (64 characters).
func ComputeRunID(instrumentID, strategyID string, firstBarTs, lastBarTs int64, barCount int) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d", instrumentID, strategyID, firstBarTs, lastBarTs, barCount)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

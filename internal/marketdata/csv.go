package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"intraday-backtest-lab/internal/domain"
)

// CSV loading errors
var (
	ErrBadCSVHeader = errors.New("unexpected CSV header")
	ErrBadCSVRecord = errors.New("malformed CSV record")
)

// csvHeader is the required column order for bar files.
var csvHeader = []string{"timestamp_ms", "open", "high", "low", "close", "volume"}

// ReadBarsCSV parses OHLCV bars from r. The first record must be the
// canonical header; bars are returned sorted and validated.
func ReadBarsCSV(r io.Reader) ([]domain.PriceBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadCSVHeader, i, header[i], col)
		}
	}

	var bars []domain.PriceBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar, err := parseBarRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	return Normalize(bars)
}

// LoadBarsFile reads and normalizes bars from a CSV file on disk.
func LoadBarsFile(path string) ([]domain.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func parseBarRecord(rec []string) (domain.PriceBar, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("%w: timestamp %q", ErrBadCSVRecord, rec[0])
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return domain.PriceBar{}, fmt.Errorf("%w: %s %q", ErrBadCSVRecord, csvHeader[i+1], rec[i+1])
		}
		fields[i] = v
	}

	return domain.PriceBar{
		TimestampMs: ts,
		Open:        fields[0],
		High:        fields[1],
		Low:         fields[2],
		Close:       fields[3],
		Volume:      fields[4],
	}, nil
}

package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// CSVFeed reads input rows of either form
//
//	time,open,high,low,close,volume
//	time,price[,volume]
//
// where time is RFC3339, RFC3339Nano or Unix seconds. The short form
// is a single print (open == high == low == close). A header row
// starting with "time" is allowed, blank rows are skipped, and ticks
// outside [from, to) are filtered when the bounds are set.
type CSVFeed struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	line int
}

func OpenCSV(path string, from, to time.Time) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewCSV(f, from, to)
	feed.c = f
	return feed, nil
}

// NewCSV reads from r. The caller keeps ownership of r.
func NewCSV(r io.Reader, from, to time.Time) *CSVFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &CSVFeed{r: cr, from: from, to: to}
}

func (f *CSVFeed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSVFeed) Next() (market.Tick, bool, error) {
	for {
		row, err := f.r.Read()
		if errors.Is(err, io.EOF) {
			return market.Tick{}, false, nil
		}
		if err != nil {
			return market.Tick{}, false, err
		}
		f.line++
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if f.line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		t, err := parseRow(row)
		if err != nil {
			return market.Tick{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !inRange(t.Time, f.from, f.to) {
			continue
		}
		return t, true, nil
	}
}

func parseRow(row []string) (market.Tick, error) {
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Tick{}, err
	}
	nums := make([]float64, 0, len(row)-1)
	for _, s := range row[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return market.Tick{}, fmt.Errorf("bad number %q: %w", s, err)
		}
		nums = append(nums, v)
	}

	t := market.Tick{Time: ts}
	switch len(nums) {
	case 1, 2:
		t.Open, t.High, t.Low, t.Close = nums[0], nums[0], nums[0], nums[0]
		if len(nums) == 2 {
			t.Volume = nums[1]
		}
	case 5:
		t.Open, t.High, t.Low, t.Close, t.Volume = nums[0], nums[1], nums[2], nums[3], nums[4]
	default:
		return market.Tick{}, fmt.Errorf("want 2, 3 or 6 columns, got %d", len(row))
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// WriteCSV writes ticks in the long form read by CSVFeed.
func WriteCSV(w io.Writer, ticks []market.Tick) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, t := range ticks {
		if err := cw.Write([]string{
			t.Time.UTC().Format(time.RFC3339),
			num(t.Open), num(t.High), num(t.Low), num(t.Close), num(t.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

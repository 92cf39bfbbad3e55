package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/meanrev/market"
)

var t0 = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func TestCSVFeedForms(t *testing.T) {
	t.Parallel()

	in := `time,open,high,low,close,volume
2024-03-05T15:00:00Z,5000,5001,4999.5,5000.75,120
# comment

2024-03-05T15:01:00Z,5000.5
1709650920,5001,7
`
	ticks, err := ReadAll(NewCSV(strings.NewReader(in), time.Time{}, time.Time{}))
	require.NoError(t, err)
	require.Len(t, ticks, 3)

	assert.Equal(t, market.Tick{Time: t0, Open: 5000, High: 5001, Low: 4999.5, Close: 5000.75, Volume: 120}, ticks[0])
	assert.Equal(t, 5000.5, ticks[1].High)
	assert.Zero(t, ticks[1].Volume)
	assert.Equal(t, t0.Add(2*time.Minute), ticks[2].Time)
	assert.Equal(t, 7.0, ticks[2].Volume)
}

func TestCSVFeedRange(t *testing.T) {
	t.Parallel()

	var rows []string
	for i := 0; i < 5; i++ {
		rows = append(rows, t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339)+",5000")
	}
	f := NewCSV(strings.NewReader(strings.Join(rows, "\n")), t0.Add(time.Minute), t0.Add(3*time.Minute))
	ticks, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, t0.Add(time.Minute), ticks[0].Time)
	assert.Equal(t, t0.Add(2*time.Minute), ticks[1].Time)
}

func TestCSVFeedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bad time", "yesterday,5000\n", "bad time"},
		{"bad number", "2024-03-05T15:00:00Z,abc\n", "bad number"},
		{"column count", "2024-03-05T15:00:00Z,1,2,3\n", "columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadAll(NewCSV(strings.NewReader(tt.in), time.Time{}, time.Time{}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	t.Parallel()

	ticks := []market.Tick{
		{Time: t0, Open: 5000, High: 5002.25, Low: 4999, Close: 5001.5, Volume: 10},
		{Time: t0.Add(time.Minute), Open: 5001.5, High: 5001.5, Low: 5000, Close: 5000.25, Volume: 3},
	}
	path := filepath.Join(t.TempDir(), "ticks.csv")
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ticks))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := OpenCSV(path, time.Time{}, time.Time{})
	require.NoError(t, err)
	got, err := ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, ticks, got)
}

func TestSliceFeed(t *testing.T) {
	t.Parallel()

	f := NewSliceFeed([]market.Tick{{Time: t0}})
	_, ok, err := f.Next()
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = f.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClickHouseSourceLoad(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	src, err := NewClickHouseSource(db, ClickHouseConfig{Table: "market.bars_1m", Symbol: "MES", QueryTimeout: time.Second})
	require.NoError(t, err)

	from, to := t0, t0.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}).
		AddRow(t0, 5000.0, 5001.0, 4999.0, 5000.5, 100.0).
		AddRow(t0.Add(time.Minute), 5000.5, 5002.0, 5000.25, 5001.75, 80.0)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ts, open, high, low, close, volume FROM market.bars_1m WHERE symbol = ? AND ts >= ? AND ts < ? ORDER BY ts`)).
		WithArgs("MES", from, to).
		WillReturnRows(rows)

	ticks, err := src.Load(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 5001.75, ticks[1].Close)
	assert.Equal(t, t0.Add(time.Minute), ticks[1].Time)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseSourceErrors(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewClickHouseSource(db, ClickHouseConfig{Table: "bars; DROP TABLE x", Symbol: "MES"})
	require.Error(t, err)
	_, err = NewClickHouseSource(db, ClickHouseConfig{Table: "bars"})
	require.Error(t, err)

	src, err := NewClickHouseSource(db, ClickHouseConfig{Table: "bars", Symbol: "MES"})
	require.NoError(t, err)
	_, err = src.Load(context.Background(), t0, t0)
	require.Error(t, err)

	mock.ExpectQuery("SELECT ts").WillReturnError(assert.AnError)
	_, err = src.Load(context.Background(), t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenClickHouseRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := OpenClickHouse(context.Background(), ClickHouseConfig{})
	require.Error(t, err)
}

package feed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz/lzma"

	"github.com/rustyeddy/meanrev/market"
)

// bi5 records are big-endian: ms offset, ask, bid, ask volume, bid volume.
const bi5RecordSize = 20

// DukascopyConfig points at a local cache of Dukascopy hourly tick
// files laid out as <dir>/<SYMBOL>/YYYY/MM/DD/HHh_ticks.bi5.
type DukascopyConfig struct {
	Dir    string `yaml:"dir" default:"./dukas"`
	Symbol string `yaml:"symbol" default:"USA500IDXUSD"`
	// PointScale divides the raw integer prices.
	PointScale float64 `yaml:"point_scale" default:"1000"`
}

// HourPath is the cache file for the hour containing t.
func HourPath(dir, symbol string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(dir, symbol,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02dh_ticks.bi5", t.Hour()))
}

// DecodeBI5 decompresses one hour of ticks. Each record becomes a
// single print at the bid/ask midpoint with the summed volume.
func DecodeBI5(r io.Reader, hour time.Time, scale float64) ([]market.Tick, error) {
	zr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("bi5: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("bi5: %w", err)
	}
	if len(raw)%bi5RecordSize != 0 {
		return nil, fmt.Errorf("bi5: %d bytes is not a whole number of records", len(raw))
	}

	hour = hour.UTC().Truncate(time.Hour)
	out := make([]market.Tick, 0, len(raw)/bi5RecordSize)
	for off := 0; off < len(raw); off += bi5RecordSize {
		rec := raw[off : off+bi5RecordSize]
		ms := binary.BigEndian.Uint32(rec[0:4])
		ask := float64(binary.BigEndian.Uint32(rec[4:8])) / scale
		bid := float64(binary.BigEndian.Uint32(rec[8:12])) / scale
		vol := float64(math.Float32frombits(binary.BigEndian.Uint32(rec[12:16]))) +
			float64(math.Float32frombits(binary.BigEndian.Uint32(rec[16:20])))
		mid := (ask + bid) / 2
		out = append(out, market.Tick{
			Time: hour.Add(time.Duration(ms) * time.Millisecond),
			Open: mid, High: mid, Low: mid, Close: mid,
			Volume: vol,
		})
	}
	return out, nil
}

// DukascopyFeed walks the cache hour by hour over [from, to). Missing
// or empty hour files are skipped; Dukascopy writes empty files for
// hours the market was closed.
type DukascopyFeed struct {
	cfg  DukascopyConfig
	from time.Time
	to   time.Time
	hour time.Time
	buf  []market.Tick
	i    int
}

func OpenDukascopy(cfg DukascopyConfig, from, to time.Time) (*DukascopyFeed, error) {
	switch {
	case cfg.Dir == "" || cfg.Symbol == "":
		return nil, errors.New("dukascopy: dir and symbol are required")
	case cfg.PointScale <= 0:
		return nil, errors.New("dukascopy: point scale must be positive")
	case from.IsZero() || to.IsZero():
		return nil, errors.New("dukascopy: both --from and --to are required")
	case !to.After(from):
		return nil, errors.New("dukascopy: --to must be after --from")
	}
	return &DukascopyFeed{
		cfg:  cfg,
		from: from,
		to:   to,
		hour: from.UTC().Truncate(time.Hour),
	}, nil
}

func (f *DukascopyFeed) Next() (market.Tick, bool, error) {
	for {
		for f.i < len(f.buf) {
			t := f.buf[f.i]
			f.i++
			if inRange(t.Time, f.from, f.to) {
				return t, true, nil
			}
		}
		if !f.hour.Before(f.to) {
			return market.Tick{}, false, nil
		}
		ticks, err := f.readHour(f.hour)
		if err != nil {
			return market.Tick{}, false, err
		}
		f.hour = f.hour.Add(time.Hour)
		f.buf, f.i = ticks, 0
	}
}

func (f *DukascopyFeed) readHour(hour time.Time) ([]market.Tick, error) {
	path := HourPath(f.cfg.Dir, f.cfg.Symbol, hour)
	in, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}
	ticks, err := DecodeBI5(in, hour, f.cfg.PointScale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ticks, nil
}

func (f *DukascopyFeed) Close() error { return nil }

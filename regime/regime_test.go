package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/meanrev/indicators"
)

func snap(adx float64, squeeze bool) indicators.Snapshot {
	s := indicators.Snapshot{ADX: adx, KCUpper: 103, KCLower: 97}
	if squeeze {
		s.BBUpper, s.BBLower = 102, 98
	} else {
		s.BBUpper, s.BBLower = 105, 95
	}
	return s
}

func TestDerive(t *testing.T) {
	t.Parallel()
	th := Thresholds{Trending: 30, Ranging: 20}

	tests := []struct {
		name    string
		s       indicators.Snapshot
		want    Label
		squeeze bool
	}{
		{"strong trend", snap(35, false), Trending, false},
		{"trend wins over squeeze", snap(30, true), Trending, true},
		{"quiet squeeze", snap(15, true), Ranging, true},
		{"quiet without squeeze", snap(15, false), Transitional, false},
		{"boundary ranging", snap(20, true), Ranging, true},
		{"middle band", snap(25, true), Transitional, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sq := Derive(tt.s, th)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.squeeze, sq)
		})
	}
}

func TestClassifierHysteresis(t *testing.T) {
	t.Parallel()
	c, err := NewClassifier(Config{Thresholds: Thresholds{Trending: 30, Ranging: 20}, Hysteresis: 3})
	require.NoError(t, err)
	assert.Equal(t, Transitional, c.State().Label)

	// Two trending bars are not enough.
	assert.Equal(t, Transitional, c.Update(snap(40, false)).Label)
	assert.Equal(t, Transitional, c.Update(snap(40, false)).Label)

	// The third commits.
	st := c.Update(snap(40, false))
	assert.Equal(t, Trending, st.Label)
	assert.Equal(t, 3, st.Consecutive)

	// A single noisy bar never flips the committed label.
	st = c.Update(snap(10, true))
	assert.Equal(t, Trending, st.Label)
	assert.Equal(t, Ranging, st.Candidate)
	assert.Equal(t, 1, st.Consecutive)

	// Interrupted run restarts the count.
	c.Update(snap(10, true))
	c.Update(snap(40, false))
	assert.Equal(t, Trending, c.Update(snap(10, true)).Label)
	assert.Equal(t, Trending, c.Update(snap(10, true)).Label)
	assert.Equal(t, Ranging, c.Update(snap(10, true)).Label)
}

func TestClassifierExactlyKBars(t *testing.T) {
	t.Parallel()
	for k := 1; k <= 5; k++ {
		c, err := NewClassifier(Config{Thresholds: Thresholds{Trending: 30, Ranging: 20}, Hysteresis: k})
		require.NoError(t, err)
		for i := 1; i <= k; i++ {
			st := c.Update(snap(50, false))
			if i < k {
				assert.Equal(t, Transitional, st.Label, "k=%d bar=%d", k, i)
			} else {
				assert.Equal(t, Trending, st.Label, "k=%d bar=%d", k, i)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	_, err := NewClassifier(Config{Thresholds: Thresholds{Trending: 20, Ranging: 25}, Hysteresis: 3})
	assert.Error(t, err)
	_, err = NewClassifier(Config{Thresholds: Thresholds{Trending: 30, Ranging: 20}, Hysteresis: 0})
	assert.Error(t, err)
}

func TestMultiplierTables(t *testing.T) {
	t.Parallel()
	mr := MeanReversionTable()
	assert.Equal(t, 1.0, mr.Multiplier(Trending))
	assert.Equal(t, 0.5, mr.Multiplier(Transitional))
	assert.Equal(t, 0.0, mr.Multiplier(Ranging))

	tr := TrendTable()
	for _, l := range []Label{Trending, Transitional, Ranging} {
		assert.InDelta(t, 1.0, mr.Multiplier(l)+tr.Multiplier(l), 1e-12, l.String())
	}

	assert.Equal(t, 0.0, MultiplierTable{}.Multiplier(Trending))
	assert.Error(t, MultiplierTable{Ranging: 1.5}.Validate())
	assert.NoError(t, mr.Validate())
}

func TestLabelYAML(t *testing.T) {
	t.Parallel()
	var table MultiplierTable
	require.NoError(t, yaml.Unmarshal([]byte("trending: 0.2\nranging: 0.9\n"), &table))
	assert.Equal(t, 0.2, table.Multiplier(Trending))
	assert.Equal(t, 0.9, table.Multiplier(Ranging))

	_, err := ParseLabel("sideways")
	assert.Error(t, err)
}

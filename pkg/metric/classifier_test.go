package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKinds(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"%CPU":              KindFloat,
		"majflt/s":          KindFloat,
		"some-avg10":        KindFloat,
		"RSS":               KindInt,
		"threads":           KindInt,
		"full-total":        KindInt,
		"cpu.rt_runtime_us": KindInt,
		"Command":           KindString,
		"unknown":           KindString,
	}
	for name, want := range cases {
		assert.Equal(t, want, Default.Kind(name), name)
	}
}

func TestNewClassifierRejectsOverlap(t *testing.T) {
	t.Parallel()

	_, err := NewClassifier([]string{"a", "b"}, []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
}

func TestNilClassifierIsString(t *testing.T) {
	t.Parallel()

	var c *Classifier
	assert.Equal(t, KindString, c.Kind("%CPU"))
}

func TestParse(t *testing.T) {
	t.Parallel()

	f := Parse(KindFloat, " 12.50 ")
	require.True(t, f.Valid)
	assert.Equal(t, 12.5, f.Float)

	i := Parse(KindInt, "4096")
	require.True(t, i.Valid)
	assert.Equal(t, int64(4096), i.Int)

	frac := Parse(KindInt, "7.00")
	require.True(t, frac.Valid)
	assert.Equal(t, int64(7), frac.Int)

	bad := Parse(KindFloat, "n/a")
	assert.False(t, bad.Valid)
	assert.True(t, math.IsInf(bad.Number(), -1))
}

func TestCompare(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Compare(Parse(KindFloat, "10.5"), Parse(KindFloat, "9.75")))
	assert.Equal(t, -1, Compare(Parse(KindInt, "9"), Parse(KindInt, "10")))
	// strings use native ordering, so "9" sorts above "10"
	assert.Equal(t, 1, Compare(Parse(KindString, "9"), Parse(KindString, "10")))
	assert.Equal(t, 0, Compare(Parse(KindFloat, "1.0"), Parse(KindFloat, "1")))
	assert.Equal(t, 1, Compare(Parse(KindFloat, "0"), Parse(KindFloat, "bogus")))
}

func TestAtLeast(t *testing.T) {
	t.Parallel()

	threshold := 50.0
	assert.False(t, Parse(KindFloat, "10.0").AtLeast(&threshold))
	assert.True(t, Parse(KindFloat, "50.0").AtLeast(&threshold))
	assert.True(t, Parse(KindInt, "75").AtLeast(&threshold))
	assert.True(t, Parse(KindString, "bash").AtLeast(&threshold))
	assert.True(t, Parse(KindFloat, "0.1").AtLeast(nil))
	assert.False(t, Parse(KindInt, "oops").AtLeast(&threshold))
}

func TestAtLeastIsMonotonic(t *testing.T) {
	t.Parallel()

	values := []string{"0", "0.5", "1", "12.25", "60", "75.5", "100"}
	thresholds := []float64{0, 0.5, 1, 10, 50, 75.5, 101}
	for i := 1; i < len(thresholds); i++ {
		low, high := thresholds[i-1], thresholds[i]
		for _, raw := range values {
			v := Parse(KindFloat, raw)
			if v.AtLeast(&high) {
				assert.True(t, v.AtLeast(&low), "value %s passes %v but not %v", raw, high, low)
			}
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3.14", Default.Parse("%CPU", "3.14159").Format())
	assert.Equal(t, "2048", Default.Parse("RSS", "2048").Format())
	assert.Equal(t, "nginx", Default.Parse("Command", "nginx").Format())
	assert.Equal(t, "-", Default.Parse("%CPU", "-").Format())
}

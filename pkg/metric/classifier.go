package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Kind decides how a metric value is compared, filtered and formatted.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	default:
		return "string"
	}
}

// Classifier maps metric names to kinds. The zero value treats every metric as a string.
type Classifier struct {
	floats sets.Set[string]
	ints   sets.Set[string]
}

// NewClassifier builds a classifier from disjoint float and integer name lists.
func NewClassifier(floats, ints []string) (*Classifier, error) {
	f := sets.New[string](floats...)
	i := sets.New[string](ints...)
	if both := f.Intersection(i); both.Len() > 0 {
		return nil, fmt.Errorf("metrics classified as both float and int: %v", sets.List(both))
	}
	return &Classifier{floats: f, ints: i}, nil
}

// Default is the classification shared by every list, filter and renderer.
var Default = mustClassifier(
	[]string{
		// pidstat
		"%usr", "%system", "%guest", "%wait", "%CPU", "%MEM", "minflt/s", "majflt/s",
		// PSI averages
		"some-avg10", "some-avg60", "some-avg300", "full-avg10", "full-avg60", "full-avg300",
		// realtime
		"rt_percentage",
	},
	[]string{
		// pidstat
		"Time", "UID", "PID", "CPU", "RSS", "VSZ", "threads", "fd-nr",
		// PSI totals
		"some-total", "full-total",
		// realtime
		"cpu.rt_runtime_us", "cpu.rt_period_us",
	},
)

func mustClassifier(floats, ints []string) *Classifier {
	c, err := NewClassifier(floats, ints)
	if err != nil {
		panic(err)
	}
	return c
}

// Kind returns the kind registered for name.
func (c *Classifier) Kind(name string) Kind {
	if c == nil {
		return KindString
	}
	switch {
	case c.floats.Has(name):
		return KindFloat
	case c.ints.Has(name):
		return KindInt
	default:
		return KindString
	}
}

// Value is a metric parsed according to its kind.
type Value struct {
	Kind  Kind
	Float float64
	Int   int64
	Str   string
	// Valid is false when the raw text did not parse as the metric's kind.
	Valid bool
}

// Parse converts raw according to kind.
func Parse(kind Kind, raw string) Value {
	raw = strings.TrimSpace(raw)
	v := Value{Kind: kind, Str: raw}
	switch kind {
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return v
		}
		v.Float, v.Valid = f, true
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// pidstat occasionally prints integral columns with a fraction
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil {
				return v
			}
			i = int64(f)
		}
		v.Int, v.Valid = i, true
	default:
		v.Valid = true
	}
	return v
}

// Parse classifies name and parses raw.
func (c *Classifier) Parse(name, raw string) Value {
	return Parse(c.Kind(name), raw)
}

// Number returns the value as a float64 for threshold comparisons.
func (v Value) Number() float64 {
	switch {
	case !v.Valid:
		return math.Inf(-1)
	case v.Kind == KindFloat:
		return v.Float
	case v.Kind == KindInt:
		return float64(v.Int)
	default:
		return math.NaN()
	}
}

// Compare orders a against b: -1, 0 or 1. Invalid values sort below valid ones.
func Compare(a, b Value) int {
	if a.Valid != b.Valid {
		if a.Valid {
			return 1
		}
		return -1
	}
	switch a.Kind {
	case KindFloat:
		return cmpOrdered(a.Float, b.Float)
	case KindInt:
		return cmpOrdered(a.Int, b.Int)
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether v passes a ">= threshold" filter. A nil threshold and string
// metrics always pass.
func (v Value) AtLeast(threshold *float64) bool {
	if threshold == nil || v.Kind == KindString {
		return true
	}
	if !v.Valid {
		return false
	}
	return v.Number() >= *threshold
}

// Format renders v the way tables print it.
func (v Value) Format() string {
	if !v.Valid {
		return v.Str
	}
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', 2, 64)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Str
	}
}

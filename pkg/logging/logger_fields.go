package logging

import (
	"math"
	"strconv"
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Float64 carries NaN and ±Inf as strings since JSON cannot encode them.
func Float64(key string, value float64) Field {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Field{Key: key, Value: strconv.FormatFloat(value, 'g', -1, 64)}
	}
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Harness field helpers

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}

func GraphName(name string) Field {
	return String("graph", name)
}

func NodeID(id string) Field {
	return String("node_id", id)
}

// EdgeKey renders an unordered node pair as "a--b".
func EdgeKey(a, b string) Field {
	return String("edge", a+"--"+b)
}

func Replicate(id string) Field {
	return String("replicate", id)
}

func SweepPoint(index int) Field {
	return Int("sweep_point", index)
}

func Integration(id string) Field {
	return String("integration", id)
}

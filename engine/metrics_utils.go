package engine

import (
	"expvar"
	"fmt"
	"time"
)

// latencyBuckets are the upper bounds, in seconds, of the latency histograms.
var latencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0}

// observeLatency records one observation in a cumulative histogram map.
func observeLatency(histMap *expvar.Map, durationSeconds float64) {
	if histMap == nil {
		return
	}
	if c, ok := histMap.Get("count").(*expvar.Int); ok {
		c.Add(1)
	}
	if s, ok := histMap.Get("sum").(*expvar.Float); ok {
		s.Add(durationSeconds)
	}
	for _, b := range latencyBuckets {
		if durationSeconds > b {
			continue
		}
		if bucket, ok := histMap.Get(fmt.Sprintf("le_%.4f", b)).(*expvar.Int); ok {
			bucket.Add(1)
		}
	}
	if inf, ok := histMap.Get("le_inf").(*expvar.Int); ok {
		inf.Add(1)
	}
}

// observeSince is observeLatency for a start time.
func observeSince(histMap *expvar.Map, start time.Time) {
	observeLatency(histMap, time.Since(start).Seconds())
}

// publishExpvarInt returns the global Int called name, reset to zero, creating
// it when absent. It panics if name holds another type.
func publishExpvarInt(name string) *expvar.Int {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		iv.Set(0)
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}

// publishExpvarFloat is publishExpvarInt for Float.
func publishExpvarFloat(name string) *expvar.Float {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewFloat(name)
	}
	if fv, ok := v.(*expvar.Float); ok {
		fv.Set(0)
		return fv
	}
	panic(fmt.Sprintf("expvar: trying to publish Float %s but variable already exists with different type %T", name, v))
}

// publishExpvarMap returns the global Map called name, creating it when
// absent. NewEngineMetrics resets its buckets.
func publishExpvarMap(name string) *expvar.Map {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewMap(name)
	}
	if mv, ok := v.(*expvar.Map); ok {
		return mv
	}
	panic(fmt.Sprintf("expvar: trying to publish Map %s but variable already exists with different type %T", name, v))
}

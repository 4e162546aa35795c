package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/atharv3903/routeplay/internal/model"
)

type Result struct {
	Clients    int
	Total      int64
	Errors     int64
	Rejected   int64
	Hits       int64
	AvgLatency float64
	P50        float64
	P95        float64
	P99        float64
	Throughput float64
	Cache      model.CacheStats
}

func (r Result) HitRate() float64 {
	ok := r.Total - r.Errors - r.Rejected
	if ok <= 0 {
		return 0
	}
	return float64(r.Hits) / float64(ok) * 100
}

func writeCSV(w io.Writer, results []Result) {
	fmt.Fprintln(w, "clients,requests,errors,rejected,hit_rate_pct,avg_ms,p50_ms,p95_ms,p99_ms,throughput_rps,evictions")
	for _, r := range results {
		fmt.Fprintf(w, "%d,%d,%d,%d,%.1f,%.4f,%.2f,%.2f,%.2f,%.2f,%d\n",
			r.Clients, r.Total, r.Errors, r.Rejected, r.HitRate(),
			r.AvgLatency, r.P50, r.P95, r.P99, r.Throughput, r.Cache.Evictions)
	}
}

func computeAvg(l []time.Duration) float64 {
	if len(l) == 0 {
		return 0
	}
	var sum time.Duration
	for _, x := range l {
		sum += x
	}
	return float64(sum.Microseconds()) / 1000 / float64(len(l))
}

func computePercentiles(l []time.Duration) (p50, p95, p99 float64) {
	if len(l) == 0 {
		return 0, 0, 0
	}
	tmp := make([]time.Duration, len(l))
	copy(tmp, l)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	idx := func(p float64) int {
		i := int(float64(len(tmp)) * p)
		if i >= len(tmp) {
			i = len(tmp) - 1
		}
		return i
	}
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	return ms(tmp[idx(0.50)]), ms(tmp[idx(0.95)]), ms(tmp[idx(0.99)])
}

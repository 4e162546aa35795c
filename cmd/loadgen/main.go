package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/geo"
	"github.com/atharv3903/routeplay/internal/logging"
	"github.com/atharv3903/routeplay/internal/model"
)

func main() {
	var (
		server   = flag.String("server", "http://127.0.0.1:8080", "routeplay server")
		clients  = flag.String("clients", "1,2,4,8,16", "comma separated worker counts")
		duration = flag.Duration("duration", 10*time.Second, "run length per worker count")
		csvPath  = flag.String("csv", "", "write results as CSV here")
		level    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := logging.New(os.Stderr, *level)
	slog.SetDefault(log)

	counts, err := parseCounts(*clients)
	if err != nil {
		log.Error("bad -clients", "err", err)
		os.Exit(2)
	}

	transport := &http.Transport{
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 500,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	n, err := vertexCount(client, *server)
	if err != nil {
		log.Error("load vertices", "err", err)
		os.Exit(1)
	}
	log.Info("loaded vertices", "count", n)

	// clear cache before each run to avoid cumulative stats
	var results []Result
	for _, c := range counts {
		if err := clearCache(client, *server); err != nil {
			log.Error("clear cache", "err", err)
			os.Exit(1)
		}
		log.Info("running", "clients", c, "duration", *duration)
		r := run(client, *server, n, c, *duration)
		if stats, err := cacheStats(client, *server); err == nil {
			r.Cache = stats
		}
		results = append(results, r)
	}

	fmt.Println("\n========== LOADGEN RESULTS (CSV) ==========")
	writeCSV(os.Stdout, results)
	fmt.Println("===========================================")

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Error("create csv", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		writeCSV(f, results)
	}
}

// run drives the server with a closed loop of workers asking for random
// incident vertices.
func run(client *http.Client, server string, n, workers int, dur time.Duration) Result {
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies []time.Duration
		res       = Result{Clients: workers}
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))

			for ctx.Err() == nil {
				v := rnd.Intn(n)
				start := time.Now()
				code, hit, err := getRoute(ctx, client, server, v)
				lat := time.Since(start)

				mu.Lock()
				res.Total++
				switch {
				case err != nil:
					if ctx.Err() == nil {
						res.Errors++
					}
				case code == http.StatusBadRequest:
					res.Rejected++
				case code != http.StatusOK:
					res.Errors++
				default:
					latencies = append(latencies, lat)
					if hit {
						res.Hits++
					}
				}
				mu.Unlock()
			}
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()

	res.AvgLatency = computeAvg(latencies)
	res.P50, res.P95, res.P99 = computePercentiles(latencies)
	res.Throughput = float64(len(latencies)) / dur.Seconds()
	return res
}

func getRoute(ctx context.Context, client *http.Client, server string, v int) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/route/%d", server, v), nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var rr model.RouteResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return resp.StatusCode, false, err
		}
	}
	return resp.StatusCode, rr.CacheHit, nil
}

func vertexCount(client *http.Client, server string) (int, error) {
	resp, err := client.Get(server + "/api/vertices")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var coords []geo.Coordinate
	if err := json.NewDecoder(resp.Body).Decode(&coords); err != nil {
		return 0, err
	}
	if len(coords) == 0 {
		return 0, fmt.Errorf("server has no vertices")
	}
	return len(coords), nil
}

func clearCache(client *http.Client, server string) error {
	resp, err := client.Post(server+"/debug/clear_cache", "text/plain", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clear cache: %s", resp.Status)
	}
	return nil
}

func cacheStats(client *http.Client, server string) (model.CacheStats, error) {
	var s model.CacheStats
	resp, err := client.Get(server + "/debug/cache_stats")
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&s)
	return s, err
}

func parseCounts(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("worker count %q", p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no worker counts")
	}
	return out, nil
}

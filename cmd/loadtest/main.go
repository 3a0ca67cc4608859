// Command loadtest drives concurrent PUTs against a running cluster
// and reports latency percentiles and throughput, replacing the
// teacher's much larger tests/performance harness with a single
// focused tool aimed at this repository's write path.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	targets := flag.String("targets", "http://localhost:8081", "Comma-separated node base URLs to spread requests across")
	partition := flag.Int("partition", 1, "Partition ID to write into")
	concurrency := flag.Int("concurrency", 8, "Number of concurrent workers")
	requests := flag.Int("requests", 500, "Total number of PUT requests to issue")
	objectSize := flag.Int("object-size", 1024, "Bytes per object body")
	w := flag.Int("w", 0, "Write quorum override; 0 uses the node's default")

	flag.Parse()

	nodes := strings.Split(*targets, ",")
	body := make([]byte, *objectSize)
	rand.Read(body)

	client := &http.Client{Timeout: 10 * time.Second}

	var (
		mu         sync.Mutex
		latencies  []time.Duration
		successes  int64
		failures   int64
	)

	work := make(chan int, *requests)
	for i := 0; i < *requests; i++ {
		work <- i
	}
	close(work)

	start := time.Now()
	var wg sync.WaitGroup
	for worker := 0; worker < *concurrency; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range work {
				node := nodes[i%len(nodes)]
				key := fmt.Sprintf("loadtest-%d-%d", workerID, i)
				url := fmt.Sprintf("%s/objects/%d/%s", node, *partition, key)
				if *w > 0 {
					url += fmt.Sprintf("?w=%d", *w)
				}

				reqStart := time.Now()
				resp, err := client.Post(url, "application/octet-stream", bytes.NewReader(body))
				elapsed := time.Since(reqStart)

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()

				if err != nil || resp.StatusCode >= 400 {
					atomic.AddInt64(&failures, 1)
				} else {
					atomic.AddInt64(&successes, 1)
				}
				if resp != nil {
					resp.Body.Close()
				}
			}
		}(worker)
	}
	wg.Wait()
	total := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("requests:     %d\n", *requests)
	fmt.Printf("concurrency:  %d\n", *concurrency)
	fmt.Printf("successes:    %d\n", successes)
	fmt.Printf("failures:     %d\n", failures)
	fmt.Printf("elapsed:      %s\n", total)
	fmt.Printf("throughput:   %.1f req/s\n", float64(*requests)/total.Seconds())
	fmt.Printf("p50 latency:  %s\n", percentile(latencies, 0.50))
	fmt.Printf("p95 latency:  %s\n", percentile(latencies, 0.95))
	fmt.Printf("p99 latency:  %s\n", percentile(latencies, 0.99))

	if failures > 0 {
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

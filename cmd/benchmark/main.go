package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	successOK     uint64 // Applied transfers
	reject409     uint64 // Duplicate suppressions
	reject422     uint64 // Domain rejections (insufficient funds etc.)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Number of accounts to create and pay between")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	if err := createAccounts(); err != nil {
		log.Fatalf("Account setup failed: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// createAccounts seeds bench-1..bench-N through the command endpoint so the
// benchmark exercises the same path as production traffic. AlreadyExists
// conflicts on re-runs are fine.
func createAccounts() error {
	client := &http.Client{Timeout: 5 * time.Second}
	for i := 1; i <= accounts; i++ {
		cmd := map[string]interface{}{
			"kind":       "ensure_account",
			"request_id": uuid.NewString(),
			"actor_id":   benchUser(i),
		}
		resp, err := postCommand(client, cmd)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != 200 && resp.StatusCode != 409 {
			return fmt.Errorf("unexpected status %d creating %s", resp.StatusCode, benchUser(i))
		}
	}
	return nil
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := generateAccounts()

		cmd := map[string]interface{}{
			"kind":       "pay",
			"request_id": uuid.NewString(),
			"actor_id":   benchUser(from),
			"target_id":  benchUser(to),
			"amount":     int64(1),
		}

		resp, err := postCommand(client, cmd)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&successOK, 1)
		case 409:
			atomic.AddUint64(&reject409, 1)
		case 422:
			atomic.AddUint64(&reject422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func postCommand(client *http.Client, cmd map[string]interface{}) (*http.Response, error) {
	body, _ := json.Marshal(cmd)
	req, _ := http.NewRequest("POST", targetURL+"/api/v1/commands", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func benchUser(i int) string {
	return fmt.Sprintf("bench-%d", i)
}

func generateAccounts() (int, int) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to accounts 1 & 2
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1, 2
			}
			return 2, 1
		}
	}

	// Uniform Random
	a := rand.Intn(accounts) + 1
	b := rand.Intn(accounts) + 1
	for a == b {
		b = rand.Intn(accounts) + 1
	}
	return a, b
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&successOK)
	r409 := atomic.LoadUint64(&reject409)
	r422 := atomic.LoadUint64(&reject422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	rejectRate := float64(r422) / float64(total) * 100

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"transfers_ok":    ok,
		"duplicates":      r409,
		"domain_rejects":  r422,
		"reject_rate_pct": rejectRate,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}

// Benchmark tool for measuring fraudscore against a labeled transactions CSV.
//
// Usage:
//
//	go run ./cmd/benchmark -csv data/creditcard.csv -url http://localhost:8080
//
// This tool:
//  1. Reads the labeled CSV (Time, V1..V28, Amount, Class)
//  2. Posts it to POST /score in chunks, stripped of the Class column
//  3. Compares each Prediction with the actual label
//  4. Prints the classification report, confusion matrix and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/evaluation"
)

// chunk is one batch posted to the server with its ground truth.
type chunk struct {
	index   int
	records []domain.TransactionRecord
}

// Stats tracks benchmark progress.
type Stats struct {
	mu     sync.Mutex
	matrix evaluation.ConfusionMatrix

	Batches     int64
	Rows        int64
	Errors      int64
	CacheHits   int64
	Reviews     int64
	LatencyMs   int64
	SlowestMs   int64
	ServerScore int64 // sum of server-side ScoreMs
}

func main() {
	csvPath := flag.String("csv", "data/creditcard.csv", "Path to the labeled transactions CSV")
	baseURL := flag.String("url", "http://localhost:8080", "fraudscore base URL")
	email := flag.String("email", "benchmark@example.com", "Account used for scoring (created if missing)")
	password := flag.String("password", "benchmark-pass", "Account password")
	limit := flag.Int("limit", 0, "Maximum transactions to score (0 = all)")
	chunkSize := flag.Int("chunk", 5000, "Rows per POST /score batch")
	workers := flag.Int("workers", 4, "Number of concurrent uploads")
	threshold := flag.Float64("threshold", domain.DefaultThreshold, "Decision threshold sent with every batch")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *chunkSize < 1 || *workers < 1 {
		fmt.Println("chunk and workers must be positive")
		os.Exit(1)
	}

	fmt.Println("FRAUDSCORE BENCHMARK")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Chunk Size:  %d\n", *chunkSize)
	fmt.Printf("Threshold:   %g\n", *threshold)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: fraudscore not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running with a trained bundle:")
		fmt.Println("  go run ./cmd/train && go run ./cmd/fraudscore")
		os.Exit(1)
	}
	fmt.Println("fraudscore is healthy")

	client := &http.Client{Timeout: 5 * time.Minute}
	token, err := session(client, *baseURL, *email, *password)
	if err != nil {
		fmt.Printf("ERROR: failed to log in: %v\n", err)
		os.Exit(1)
	}

	records, err := readLabeled(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	frauds := 0
	for _, rec := range records {
		if *rec.Label == domain.PredictionFraud {
			frauds++
		}
	}
	fmt.Printf("Loaded %d transactions\n", len(records))
	fmt.Printf("  - Fraud:     %d (%.3f%%)\n", frauds, 100*float64(frauds)/float64(len(records)))
	fmt.Printf("  - Non-fraud: %d\n", len(records)-frauds)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	stats := run(client, *baseURL, token, records, *chunkSize, *workers, *threshold, *verbose)
	printResults(stats, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}

// session logs in, signing the account up first when it does not exist.
func session(client *http.Client, baseURL, email, password string) (string, error) {
	creds, _ := json.Marshal(map[string]string{"email": email, "password": password})

	login := func() (*http.Response, error) {
		return client.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(creds))
	}

	resp, err := login()
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		signup, err := client.Post(baseURL+"/auth/signup", "application/json", bytes.NewReader(creds))
		if err != nil {
			return "", err
		}
		signup.Body.Close()
		if signup.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("signup: status %d", signup.StatusCode)
		}
		if resp, err = login(); err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Token, nil
}

func readLabeled(path string, limit int) ([]domain.TransactionRecord, error) {
	frame, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if frame.ColumnIndex(domain.ColumnLabel) < 0 {
		return nil, &domain.SchemaError{Missing: []string{domain.ColumnLabel}}
	}
	if limit > 0 && len(frame.Rows) > limit {
		frame.Rows = frame.Rows[:limit]
	}
	records, err := dataset.Records(frame)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	return records, nil
}

func run(client *http.Client, baseURL, token string, records []domain.TransactionRecord, size, numWorkers int, threshold float64, verbose bool) *Stats {
	stats := &Stats{}

	work := make(chan chunk, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for c := range work {
				start := time.Now()
				result, err := scoreChunk(client, baseURL, token, c.records, threshold)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&stats.LatencyMs, elapsed)
				atomic.AddInt64(&stats.Batches, 1)
				for {
					slowest := atomic.LoadInt64(&stats.SlowestMs)
					if elapsed <= slowest || atomic.CompareAndSwapInt64(&stats.SlowestMs, slowest, elapsed) {
						break
					}
				}

				if err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					fmt.Printf("ERROR: batch %d -> %v\n", c.index, err)
					continue
				}
				if len(result.Records) != len(c.records) {
					atomic.AddInt64(&stats.Errors, 1)
					fmt.Printf("ERROR: batch %d returned %d rows, sent %d\n", c.index, len(result.Records), len(c.records))
					continue
				}

				atomic.AddInt64(&stats.Rows, int64(len(c.records)))
				atomic.AddInt64(&stats.Reviews, int64(len(result.Reviews)))
				atomic.AddInt64(&stats.ServerScore, result.Metadata.ScoreMs)
				if result.Metadata.CacheHit {
					atomic.AddInt64(&stats.CacheHits, 1)
				}

				stats.mu.Lock()
				for i, rec := range c.records {
					stats.matrix.Add(*rec.Label, result.Records[i].Prediction)
				}
				stats.mu.Unlock()

				if verbose {
					fmt.Printf("batch %4d | rows %6d | frauds %4d | %6d ms | cache %v\n",
						c.index, result.Total, result.FraudCount, elapsed, result.Metadata.CacheHit)
				}
			}
		}()
	}

	for i, n := 0, 0; n < len(records); i, n = i+1, n+size {
		end := min(n+size, len(records))
		work <- chunk{index: i, records: records[n:end]}
	}
	close(work)

	wg.Wait()
	return stats
}

func scoreChunk(client *http.Client, baseURL, token string, records []domain.TransactionRecord, threshold float64) (*domain.BatchResult, error) {
	var body bytes.Buffer
	w := csv.NewWriter(&body)
	if err := w.Write(domain.FeatureNames()); err != nil {
		return nil, err
	}
	row := make([]string, domain.FeatureCount)
	for _, rec := range records {
		for i, v := range rec.Features {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	url := baseURL + "/score?threshold=" + strconv.FormatFloat(threshold, 'g', -1, 64)
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, errors.New("status " + strconv.Itoa(resp.StatusCode) + ": " + e.Error)
	}

	var result domain.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(s *Stats, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Rows Scored:  %d\n", s.Rows)
	fmt.Printf("   Batches:      %d\n", s.Batches)
	fmt.Printf("   Errors:       %d\n", s.Errors)
	fmt.Printf("   Cache Hits:   %d\n", s.CacheHits)
	fmt.Printf("   Review Finds: %d\n", s.Reviews)

	report := evaluation.FromMatrix(s.matrix)

	fmt.Printf("\nCLASSIFICATION REPORT\n")
	report.WriteText(os.Stdout)

	fmt.Printf("\nCONFUSION MATRIX [[TN FP] [FN TP]]\n")
	s.matrix.WriteMatrix(os.Stdout)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if frauds := s.matrix.TruePositives + s.matrix.FalseNegatives; frauds > 0 {
		fmt.Printf("   Fraud Detected:  %d / %d (%.2f%%)\n", s.matrix.TruePositives, frauds, 100*float64(s.matrix.TruePositives)/float64(frauds))
		fmt.Printf("   Fraud Missed:    %d / %d (%.2f%%)\n", s.matrix.FalseNegatives, frauds, 100*float64(s.matrix.FalseNegatives)/float64(frauds))
	}
	if legit := s.matrix.TrueNegatives + s.matrix.FalsePositives; legit > 0 {
		fmt.Printf("   False Alarms:    %d / %d (%.2f%%)\n", s.matrix.FalsePositives, legit, 100*float64(s.matrix.FalsePositives)/float64(legit))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if s.Batches > 0 {
		fmt.Printf("   Avg Batch:        %.2f ms\n", float64(s.LatencyMs)/float64(s.Batches))
		fmt.Printf("   Slowest Batch:    %d ms\n", s.SlowestMs)
		fmt.Printf("   Server Scoring:   %d ms total\n", s.ServerScore)
	}
	if secs := duration.Seconds(); secs > 0 {
		fmt.Printf("   Throughput:       %.0f rows/sec\n", float64(s.Rows)/secs)
	}

	fmt.Println()
}

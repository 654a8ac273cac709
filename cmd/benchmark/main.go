// Benchmark tool that drives synthetic affiliate traffic through a
// running Beam instance.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 5000
//
// This tool:
//   1. Seeds a commission rule for every synthetic product
//   2. Generates shopper journeys (click, optional delay, sale)
//   3. Replays a fraction of sales to exercise idempotent intake
//   4. Reports attribution split, fraud flags, throughput, and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ClickRequest mirrors the POST /clicks payload.
type ClickRequest struct {
	ResellerID  string `json:"resellerId"`
	ProductID   string `json:"productId"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
}

// SaleRequest mirrors the POST /sales payload.
type SaleRequest struct {
	SaleEventID      string  `json:"saleEventId,omitempty"`
	ResellerID       string  `json:"resellerId"`
	ProductID        string  `json:"productId"`
	Amount           float64 `json:"amount"`
	CustomerEmail    string  `json:"customerEmail,omitempty"`
	PaymentReference string  `json:"paymentReference,omitempty"`
}

// SaleResponse mirrors the POST /sales response.
type SaleResponse struct {
	Commission *struct {
		ID         string  `json:"id"`
		Amount     float64 `json:"amount"`
		FraudScore int     `json:"fraudScore"`
		Status     string  `json:"status"`
	} `json:"commission"`
	Attribution *struct {
		MatchedClickID string `json:"matchedClickId"`
		Method         string `json:"method"`
	} `json:"attribution"`
	Created bool `json:"created"`
}

// CommissionRule mirrors the PUT /rules/{productId} payload.
type CommissionRule struct {
	ProductID          string  `json:"productId"`
	ProductName        string  `json:"productName"`
	BaseCommissionPct  float64 `json:"baseCommissionPct"`
	BonusCommissionPct float64 `json:"bonusCommissionPct"`
	MinimumSales       int64   `json:"minimumSales"`
	IsActive           bool    `json:"isActive"`
}

// journey is one unit of synthetic work: a shopper who may or may not
// have clicked a referral link before buying.
type journey struct {
	Seq       int
	Direct    bool // sale without a prior click
	Duplicate bool // replay the sale request after the first send
}

// Metrics tracks benchmark results.
type Metrics struct {
	SalesSent    int64
	Created      int64
	Deduplicated int64

	ClickMatched int64
	Direct       int64

	Flagged      int64
	PendingTotal int64

	TotalErrors    int64
	SaleLatencyMs  int64
	CommissionCent int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Beam base URL")
	count := flag.Int("count", 1000, "Number of shopper journeys to run")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	resellers := flag.Int("resellers", 25, "Distinct reseller IDs to spread traffic over")
	products := flag.Int("products", 5, "Distinct product IDs (a rule is seeded for each)")
	directRate := flag.Float64("direct", 0.2, "Fraction of sales with no prior click (0.0-1.0)")
	dupRate := flag.Float64("dup", 0.1, "Fraction of sales replayed to test idempotency (0.0-1.0)")
	delay := flag.Duration("delay", 0, "Pause between click and sale (0 trips the velocity floor)")
	flagThreshold := flag.Int("flag-threshold", 70, "Fraud score above which a commission counts as flagged")
	verbose := flag.Bool("verbose", false, "Print each journey result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           BEAM BENCHMARK - Affiliate Sale Pipeline            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nBeam URL:     %s\n", *baseURL)
	fmt.Printf("Journeys:     %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Resellers:    %d\n", *resellers)
	fmt.Printf("Products:     %d\n", *products)
	fmt.Printf("Direct Rate:  %.2f\n", *directRate)
	fmt.Printf("Dup Rate:     %.2f\n", *dupRate)
	fmt.Printf("Click Delay:  %v\n", *delay)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Beam not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Beam is running:")
		fmt.Println("  go run cmd/beam/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Beam is healthy")

	if err := seedRules(*baseURL, *products); err != nil {
		fmt.Printf("ERROR: Failed to seed commission rules: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Seeded %d commission rules\n", *products)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *count, *workers, *resellers, *products, *directRate, *dupRate, *delay, *flagThreshold, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration, *flagThreshold)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func seedRules(baseURL string, products int) error {
	client := &http.Client{Timeout: 10 * time.Second}
	for p := 0; p < products; p++ {
		rule := CommissionRule{
			ProductID:          productID(p),
			ProductName:        fmt.Sprintf("Benchmark Product %d", p),
			BaseCommissionPct:  10,
			BonusCommissionPct: 5,
			MinimumSales:       50,
			IsActive:           true,
		}
		body, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPut, baseURL+"/rules/"+rule.ProductID, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rule %s: status %d", rule.ProductID, resp.StatusCode)
		}
	}
	return nil
}

func runBenchmark(baseURL string, count, numWorkers, resellers, products int, directRate, dupRate float64, delay time.Duration, flagThreshold int, verbose bool) *Metrics {
	metrics := &Metrics{}
	runID := time.Now().UnixNano()

	work := make(chan journey, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for j := range work {
				runJourney(client, baseURL, runID, j, resellers, products, delay, flagThreshold, metrics, verbose)
			}
		}()
	}

	for i := 0; i < count; i++ {
		work <- journey{
			Seq:       i,
			Direct:    rand.Float64() < directRate,
			Duplicate: rand.Float64() < dupRate,
		}
	}
	close(work)

	wg.Wait()
	return metrics
}

func runJourney(client *http.Client, baseURL string, runID int64, j journey, resellers, products int, delay time.Duration, flagThreshold int, m *Metrics, verbose bool) {
	resellerID := fmt.Sprintf("bench-reseller-%03d", j.Seq%resellers)
	product := productID(j.Seq % products)

	if !j.Direct {
		if err := sendClick(client, baseURL, resellerID, product); err != nil {
			atomic.AddInt64(&m.TotalErrors, 1)
			if verbose {
				fmt.Printf("ERROR: click %s -> %v\n", resellerID, err)
			}
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	sale := SaleRequest{
		SaleEventID:      fmt.Sprintf("bench-%d-sale-%06d", runID, j.Seq),
		ResellerID:       resellerID,
		ProductID:        product,
		Amount:           20 + rand.Float64()*480,
		CustomerEmail:    fmt.Sprintf("shopper-%d-%d@bench.test", runID, j.Seq),
		PaymentReference: fmt.Sprintf("bench-%d-pay-%06d", runID, j.Seq),
	}

	start := time.Now()
	result, err := sendSale(client, baseURL, sale)
	elapsed := time.Since(start).Milliseconds()

	atomic.AddInt64(&m.SaleLatencyMs, elapsed)
	atomic.AddInt64(&m.SalesSent, 1)

	if err != nil {
		atomic.AddInt64(&m.TotalErrors, 1)
		if verbose {
			fmt.Printf("ERROR: sale %s -> %v\n", sale.SaleEventID, err)
		}
		return
	}

	tallySale(m, result, flagThreshold)

	if j.Duplicate {
		atomic.AddInt64(&m.SalesSent, 1)
		retry, err := sendSale(client, baseURL, sale)
		if err != nil {
			atomic.AddInt64(&m.TotalErrors, 1)
		} else if !retry.Created {
			atomic.AddInt64(&m.Deduplicated, 1)
		}
	}

	if verbose {
		method := "direct"
		score := 0
		amount := 0.0
		if result.Attribution != nil {
			method = result.Attribution.Method
		}
		if result.Commission != nil {
			score = result.Commission.FraudScore
			amount = result.Commission.Amount
		}
		fmt.Printf("  %-20s | %-11s | Sale: $%8.2f | Commission: $%7.2f | Score: %3d\n",
			resellerID, method, sale.Amount, amount, score)
	}
}

func tallySale(m *Metrics, result *SaleResponse, flagThreshold int) {
	if result.Created {
		atomic.AddInt64(&m.Created, 1)
	} else {
		atomic.AddInt64(&m.Deduplicated, 1)
	}
	if result.Attribution != nil {
		if result.Attribution.Method == "click-match" {
			atomic.AddInt64(&m.ClickMatched, 1)
		} else {
			atomic.AddInt64(&m.Direct, 1)
		}
	}
	if result.Commission != nil {
		if result.Commission.FraudScore > flagThreshold {
			atomic.AddInt64(&m.Flagged, 1)
		}
		if result.Commission.Status == "pending" {
			atomic.AddInt64(&m.PendingTotal, 1)
		}
		atomic.AddInt64(&m.CommissionCent, int64(result.Commission.Amount*100))
	}
}

func sendClick(client *http.Client, baseURL, resellerID, product string) error {
	body, err := json.Marshal(ClickRequest{
		ResellerID:  resellerID,
		ProductID:   product,
		UTMSource:   "benchmark",
		UTMCampaign: "load",
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(baseURL+"/clicks", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func sendSale(client *http.Client, baseURL string, sale SaleRequest) (*SaleResponse, error) {
	body, err := json.Marshal(sale)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/sales", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration, flagThreshold int) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Sales Sent:       %d\n", m.SalesSent)
	fmt.Printf("   Created:          %d\n", m.Created)
	fmt.Printf("   Deduplicated:     %d\n", m.Deduplicated)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n🔗 ATTRIBUTION\n")
	attributed := m.ClickMatched + m.Direct
	if attributed > 0 {
		fmt.Printf("   Click-Matched:    %d (%.2f%%)\n", m.ClickMatched, 100*float64(m.ClickMatched)/float64(attributed))
		fmt.Printf("   Direct:           %d (%.2f%%)\n", m.Direct, 100*float64(m.Direct)/float64(attributed))
	}

	fmt.Printf("\n🚩 FRAUD FLAGS\n")
	fmt.Printf("   Flagged (>%d):    %d\n", flagThreshold, m.Flagged)
	fmt.Printf("   Pending Review:   %d\n", m.PendingTotal)
	if m.Created > 0 {
		fmt.Printf("   Flag Rate:        %.2f%%\n", 100*float64(m.Flagged)/float64(m.Created))
	}

	fmt.Printf("\n💰 COMMISSIONS\n")
	fmt.Printf("   Total Earned:     $%.2f\n", float64(m.CommissionCent)/100)
	if m.Created > 0 {
		fmt.Printf("   Avg Commission:   $%.2f\n", float64(m.CommissionCent)/100/float64(m.Created))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.SalesSent > 0 {
		avgMs := float64(m.SaleLatencyMs) / float64(m.SalesSent)
		tps := float64(m.SalesSent) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sales/sec\n", tps)
	}

	fmt.Println()
}

func productID(n int) string {
	return fmt.Sprintf("bench-product-%02d", n)
}

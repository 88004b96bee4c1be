package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/banquet-slot-booking/internal/auth"
	"github.com/hackgods/banquet-slot-booking/internal/config"
	"github.com/hackgods/banquet-slot-booking/internal/inventory"
	"github.com/hackgods/banquet-slot-booking/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Users        int
	Dates        int
	MaxSlots     int
	HoldRatio    float64
	ReleaseRatio float64
	ReadRatio    float64
}

type heldSlots struct {
	holdID uuid.UUID
	token  string
}

// DataPool holds the fixtures shared by all workers.
type DataPool struct {
	Halls  []uuid.UUID
	Dates  []string
	Tokens []string
	mu     sync.Mutex
	holds  []heldSlots
}

func (dp *DataPool) AddHold(h heldSlots) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.holds = append(dp.holds, h)
}

// TakeHold removes and returns a random outstanding hold.
func (dp *DataPool) TakeHold(rng *rand.Rand) (heldSlots, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.holds) == 0 {
		return heldSlots{}, false
	}
	idx := rng.Intn(len(dp.holds))
	h := dp.holds[idx]
	dp.holds[idx] = dp.holds[len(dp.holds)-1]
	dp.holds = dp.holds[:len(dp.holds)-1]
	return h, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Hold      OperationMetrics
	Release   OperationMetrics
	Inventory OperationMetrics
	Busy      int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("hold", cfg.HoldRatio),
		zap.Float64("release", cfg.ReleaseRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := sim.loadDataPool(ctx, auth.NewTokens(baseCfg.JWTSecret, time.Hour))
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	sim.pool = dataPool

	log.Info("data pool loaded",
		zap.Int("halls", len(dataPool.Halls)),
		zap.Int("dates", len(dataPool.Dates)),
		zap.Int("users", len(dataPool.Tokens)),
	)

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		Users:        getInt("SIM_USERS", 200),
		Dates:        getInt("SIM_DATES", 3),
		MaxSlots:     getInt("SIM_MAX_SLOTS", 6),
		HoldRatio:    getFloat("SIM_HOLD_RATIO", 0.6),
		ReleaseRatio: getFloat("SIM_RELEASE_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
	}

	// Normalize ratios
	total := cfg.HoldRatio + cfg.ReleaseRatio + cfg.ReadRatio
	if total > 0 {
		cfg.HoldRatio /= total
		cfg.ReleaseRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Users <= 0 || cfg.Dates <= 0 {
		return fmt.Errorf("SIM_USERS and SIM_DATES must be > 0")
	}
	if cfg.MaxSlots <= 0 || cfg.MaxSlots > inventory.SlotsPerDay {
		return fmt.Errorf("SIM_MAX_SLOTS must be in 1..%d", inventory.SlotsPerDay)
	}
	return nil
}

// loadDataPool lists halls from the API and mints customer tokens locally.
// Few dates and many users keep contention on the same calendars high.
func (s *Simulator) loadDataPool(ctx context.Context, tokens *auth.Tokens) (*DataPool, error) {
	dataPool := &DataPool{}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/halls", nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list halls: %w", err)
	}
	defer resp.Body.Close()

	var halls []struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&halls); err != nil {
		return nil, fmt.Errorf("decode halls: %w", err)
	}
	for _, h := range halls {
		dataPool.Halls = append(dataPool.Halls, h.ID)
	}
	if len(dataPool.Halls) == 0 {
		return nil, fmt.Errorf("no halls loaded")
	}

	start := time.Now().UTC().AddDate(0, 1, 0)
	for i := 0; i < s.config.Dates; i++ {
		dataPool.Dates = append(dataPool.Dates, start.AddDate(0, 0, i).Format(inventory.DateLayout))
	}

	for i := 0; i < s.config.Users; i++ {
		tok, err := tokens.Issue(auth.Actor{UserID: uuid.New(), Role: auth.RoleCustomer})
		if err != nil {
			return nil, err
		}
		dataPool.Tokens = append(dataPool.Tokens, tok)
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.HoldRatio:
				s.doHold(ctx, rng)
			case r < s.config.HoldRatio+s.config.ReleaseRatio:
				s.doRelease(ctx, rng)
			default:
				s.doReadInventory(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doHold(ctx context.Context, rng *rand.Rand) {
	hallID := s.pool.Halls[rng.Intn(len(s.pool.Halls))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	token := s.pool.Tokens[rng.Intn(len(s.pool.Tokens))]

	n := 1 + rng.Intn(s.config.MaxSlots)
	first := rng.Intn(inventory.SlotsPerDay - n + 1)
	slots := make([]int, n)
	for i := range slots {
		slots[i] = first + i
	}

	body, _ := json.Marshal(map[string]any{
		"hallId":      hallID,
		"date":        date,
		"slotIndices": slots,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/bookings/hold", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			success = true
			var hold struct {
				HoldID uuid.UUID `json:"holdId"`
			}
			if json.NewDecoder(resp.Body).Decode(&hold) == nil && hold.HoldID != uuid.Nil {
				s.pool.AddHold(heldSlots{holdID: hold.HoldID, token: token})
			}
		case http.StatusConflict:
			conflict = true
		case http.StatusServiceUnavailable:
			atomic.AddInt64(&s.metrics.Busy, 1)
		}
	}

	s.metrics.Hold.Record(latency, success, conflict)
}

func (s *Simulator) doRelease(ctx context.Context, rng *rand.Rand) {
	h, ok := s.pool.TakeHold(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/bookings/hold/%s", s.config.APIBaseURL, h.holdID), nil)
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusNoContent
	}

	s.metrics.Release.Record(latency, success, false)
}

func (s *Simulator) doReadInventory(ctx context.Context, rng *rand.Rand) {
	hallID := s.pool.Halls[rng.Intn(len(s.pool.Halls))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/halls/%s/inventory?date=%s", s.config.APIBaseURL, hallID, date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Inventory.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Calendars under load: %d halls x %d dates\n", len(s.pool.Halls), len(s.pool.Dates))
	fmt.Println()

	printOperationReport("Hold", &s.metrics.Hold)
	printOperationReport("Release", &s.metrics.Release)
	printOperationReport("Inventory read", &s.metrics.Inventory)

	if busy := atomic.LoadInt64(&s.metrics.Busy); busy > 0 {
		fmt.Printf("Calendar busy responses: %d\n", busy)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fernet/fernet-go"
	"github.com/google/uuid"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/api"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/appointment"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/correlation"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/fieldcipher"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/memstore"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/phone"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/reconcile"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/webhook"
)

type SimConfig struct {
	APIBaseURL string
	// InProcess serves the webhook from memory instead of calling
	// APIBaseURL, so correlation can be verified without Postgres.
	InProcess     bool
	Duration      time.Duration
	Workers       int
	ReverseRatio  float64 // share of calls whose end-of-call report arrives first
	ReplayRatio   float64 // share of bookings delivered twice
	ConflictRatio float64 // share of calls that also try a slot already taken
	Doctors       int
	DaysAhead     int
}

// callOutcome remembers what a call should end up as.
type callOutcome struct {
	appointmentID string
	seconds       float64
}

type Simulator struct {
	config  SimConfig
	baseURL string
	client  *http.Client
	metrics Metrics
	doctors []string

	mu       sync.Mutex
	booked   map[string]callOutcome
	lastSlot atomic.Value // bookingArgs of a recent successful booking

	appts  *memstore.Appointments
	pushes atomic.Int64
}

type bookingArgs struct {
	PatientName     string `json:"patient_name"`
	DoctorName      string `json:"doctor_name"`
	AppointmentTime string `json:"appointment_time"`
	PatientEmail    string `json:"patient_email,omitempty"`
	PatientPhone    string `json:"patient_phone,omitempty"`
	CallID          string `json:"call_id,omitempty"`
}

type webhookResult struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	AppointmentID string `json:"appointment_id"`
}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"duration", cfg.Duration.String(),
		"workers", cfg.Workers,
		"in_process", cfg.InProcess,
		"reverse_ratio", cfg.ReverseRatio,
		"replay_ratio", cfg.ReplayRatio,
		"conflict_ratio", cfg.ConflictRatio,
	)

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config:  cfg,
		baseURL: cfg.APIBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		booked:  make(map[string]callOutcome),
	}
	for i := 0; i < cfg.Doctors; i++ {
		sim.doctors = append(sim.doctors, "Dr. "+gofakeit.LastName())
	}

	shutdown := func() {}
	if cfg.InProcess {
		var err error
		shutdown, err = sim.startInProcess(logger)
		if err != nil {
			logger.Error("start in-process server", "error", err.Error())
			os.Exit(1)
		}
	}

	sim.Run(logger)
	// Drain queued pushes before counting them.
	shutdown()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		InProcess:     getEnv("SIM_IN_PROCESS", "false") == "true",
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ReverseRatio:  getFloat("SIM_REVERSE_RATIO", 0.5),
		ReplayRatio:   getFloat("SIM_REPLAY_RATIO", 0.1),
		ConflictRatio: getFloat("SIM_CONFLICT_RATIO", 0.1),
		Doctors:       getInt("SIM_DOCTORS", 10),
		DaysAhead:     getInt("SIM_DAYS_AHEAD", 60),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Doctors <= 0 || cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DOCTORS and SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

// startInProcess wires the webhook stack over in-memory stores and a
// throwaway key, and points the simulator at it.
func (s *Simulator) startInProcess(logger *logging.Logger) (func(), error) {
	var key fernet.Key
	if err := key.Generate(); err != nil {
		return nil, err
	}
	cipher, err := fieldcipher.New(key.Encode())
	if err != nil {
		return nil, err
	}

	quiet := logging.Discard()
	s.appts = memstore.NewAppointments()
	bookings := appointment.NewService(s.appts, nil, quiet)
	store := correlation.NewStore(memstore.NewCallLogs(), bookings, quiet)

	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	forwarder := reconcile.NewForwarder(reconcile.ForwarderConfig{
		BookingURL: downstream.URL,
		Timeout:    2 * time.Second,
		Workers:    4,
		QueueSize:  1024,
		Phone:      phone.NewNormalizer("US"),
		Logger:     quiet,
	})
	fwdCtx, stopForwarder := context.WithCancel(context.Background())
	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		_ = forwarder.Run(fwdCtx)
	}()

	engine := reconcile.NewEngine(reconcile.EngineConfig{
		Bookings:    bookings,
		Correlation: store,
		Cipher:      cipher,
		Dispatcher:  forwarder,
		Logger:      quiet,
	})
	router := api.NewRouter(api.RouterConfig{
		Appointments: bookings,
		Correlation:  store,
		Engine:       engine,
		Cipher:       cipher,
		Logger:       quiet,
	})

	srv := httptest.NewServer(router)
	s.baseURL = srv.URL
	logger.Info("in-process webhook server started", "url", srv.URL)
	return func() {
		srv.Close()
		stopForwarder()
		<-fwdDone
		downstream.Close()
	}, nil
}

func (s *Simulator) Run(logger *logging.Logger) {
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
	logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		s.simulateCall(ctx, rng)
	}
}

// simulateCall plays one call: a booking and an end-of-call report in
// either order, optionally a re-delivered booking and a clashing booking
// from another call.
func (s *Simulator) simulateCall(ctx context.Context, rng *rand.Rand) {
	callID := "sim-" + uuid.NewString()
	args := bookingArgs{
		PatientName:     gofakeit.Name(),
		DoctorName:      s.doctors[rng.Intn(len(s.doctors))],
		AppointmentTime: s.randomSlot(rng),
		PatientEmail:    gofakeit.Email(),
		CallID:          callID,
	}
	seconds := float64(30 + rng.Intn(870))

	var res webhookResult
	if rng.Float64() < s.config.ReverseRatio {
		s.doEndOfCall(ctx, callID, seconds)
		res = s.doBooking(ctx, &s.metrics.Booking, args)
	} else {
		res = s.doBooking(ctx, &s.metrics.Booking, args)
		s.doEndOfCall(ctx, callID, seconds)
	}

	if res.Status == reconcile.StatusSuccess {
		s.mu.Lock()
		s.booked[callID] = callOutcome{appointmentID: res.AppointmentID, seconds: seconds}
		s.mu.Unlock()
		s.lastSlot.Store(args)
	}

	if rng.Float64() < s.config.ReplayRatio {
		s.doBooking(ctx, &s.metrics.Replay, args)
	}

	if rng.Float64() < s.config.ConflictRatio {
		if taken, ok := s.lastSlot.Load().(bookingArgs); ok {
			clash := taken
			clash.PatientName = gofakeit.Name()
			clash.CallID = "sim-" + uuid.NewString()
			s.doBooking(ctx, &s.metrics.Conflict, clash)
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) string {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	at := day.Add(time.Duration(9+rng.Intn(8))*time.Hour + time.Duration(rng.Intn(4)*15)*time.Minute)
	return at.Format(time.RFC3339)
}

func (s *Simulator) doBooking(ctx context.Context, om *OperationMetrics, args bookingArgs) webhookResult {
	body := map[string]any{
		"message": map[string]any{
			"type": "tool-calls",
			"call": map[string]any{"id": args.CallID},
			"toolCalls": []map[string]any{{
				"id": "tc-" + uuid.NewString(),
				"function": map[string]any{
					"name":      webhook.ToolBookAppointment,
					"arguments": args,
				},
			}},
		},
	}
	return s.post(ctx, om, body)
}

func (s *Simulator) doEndOfCall(ctx context.Context, callID string, seconds float64) {
	body := map[string]any{
		"message": map[string]any{
			"type":            "end-of-call-report",
			"call":            map[string]any{"id": callID},
			"durationSeconds": seconds,
			"summary":         gofakeit.Sentence(8),
		},
	}
	s.post(ctx, &s.metrics.EndOfCall, body)
}

func (s *Simulator) post(ctx context.Context, om *OperationMetrics, payload any) webhookResult {
	body, _ := json.Marshal(payload)
	start := time.Now()

	var res webhookResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/webhook", bytes.NewReader(body))
	if err != nil {
		om.Record(time.Since(start), false, false)
		return res
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, false, false)
		}
		return res
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &res)

	ok := resp.StatusCode == http.StatusOK
	om.Record(latency, ok && res.Status == reconcile.StatusSuccess, ok && res.Status == reconcile.StatusError)
	return res
}

// verify checks every successful call ended with its duration attached.
// It needs the in-process store.
func (s *Simulator) verify() (checked, mismatched int) {
	if s.appts == nil {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for callID, want := range s.booked {
		checked++
		appt, err := s.appts.FindByCallID(context.Background(), callID)
		if err != nil || appt.CallDurationMinutes == nil || *appt.CallDurationMinutes != appointment.DurationMinutes(want.seconds) {
			mismatched++
		}
	}
	return checked, mismatched
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + rule())
	fmt.Println("SIMULATION REPORT")
	fmt.Println(rule())
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("End of call", &s.metrics.EndOfCall)
	printOperationReport("Replayed booking", &s.metrics.Replay)
	printOperationReport("Clashing booking", &s.metrics.Conflict)

	if checked, mismatched := s.verify(); checked > 0 {
		fmt.Printf("Reconciliation: %d calls checked, %d without the expected duration\n", checked, mismatched)
		fmt.Printf("Appointments stored: %d\n", s.appts.Len())
		fmt.Printf("Downstream pushes: %d\n", s.pushes.Load())
	}
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

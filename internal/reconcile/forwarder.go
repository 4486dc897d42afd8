package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/logging"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/metrics"
	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/phone"
)

// ErrDownstreamPush marks a failed delivery to an automation endpoint. It
// is logged and counted, never returned to a webhook caller.
var ErrDownstreamPush = errors.New("downstream push failed")

const (
	targetBooking = "booking"
	targetSMS     = "sms"
)

// Record is the consolidated booking pushed downstream.
type Record struct {
	PatientEmail        string   `json:"patient_email"`
	PatientName         string   `json:"patient_name"`
	DoctorName          string   `json:"doctor_name"`
	AppointmentTime     string   `json:"appointment_time"`
	Source              string   `json:"source"`
	CallDurationMinutes *float64 `json:"call_duration_minutes,omitempty"`
}

type smsPayload struct {
	PatientPhone string `json:"patient_phone"`
}

type ForwarderConfig struct {
	BookingURL string
	SMSURL     string
	Timeout    time.Duration
	Workers    int
	QueueSize  int
	// Client overrides the default client built from Timeout.
	Client  *http.Client
	Phone   *phone.Normalizer
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

type job struct {
	target  string
	url     string
	payload any
}

// Forwarder pushes records to the automation endpoints from a fixed pool
// of workers. Enqueueing never blocks; a full queue drops the push.
type Forwarder struct {
	cfg     ForwarderConfig
	client  *http.Client
	queue   chan job
	logger  *logging.Logger
	metrics *metrics.Metrics
	stopped atomic.Bool
}

func NewForwarder(cfg ForwarderConfig) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Phone == nil {
		cfg.Phone = phone.NewNormalizer(phone.DefaultRegion)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Forwarder{
		cfg:     cfg,
		client:  client,
		queue:   make(chan job, cfg.QueueSize),
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Forward schedules a booking push. It reports whether the push was queued.
func (f *Forwarder) Forward(rec Record) bool {
	if f.cfg.BookingURL == "" {
		return false
	}
	return f.enqueue(job{target: targetBooking, url: f.cfg.BookingURL, payload: rec})
}

// ForwardSMS schedules a push of the patient's number to the SMS endpoint.
func (f *Forwarder) ForwardSMS(number string) bool {
	if f.cfg.SMSURL == "" || number == "" {
		return false
	}
	normalized := f.cfg.Phone.NormalizeE164(number)
	return f.enqueue(job{target: targetSMS, url: f.cfg.SMSURL, payload: smsPayload{PatientPhone: normalized}})
}

func (f *Forwarder) enqueue(j job) bool {
	if f.stopped.Load() {
		f.drop(j, "forwarder stopped")
		return false
	}
	select {
	case f.queue <- j:
		return true
	default:
		f.drop(j, "queue full")
		return false
	}
}

func (f *Forwarder) drop(j job, reason string) {
	f.metrics.ObserveForward(j.target, "dropped")
	f.logger.Warn("downstream push dropped", "target", j.target, "reason", reason)
}

// Run starts the workers and blocks until ctx is done. Pushes already
// queued at shutdown are still delivered before Run returns.
func (f *Forwarder) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < f.cfg.Workers; i++ {
		g.Go(func() error {
			f.work(ctx)
			return nil
		})
	}
	err := g.Wait()
	f.stopped.Store(true)
	f.drain()
	return err
}

func (f *Forwarder) work(ctx context.Context) {
	for {
		select {
		case j := <-f.queue:
			f.deliver(j)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

func (f *Forwarder) drain() {
	for {
		select {
		case j := <-f.queue:
			f.deliver(j)
		default:
			return
		}
	}
}

func (f *Forwarder) deliver(j job) {
	start := time.Now()
	if err := f.post(j); err != nil {
		f.metrics.ObserveForward(j.target, "failed")
		f.logger.Error("downstream push failed", "target", j.target, "error", err.Error())
		return
	}
	f.metrics.ObserveForward(j.target, "sent")
	f.logger.Debug("downstream push sent", "target", j.target, "duration_ms", time.Since(start).Milliseconds())
}

// post runs detached from any request; the client timeout bounds it.
func (f *Forwarder) post(j job) error {
	body, err := json.Marshal(j.payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrDownstreamPush, err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDownstreamPush, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownstreamPush, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDownstreamPush, resp.StatusCode)
	}
	return nil
}

// Package export posts recommendation decisions to an external webhook in
// periodic batches. Export is notification only: failed batches are logged
// and dropped, never retried past the HTTP client's own retry budget.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/laifehacker/lso-roll-calculator/internal/model"
	"github.com/laifehacker/lso-roll-calculator/internal/security"
)

// Config holds exporter settings. An empty WebhookURL disables export.
type Config struct {
	WebhookURL  string
	APIKey      string
	Interval    time.Duration
	BatchSize   int
	MaxBuffered int

	RetryMax  int
	RetryWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 50
	}
	if c.MaxBuffered < c.BatchSize {
		c.MaxBuffered = 10 * c.BatchSize
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 500 * time.Millisecond
	}
	return c
}

// Batch is the webhook body when signing is off, and the signed payload
// when it is on.
type Batch struct {
	Events     []model.DecisionEvent `json:"events"`
	ExportTime string                `json:"export_time"`
	Count      int                   `json:"count"`
}

// Status is a snapshot for the /status endpoint.
type Status struct {
	Enabled    bool       `json:"enabled"`
	Signed     bool       `json:"signed"`
	Interval   string     `json:"export_interval"`
	BatchSize  int        `json:"batch_size"`
	Buffered   int        `json:"current_batch"`
	Exported   int        `json:"exported"`
	Dropped    int        `json:"dropped"`
	Failures   int        `json:"failures"`
	LastExport *time.Time `json:"last_export,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Exporter buffers decision events and flushes them on a ticker, or early
// once a full batch is waiting.
type Exporter struct {
	cfg    Config
	client *retryablehttp.Client
	signer *security.Signer

	mu         sync.Mutex
	buffer     []model.DecisionEvent
	exported   int
	dropped    int
	failures   int
	lastExport time.Time
	lastErr    string

	flushCh chan struct{}
}

// New creates an exporter. signer may be nil to post unsigned batches.
func New(cfg Config, signer *security.Signer) *Exporter {
	cfg = cfg.withDefaults()

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWait
	client.RetryWaitMax = 6 * cfg.RetryWait
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &Exporter{
		cfg:     cfg,
		client:  client,
		signer:  signer,
		buffer:  make([]model.DecisionEvent, 0, cfg.BatchSize),
		flushCh: make(chan struct{}, 1),
	}
}

// Enabled reports whether a webhook is configured.
func (e *Exporter) Enabled() bool {
	return e.cfg.WebhookURL != ""
}

// Record queues one event without blocking. When the buffer is full the
// new event is dropped and counted.
func (e *Exporter) Record(ev model.DecisionEvent) {
	if !e.Enabled() {
		return
	}

	e.mu.Lock()
	if len(e.buffer) >= e.cfg.MaxBuffered {
		e.dropped++
		dropped := e.dropped
		e.mu.Unlock()
		logrus.Warnf("Export buffer full, dropping decision (%d dropped so far)", dropped)
		return
	}
	e.buffer = append(e.buffer, ev)
	full := len(e.buffer) >= e.cfg.BatchSize
	e.mu.Unlock()

	if full {
		select {
		case e.flushCh <- struct{}{}:
		default:
		}
	}
}

// Start runs the flush loop until the returned stop function is called.
// stop performs a final flush and waits for the loop to exit.
func (e *Exporter) Start(parent context.Context) (stop func()) {
	if !e.Enabled() {
		return func() {}
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		e.run(ctx)
	}()

	logrus.WithFields(logrus.Fields{
		"interval":   e.cfg.Interval.String(),
		"batch_size": e.cfg.BatchSize,
		"signed":     e.signer != nil,
	}).Info("Decision exporter started")

	return func() {
		cancel()
		<-done
	}
}

func (e *Exporter) run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// the parent context is gone; give the last batch its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = e.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			_ = e.Flush(ctx)
		case <-e.flushCh:
			_ = e.Flush(ctx)
		}
	}
}

// Flush posts everything buffered, one request per batch. It returns the
// first error; failed batches are not re-queued.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return nil
	}
	pending := e.buffer
	e.buffer = make([]model.DecisionEvent, 0, e.cfg.BatchSize)
	e.mu.Unlock()

	var firstErr error
	for start := 0; start < len(pending); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		err := e.post(ctx, chunk)

		e.mu.Lock()
		if err != nil {
			e.failures++
			e.lastErr = err.Error()
		} else {
			e.exported += len(chunk)
			e.lastExport = time.Now()
			e.lastErr = ""
		}
		e.mu.Unlock()

		if err != nil {
			logrus.Errorf("Failed to export %d decisions: %v", len(chunk), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logrus.Infof("Exported %d decisions to webhook", len(chunk))
	}
	return firstErr
}

func (e *Exporter) post(ctx context.Context, events []model.DecisionEvent) error {
	batch := Batch{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}

	var body interface{} = batch
	if e.signer != nil {
		signed, err := e.signer.Sign(batch)
		if err != nil {
			return fmt.Errorf("failed to sign batch: %w", err)
		}
		body = signed
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	if e.signer != nil {
		req.Header.Set("X-Signature-Public-Key", e.signer.PublicKey())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Status returns counters and the last outcome.
func (e *Exporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Enabled:   e.Enabled(),
		Signed:    e.signer != nil,
		Interval:  e.cfg.Interval.String(),
		BatchSize: e.cfg.BatchSize,
		Buffered:  len(e.buffer),
		Exported:  e.exported,
		Dropped:   e.dropped,
		Failures:  e.failures,
		LastError: e.lastErr,
	}
	if !e.lastExport.IsZero() {
		last := e.lastExport
		st.LastExport = &last
	}
	return st
}

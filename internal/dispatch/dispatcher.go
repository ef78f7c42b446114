package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/logger"
	"github.com/gtpesantren22/wasender/internal/metrics"
)

// Kind selects the payload variant of a job.
type Kind string

const (
	KindText  Kind = "text"
	KindLink  Kind = "link"
	KindImage Kind = "image"
	KindAd    Kind = "ad"
)

const maxImageBytes = 10 << 20

// Job is one message to deliver. To must already be a canonical address.
type Job struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	To   string `json:"to"`

	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
}

// NewJob assigns an ID to a job.
func NewJob(kind Kind, to string) Job {
	return Job{ID: uuid.NewString(), Kind: kind, To: to}
}

// Result is reported to the diagnostics hook after each delivery attempt.
type Result struct {
	JobID string
	Kind  Kind
	To    string
	Err   error
}

// Sender is the session surface the dispatcher delivers through.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
	SendLink(ctx context.Context, to, url, message string) error
	SendImage(ctx context.Context, to string, image []byte, mimetype, caption string) error
	SendAdMessage(ctx context.Context, to, title, body, url string, image []byte, mimetype string) error
}

// Dispatcher delivers queued jobs at most once. Failures on the queued path
// are logged and counted, never retried and never surfaced to the original
// caller.
type Dispatcher struct {
	queue   Queue
	sender  Sender
	httpc   *http.Client
	workers int
	log     *zap.Logger
	cancel  context.CancelFunc

	// onResult, when set, observes every delivery outcome. Used by tests.
	onResult func(Result)
}

// New creates a dispatcher with the given worker count.
func New(queue Queue, sender Sender, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 3
	}
	return &Dispatcher{
		queue:   queue,
		sender:  sender,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		workers: workers,
		log:     log,
	}
}

// OnResult installs a diagnostics hook observing delivery outcomes.
func (d *Dispatcher) OnResult(fn func(Result)) {
	d.onResult = fn
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	jobs, err := d.queue.Consume(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("consume queue: %w", err)
	}

	for i := 0; i < d.workers; i++ {
		go d.worker(ctx, jobs)
	}
	d.log.Info("dispatch workers started", zap.Int("count", d.workers))
	return nil
}

// Stop terminates the workers.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Enqueue hands a job to the background workers. The caller gets an
// acknowledgement immediately; the send outcome is only logged.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return d.queue.Publish(ctx, job)
}

// EnqueueText is a convenience for template notifications.
func (d *Dispatcher) EnqueueText(ctx context.Context, to, text string) error {
	job := NewJob(KindText, to)
	job.Text = text
	return d.Enqueue(ctx, job)
}

// SendNow delivers a job synchronously and returns the delivery error, for
// the endpoints that await completion.
func (d *Dispatcher) SendNow(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	err := d.deliver(ctx, job)
	d.report(job, err)
	return err
}

func (d *Dispatcher) worker(ctx context.Context, jobs <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			err := d.deliver(ctx, job)
			if err != nil {
				d.log.Error("dispatch failed",
					zap.String(logger.FieldJobID, job.ID),
					zap.String(logger.FieldKind, string(job.Kind)),
					zap.String(logger.FieldJID, job.To),
					zap.Error(err))
			} else {
				d.log.Info("dispatched",
					zap.String(logger.FieldJobID, job.ID),
					zap.String(logger.FieldKind, string(job.Kind)),
					zap.String(logger.FieldJID, job.To))
			}
			d.report(job, err)
		}
	}
}

func (d *Dispatcher) report(job Job, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.DispatchTotal.WithLabelValues(string(job.Kind), outcome).Inc()
	if d.onResult != nil {
		d.onResult(Result{JobID: job.ID, Kind: job.Kind, To: job.To, Err: err})
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindText:
		return d.sender.SendText(ctx, job.To, job.Text)
	case KindLink:
		return d.sender.SendLink(ctx, job.To, job.URL, job.Text)
	case KindImage:
		image, mimetype, err := d.fetchImage(ctx, job.ImageURL)
		if err != nil {
			return err
		}
		return d.sender.SendImage(ctx, job.To, image, mimetype, job.Caption)
	case KindAd:
		image, mimetype, err := d.fetchImage(ctx, job.ImageURL)
		if err != nil {
			return err
		}
		return d.sender.SendAdMessage(ctx, job.To, job.Title, job.Body, job.URL, image, mimetype)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// fetchImage downloads the image payload; any failure is a dispatch failure.
func (d *Dispatcher) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gambar tidak dapat diambil: %w", err)
	}
	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("gambar tidak dapat diambil: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("gambar tidak dapat diambil: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("gambar tidak dapat diambil: %w", err)
	}

	mimetype := resp.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	return data, mimetype, nil
}

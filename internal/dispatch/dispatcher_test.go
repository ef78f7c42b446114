package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []Job
	texts []string
	fail  error
}

func (f *fakeSender) record(job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, job)
	return nil
}

func (f *fakeSender) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.record(Job{Kind: KindText, To: to, Text: text})
}

func (f *fakeSender) SendLink(_ context.Context, to, url, message string) error {
	return f.record(Job{Kind: KindLink, To: to, URL: url, Text: message})
}

func (f *fakeSender) SendImage(_ context.Context, to string, _ []byte, _, caption string) error {
	return f.record(Job{Kind: KindImage, To: to, Caption: caption})
}

func (f *fakeSender) SendAdMessage(_ context.Context, to, title, body, url string, _ []byte, _ string) error {
	return f.record(Job{Kind: KindAd, To: to, Title: title, Body: body, URL: url})
}

func newTestDispatcher(t *testing.T, sender Sender) (*Dispatcher, chan Result) {
	t.Helper()
	d := New(NewInMemory(16), sender, 1, zap.NewNop())
	results := make(chan Result, 16)
	d.OnResult(func(r Result) { results <- r })
	if err := d.Start(); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, results
}

func waitResult(t *testing.T, results chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
		return Result{}
	}
}

func TestEnqueueDeliversInBackground(t *testing.T) {
	sender := &fakeSender{}
	d, results := newTestDispatcher(t, sender)

	job := NewJob(KindText, "6281234567890@s.whatsapp.net")
	job.Text = "halo"
	if err := d.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("unexpected delivery error: %v", r.Err)
	}
	if r.JobID != job.ID {
		t.Errorf("result job id = %q, want %q", r.JobID, job.ID)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "halo" {
		t.Errorf("sender got %v, want one 'halo'", sender.texts)
	}
}

func TestEnqueueFailureIsNotRetried(t *testing.T) {
	sender := &fakeSender{fail: errors.New("upstream down")}
	d, results := newTestDispatcher(t, sender)

	job := NewJob(KindText, "6281234567890@s.whatsapp.net")
	job.Text = "halo"
	if err := d.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	r := waitResult(t, results)
	if r.Err == nil {
		t.Fatal("expected delivery error")
	}

	// At-most-once: no second attempt shows up.
	select {
	case extra := <-results:
		t.Fatalf("unexpected retry observed: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSendNowImageFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sender := &fakeSender{}
	d := New(NewInMemory(1), sender, 1, zap.NewNop())

	job := NewJob(KindImage, "6281234567890@s.whatsapp.net")
	job.ImageURL = srv.URL + "/missing.jpg"
	if err := d.SendNow(context.Background(), job); err == nil {
		t.Fatal("expected image fetch failure to fail the dispatch")
	}
	if len(sender.sent) != 0 {
		t.Errorf("send should not have happened, got %v", sender.sent)
	}
}

func TestSendNowAdFetchesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer srv.Close()

	sender := &fakeSender{}
	d := New(NewInMemory(1), sender, 1, zap.NewNop())

	job := NewJob(KindAd, "6281234567890@s.whatsapp.net")
	job.Title = "Promo"
	job.Body = "Diskon besar"
	job.URL = "https://example.com"
	job.ImageURL = srv.URL + "/banner.jpg"
	if err := d.SendNow(context.Background(), job); err != nil {
		t.Fatalf("send now: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Kind != KindAd {
		t.Errorf("expected one ad send, got %v", sender.sent)
	}
}

func TestRedisQueueConsumeStopsWhileUnreachable(t *testing.T) {
	// Nothing listens on this port, so every BRPOP fails immediately.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	q := NewRedisQueue(client, "test:dispatch")
	ctx, cancel := context.WithCancel(context.Background())

	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	// Cancel while the consumer sits in its error backoff; the job channel
	// must close promptly instead of spinning or hanging.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, open := <-jobs:
		if open {
			t.Fatal("unexpected job from an unreachable redis")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job channel did not close after cancel")
	}
}

func TestInMemoryQueueRoundTrip(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	want := NewJob(KindLink, "6281@s.whatsapp.net")
	want.URL = "https://example.com"
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-jobs:
		if got.ID != want.ID || got.URL != want.URL {
			t.Errorf("round-tripped job mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}
}

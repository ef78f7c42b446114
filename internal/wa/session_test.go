package wa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

type fakeDevice struct {
	mu           sync.Mutex
	paired       bool
	connected    bool
	connectErr   error
	logoutErr    error
	qrCodes      []string
	logouts      int
	credsDeleted int
}

func (f *fakeDevice) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeDevice) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeDevice) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDevice) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.connected = false
	f.paired = false
	return nil
}

func (f *fakeDevice) Paired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paired
}

func (f *fakeDevice) DeleteCredentials() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credsDeleted++
	return nil
}

func (f *fakeDevice) QRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	ch := make(chan whatsmeow.QRChannelItem, len(f.qrCodes))
	for _, code := range f.qrCodes {
		ch <- whatsmeow.QRChannelItem{Event: "code", Code: code}
	}
	close(ch)
	return ch, nil
}

func (f *fakeDevice) SendMessage(context.Context, types.JID, *waE2E.Message) error { return nil }

func (f *fakeDevice) Upload(context.Context, []byte, whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return whatsmeow.UploadResponse{}, nil
}

func (f *fakeDevice) JoinedGroups() ([]*types.GroupInfo, error) { return nil, nil }

type publishedEvent struct {
	name string
	data interface{}
}

type eventLog struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (l *eventLog) publish(event string, data interface{}) {
	l.mu.Lock()
	l.events = append(l.events, publishedEvent{name: event, data: data})
	l.mu.Unlock()
}

func (l *eventLog) has(name string, data interface{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.name == name && e.data == data {
			return true
		}
	}
	return false
}

// deviceSequence returns the given devices from successive open calls; a nil
// entry simulates a store failure.
func deviceSequence(t *testing.T, devs ...device) func() (device, error) {
	t.Helper()
	i := 0
	return func() (device, error) {
		if i >= len(devs) {
			t.Fatal("unexpected extra session open")
		}
		d := devs[i]
		i++
		if d == nil {
			return nil, errors.New("store unavailable")
		}
		return d, nil
	}
}

func newTestManager(events *eventLog, open func() (device, error)) *Manager {
	return &Manager{open: open, publish: events.publish, log: zap.NewNop()}
}

func TestDisconnectClearsStateAndRestarts(t *testing.T) {
	first := &fakeDevice{paired: true}
	second := &fakeDevice{}
	events := &eventLog{}
	m := newTestManager(events, deviceSequence(t, first, second))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if first.logouts != 1 {
		t.Errorf("logouts = %d, want 1", first.logouts)
	}
	if first.credsDeleted != 1 {
		t.Errorf("credentials deleted %d times, want 1", first.credsDeleted)
	}
	if !events.has(EventConnectionStatus, false) {
		t.Error("disconnected status was not published")
	}
	if !events.has(EventQR, nil) {
		t.Error("qr reset was not published")
	}
	if connected, qr := m.Snapshot(); connected || qr != "" {
		t.Errorf("snapshot after disconnect = (%v, %q), want clean state", connected, qr)
	}

	m.mu.Lock()
	restarted := m.client == second
	m.mu.Unlock()
	if !restarted {
		t.Error("session was not restarted on a fresh device")
	}
	if !second.IsConnected() {
		t.Error("restarted device never connected")
	}
}

func TestDisconnectFailedLogoutKeepsState(t *testing.T) {
	dev := &fakeDevice{paired: true}
	dev.logoutErr = errors.New("logout rejected")
	events := &eventLog{}
	m := newTestManager(events, deviceSequence(t, dev))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := m.Disconnect(context.Background())
	if !errors.Is(err, ErrDisconnect) {
		t.Fatalf("err = %v, want ErrDisconnect", err)
	}
	if dev.credsDeleted != 0 {
		t.Error("credentials must not be wiped when logout fails")
	}
	m.mu.Lock()
	kept := m.client == dev
	m.mu.Unlock()
	if !kept {
		t.Error("client handle must stay so the caller can retry")
	}
	if events.has(EventConnectionStatus, false) {
		t.Error("no status event should be published on failed logout")
	}
}

func TestDisconnectSucceedsWhenRestartFails(t *testing.T) {
	dev := &fakeDevice{paired: true}
	events := &eventLog{}
	m := newTestManager(events, deviceSequence(t, dev, nil))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect must succeed even when restart fails: %v", err)
	}

	if dev.credsDeleted != 1 {
		t.Errorf("credentials deleted %d times, want 1", dev.credsDeleted)
	}
	if !events.has(EventConnectionStatus, false) {
		t.Error("disconnected status was not published")
	}
	if connected, qr := m.Snapshot(); connected || qr != "" {
		t.Errorf("snapshot = (%v, %q), want clean state", connected, qr)
	}
}

func TestDisconnectWithoutSession(t *testing.T) {
	m := newTestManager(&eventLog{}, deviceSequence(t))
	if err := m.Disconnect(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestStartPublishesPairingQR(t *testing.T) {
	dev := &fakeDevice{qrCodes: []string{"pairing-challenge"}}
	events := &eventLog{}
	m := newTestManager(events, deviceSequence(t, dev))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, qr := m.Snapshot(); strings.HasPrefix(qr, "data:image/png;base64,") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("pairing QR was never published")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

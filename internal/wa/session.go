package wa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/gtpesantren22/wasender/internal/metrics"
)

// Realtime event names pushed to dashboard observers.
const (
	EventQR               = "qr"
	EventConnectionStatus = "connection-status"
)

const (
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 60 * time.Second
	maxReconnectAttempts = 10
)

var (
	// ErrNoActiveSession is returned when an operation needs a session that
	// does not exist, e.g. between a logout and the next pairing.
	ErrNoActiveSession = errors.New("tidak ada koneksi aktif")
	// ErrDisconnect wraps a failed logout; local state is left unchanged so
	// the caller can retry.
	ErrDisconnect = errors.New("gagal logout dari WhatsApp")
)

// PublishFunc broadcasts a state-change event to all observers.
type PublishFunc func(event string, data interface{})

// device is the slice of the whatsmeow client the manager drives, carved
// out so the lifecycle paths can run against a fake in tests.
type device interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	Logout() error
	Paired() bool
	DeleteCredentials() error
	QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error
	Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	JoinedGroups() ([]*types.GroupInfo, error)
}

// waDevice wraps a live whatsmeow client and its credential container.
type waDevice struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
}

func (d *waDevice) Connect() error    { return d.client.Connect() }
func (d *waDevice) Disconnect()       { d.client.Disconnect() }
func (d *waDevice) IsConnected() bool { return d.client.IsConnected() }
func (d *waDevice) Logout() error     { return d.client.Logout(context.Background()) }

func (d *waDevice) Paired() bool {
	return d.client.Store != nil && d.client.Store.ID != nil
}

// DeleteCredentials wipes the stored device row. Logout already removes it
// upstream; this clears any stale remainder so the next pairing starts clean.
func (d *waDevice) DeleteCredentials() error {
	if d.client.Store == nil || d.client.Store.ID == nil {
		return nil
	}
	return d.container.DeleteDevice(context.Background(), d.client.Store)
}

func (d *waDevice) QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return d.client.GetQRChannel(ctx)
}

func (d *waDevice) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error {
	_, err := d.client.SendMessage(ctx, to, msg)
	return err
}

func (d *waDevice) Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return d.client.Upload(ctx, data, kind)
}

func (d *waDevice) JoinedGroups() ([]*types.GroupInfo, error) {
	return d.client.GetJoinedGroups(context.Background())
}

// Manager owns the single process-wide WhatsApp client handle. Only the
// manager replaces or clears it; everything else reads it for the duration
// of a send and must tolerate it being absent.
type Manager struct {
	mu     sync.Mutex
	client device
	open   func() (device, error)

	container *sqlstore.Container
	publish   PublishFunc
	log       *zap.Logger
	waLog     *waLogger

	connected    bool
	lastQR       string
	loggingOut   bool
	reconnecting bool
}

// NewManager opens the credential store and prepares a manager. Call Start
// to actually connect.
func NewManager(storeURL, botName string, publish PublishFunc, log *zap.Logger) (*Manager, error) {
	wl := newWALogger(log)
	container, err := sqlstore.New(context.Background(), "postgres", storeURL, wl.Sub("Database"))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	// Device name shown in WhatsApp's linked-devices list.
	store.DeviceProps.Os = proto.String(botName)

	if publish == nil {
		publish = func(string, interface{}) {}
	}

	m := &Manager{
		container: container,
		publish:   publish,
		log:       log,
		waLog:     wl,
	}
	m.open = m.openDevice
	return m, nil
}

// openDevice loads persisted auth material and wraps a fresh client.
func (m *Manager) openDevice() (device, error) {
	dev, err := m.container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(dev, m.waLog.Sub("Client"))
	client.EnableAutoReconnect = false
	client.AddEventHandler(m.handleEvent)
	return &waDevice{client: client, container: m.container}, nil
}

// Start opens a connection using the stored auth material. When the device
// is not yet paired it also consumes the pairing channel and publishes each
// challenge as a rendered QR image.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil && m.client.IsConnected() {
		m.mu.Unlock()
		return nil
	}

	client, err := m.open()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.client = client
	m.mu.Unlock()

	if !client.Paired() {
		// The QR channel must be requested before Connect and only exists
		// for an unpaired device.
		qrChan, err := client.QRChannel(ctx)
		if err != nil {
			m.log.Warn("qr channel unavailable", zap.Error(err))
		} else {
			go m.consumeQR(qrChan)
		}
	}

	if err := client.Connect(); err != nil {
		m.setConnected(false)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect logs the device out, wipes persisted auth material and restarts
// the session so a fresh pairing QR becomes available.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	m.loggingOut = true
	m.mu.Unlock()

	if err := client.Logout(); err != nil {
		m.mu.Lock()
		m.loggingOut = false
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDisconnect, err)
	}

	m.mu.Lock()
	m.client = nil
	m.connected = false
	m.lastQR = ""
	m.loggingOut = false
	m.mu.Unlock()
	metrics.Connected.Set(0)

	if err := client.DeleteCredentials(); err != nil {
		m.log.Warn("delete device credentials", zap.Error(err))
	}

	m.publish(EventConnectionStatus, false)
	m.publish(EventQR, nil)

	// The restarted session outlives the request that triggered the logout.
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn("restart after logout failed", zap.Error(err))
	}
	return nil
}

// Close drops the network connection without logging out. Used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// Snapshot returns the current connection state and last pairing QR, for
// observers that subscribe after the events were published.
func (m *Manager) Snapshot() (connected bool, qr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, m.lastQR
}

// IsConnected reports whether the session is currently open.
func (m *Manager) IsConnected() bool {
	connected, _ := m.Snapshot()
	return connected
}

func (m *Manager) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		m.mu.Lock()
		m.connected = true
		m.lastQR = ""
		m.mu.Unlock()
		metrics.Connected.Set(1)
		m.log.Info("whatsapp connected")
		m.publish(EventConnectionStatus, true)
		m.publish(EventQR, nil)

	case *events.Disconnected:
		m.setConnected(false)
		m.log.Warn("whatsapp connection closed")
		m.publish(EventConnectionStatus, false)
		m.maybeReconnect()

	case *events.LoggedOut:
		m.setConnected(false)
		m.log.Warn("logged out remotely", zap.Int("reason", int(e.Reason)))
		m.publish(EventConnectionStatus, false)
		go m.resetAfterRemoteLogout()

	case *events.StreamReplaced:
		m.setConnected(false)
		m.log.Warn("stream replaced by another session")
		m.publish(EventConnectionStatus, false)
	}
}

func (m *Manager) setConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
	if connected {
		metrics.Connected.Set(1)
	} else {
		metrics.Connected.Set(0)
	}
}

// maybeReconnect retries the existing client with exponential backoff. A
// logout never reconnects; everything else does, up to a ceiling.
func (m *Manager) maybeReconnect() {
	m.mu.Lock()
	if m.loggingOut || m.reconnecting || m.client == nil {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	client := m.client
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.reconnecting = false
			m.mu.Unlock()
		}()

		delay := reconnectBaseDelay
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			time.Sleep(delay)

			m.mu.Lock()
			stale := m.loggingOut || m.client != client
			m.mu.Unlock()
			if stale || client.IsConnected() {
				return
			}

			m.log.Info("reconnecting", zap.Int("attempt", attempt))
			err := client.Connect()
			if err == nil || errors.Is(err, whatsmeow.ErrAlreadyConnected) {
				return
			}
			m.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))

			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
		m.log.Error("reconnect attempts exhausted, session stays disconnected")
	}()
}

// resetAfterRemoteLogout wipes the invalidated credentials and starts a fresh
// session so the dashboard gets a new pairing QR.
func (m *Manager) resetAfterRemoteLogout() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.lastQR = ""
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
		if err := client.DeleteCredentials(); err != nil {
			m.log.Warn("delete device after remote logout", zap.Error(err))
		}
	}

	if err := m.Start(context.Background()); err != nil {
		m.log.Error("restart after remote logout failed", zap.Error(err))
	}
}

func (m *Manager) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			dataURL, err := renderQR(item.Code)
			if err != nil {
				m.log.Error("render qr", zap.Error(err))
				continue
			}
			m.mu.Lock()
			m.lastQR = dataURL
			m.connected = false
			m.mu.Unlock()
			m.publish(EventQR, dataURL)
			m.publish(EventConnectionStatus, false)
		case "success":
			// Connected event follows and clears the QR.
		default:
			m.log.Info("qr channel closed", zap.String("reason", item.Event))
		}
	}
}

func renderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func (m *Manager) current() (device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrNoActiveSession
	}
	return m.client, nil
}

// SendText sends a plain text message to a canonical address.
func (m *Manager) SendText(ctx context.Context, to, text string) error {
	client, err := m.current()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("alamat tidak valid: %w", err)
	}
	return client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
}

// SendLink sends a message carrying link-preview metadata. WhatsApp renders
// the preview on the receiving side when the URL is reachable.
func (m *Manager) SendLink(ctx context.Context, to, url, message string) error {
	client, err := m.current()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("alamat tidak valid: %w", err)
	}

	text := url
	if message != "" {
		text = message + "\n\n" + url
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		MatchedText: proto.String(url),
	}}
	return client.SendMessage(ctx, jid, msg)
}

// SendImage uploads image bytes and sends them with an optional caption.
func (m *Manager) SendImage(ctx context.Context, to string, image []byte, mimetype, caption string) error {
	client, err := m.current()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("alamat tidak valid: %w", err)
	}

	uploaded, err := client.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload gambar: %w", err)
	}

	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}
	return client.SendMessage(ctx, jid, msg)
}

// SendAdMessage sends the composite ad payload: the image with a clickable
// caption first, then a follow-up text with externalAdReply metadata.
func (m *Manager) SendAdMessage(ctx context.Context, to, title, body, url string, image []byte, mimetype string) error {
	if err := m.SendImage(ctx, to, image, mimetype, fmt.Sprintf("%s\n\n👉 %s", body, url)); err != nil {
		return err
	}

	client, err := m.current()
	if err != nil {
		return err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("alamat tidak valid: %w", err)
	}

	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String(body),
		ContextInfo: &waE2E.ContextInfo{
			ExternalAdReply: &waE2E.ContextInfo_ExternalAdReplyInfo{
				Title:                 proto.String(title),
				Body:                  proto.String(body),
				MediaType:             waE2E.ContextInfo_ExternalAdReplyInfo_IMAGE.Enum(),
				RenderLargerThumbnail: proto.Bool(true),
				ShowAdAttribution:     proto.Bool(true),
				SourceURL:             proto.String(url),
				Thumbnail:             image,
			},
		},
	}}
	return client.SendMessage(ctx, jid, msg)
}

// JoinedGroups lists all groups the session participates in.
func (m *Manager) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	m.mu.Lock()
	client := m.client
	connected := m.connected
	m.mu.Unlock()
	if client == nil || !connected {
		return nil, ErrNoActiveSession
	}
	return client.JoinedGroups()
}

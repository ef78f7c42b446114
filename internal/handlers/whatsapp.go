package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/dispatch"
	"github.com/gtpesantren22/wasender/internal/models"
	"github.com/gtpesantren22/wasender/internal/wa"
)

// Session is the connection-lifecycle surface the gateway needs.
type Session interface {
	Disconnect(ctx context.Context) error
	JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error)
}

// Dispatcher delivers message jobs, queued or synchronously.
type Dispatcher interface {
	Enqueue(ctx context.Context, job dispatch.Job) error
	SendNow(ctx context.Context, job dispatch.Job) error
}

type WhatsAppHandler struct {
	session    Session
	dispatcher Dispatcher
	apiKey     string
	log        *zap.Logger
}

func NewWhatsAppHandler(session Session, dispatcher Dispatcher, apiKey string, log *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{session: session, dispatcher: dispatcher, apiKey: apiKey, log: log}
}

func (h *WhatsAppHandler) validKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) == 1
}

// SendPersonal queues a text message to one recipient. The caller gets an
// acknowledgement immediately; delivery happens in the background.
func (h *WhatsAppHandler) SendPersonal(w http.ResponseWriter, r *http.Request) {
	p := bindParams(r, "number", "message", "apiKey")
	if p["number"] == "" || p["message"] == "" {
		fail(w, http.StatusBadRequest, "Parameter number dan message wajib diisi.")
		return
	}
	if !h.validKey(p["apiKey"]) {
		fail(w, http.StatusBadRequest, "apiKey tidak valid.")
		return
	}

	job := dispatch.NewJob(dispatch.KindText, wa.PersonalJID(p["number"]))
	job.Text = p["message"]
	if err := h.dispatcher.Enqueue(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal mengantrekan pesan.", err)
		return
	}

	ok(w, "Pesan sedang dikirim.")
}

// SendGroup queues a text message to a group.
func (h *WhatsAppHandler) SendGroup(w http.ResponseWriter, r *http.Request) {
	p := bindParams(r, "groupId", "message", "apiKey")
	if p["groupId"] == "" || p["message"] == "" {
		fail(w, http.StatusBadRequest, "Parameter groupId dan message wajib diisi.")
		return
	}
	if !h.validKey(p["apiKey"]) {
		fail(w, http.StatusBadRequest, "apiKey tidak valid.")
		return
	}

	job := dispatch.NewJob(dispatch.KindText, wa.GroupJID(p["groupId"]))
	job.Text = p["message"]
	if err := h.dispatcher.Enqueue(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal mengantrekan pesan.", err)
		return
	}

	ok(w, "Pesan sedang dikirim ke grup.")
}

// Groups lists all groups the session participates in.
func (h *WhatsAppHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.session.JoinedGroups(r.Context())
	if err != nil {
		if errors.Is(err, wa.ErrNoActiveSession) {
			fail(w, http.StatusBadRequest, "Belum terkoneksi ke WhatsApp.")
			return
		}
		failWithError(w, http.StatusInternalServerError, "Gagal mengambil daftar grup.", err)
		return
	}

	writeJSON(w, http.StatusOK, models.APIResponse{Status: true, Data: groups})
}

// Disconnect logs the device out and resets the session for a fresh pairing.
func (h *WhatsAppHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	err := h.session.Disconnect(r.Context())
	switch {
	case errors.Is(err, wa.ErrNoActiveSession):
		fail(w, http.StatusBadRequest, "Tidak ada koneksi aktif.")
	case err != nil:
		h.log.Error("disconnect failed", zap.Error(err))
		failWithError(w, http.StatusInternalServerError, "Gagal disconnect.", err)
	default:
		ok(w, "Berhasil logout & reset koneksi.")
	}
}

// SendGroupImage sends an image to a group and awaits completion.
func (h *WhatsAppHandler) SendGroupImage(w http.ResponseWriter, r *http.Request) {
	p := bindParams(r, "groupId", "imageUrl", "caption")
	if p["groupId"] == "" || p["imageUrl"] == "" {
		fail(w, http.StatusBadRequest, "Parameter groupId dan imageUrl wajib diisi.")
		return
	}

	job := dispatch.NewJob(dispatch.KindImage, wa.GroupJID(p["groupId"]))
	job.ImageURL = p["imageUrl"]
	job.Caption = p["caption"]
	if err := h.dispatcher.SendNow(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal mengirim gambar.", err)
		return
	}

	ok(w, "Gambar berhasil dikirim.")
}

// SendImage sends an image to a personal chat and awaits completion.
func (h *WhatsAppHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, imageURL := q.Get("number"), q.Get("imageUrl")
	if number == "" || imageURL == "" {
		fail(w, http.StatusBadRequest, "Parameter number dan imageUrl wajib diisi.")
		return
	}

	job := dispatch.NewJob(dispatch.KindImage, wa.PersonalJID(number))
	job.ImageURL = imageURL
	job.Caption = q.Get("caption")
	if err := h.dispatcher.SendNow(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal mengirim gambar.", err)
		return
	}

	ok(w, "Gambar berhasil dikirim.")
}

// SendURL sends a message carrying a link with preview metadata.
func (h *WhatsAppHandler) SendURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, url := q.Get("number"), q.Get("url")
	if number == "" || url == "" {
		fail(w, http.StatusBadRequest, "Parameter number dan url wajib diisi.")
		return
	}

	job := dispatch.NewJob(dispatch.KindLink, wa.PersonalJID(number))
	job.URL = url
	job.Text = q.Get("message")
	if err := h.dispatcher.SendNow(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal mengirim URL.", err)
		return
	}

	ok(w, "URL berhasil dikirim dengan preview (jika tersedia).")
}

// SendAdMessage sends the composite ad payload: image with clickable caption,
// then a follow-up externalAdReply message.
func (h *WhatsAppHandler) SendAdMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, title, body, url, image := q.Get("number"), q.Get("title"), q.Get("body"), q.Get("url"), q.Get("image")
	if number == "" || title == "" || body == "" || url == "" || image == "" {
		fail(w, http.StatusBadRequest, "Parameter number, title, body, url, dan image wajib diisi.")
		return
	}

	job := dispatch.NewJob(dispatch.KindAd, wa.PersonalJID(number))
	job.Title = title
	job.Body = body
	job.URL = url
	job.ImageURL = image
	if err := h.dispatcher.SendNow(r.Context(), job); err != nil {
		failWithError(w, http.StatusInternalServerError, "Gagal kirim pesan.", err)
		return
	}

	ok(w, "Pesan gambar & adReply berhasil dikirim.")
}

package models

// APIResponse is the envelope used by every WhatsApp endpoint, matching the
// dashboard's expectations: {"status": true/false, "message": "...", ...}.
type APIResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AbsenResponse is the envelope for POST /add-absen.
type AbsenResponse struct {
	Success  bool   `json:"success"`
	Tipe     string `json:"tipe,omitempty"`
	Nama     string `json:"nama,omitempty"`
	Status   string `json:"status,omitempty"`
	Mengajar string `json:"mengajar,omitempty"`
	Apel     string `json:"apel,omitempty"`
	Message  string `json:"message,omitempty"`
}

// WSEvent is a single realtime push frame. Event is "qr" (data: PNG data URL
// or null) or "connection-status" (data: bool).
type WSEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

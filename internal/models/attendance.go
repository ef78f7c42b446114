package models

// Identity types resolved from an attendance code.
const (
	TipeSiswa = "siswa"
	TipeGuru  = "guru"
)

// Attendance outcome labels rendered by the frontend.
const (
	StatusDicatat    = "dicatat"
	StatusSudahAbsen = "sudah absen"
	StatusSudahAda   = "sudah ada"
	StatusDiperbarui = "diperbarui"
)

// Identity is the result of the union lookup over the siswa and guru tables.
type Identity struct {
	Tipe string `json:"tipe"`
	ID   int64  `json:"id"`
	Nama string `json:"nama"`
	NoHP string `json:"no_hp"`
}

// RecordResult distinguishes newly recorded facts from already existing ones
// so the caller can render distinct UI states.
type RecordResult struct {
	Tipe string `json:"tipe"`
	Nama string `json:"nama"`
	// Siswa: dicatat / sudah absen
	Status string `json:"status,omitempty"`
	// Guru: teaching attendance (dicatat / diperbarui) and roll-call
	// (dicatat / sudah ada), tracked independently.
	Mengajar string `json:"mengajar,omitempty"`
	Apel     string `json:"apel,omitempty"`
}

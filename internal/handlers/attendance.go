package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/models"
	"github.com/gtpesantren22/wasender/internal/services"
)

// Recorder records one attendance submission.
type Recorder interface {
	Record(ctx context.Context, kode, apiKey string) (*models.RecordResult, error)
}

type AttendanceHandler struct {
	recorder Recorder
	log      *zap.Logger
}

func NewAttendanceHandler(recorder Recorder, log *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{recorder: recorder, log: log}
}

// AddAbsen handles POST /add-absen: check-in via a shared identity code.
func (h *AttendanceHandler) AddAbsen(w http.ResponseWriter, r *http.Request) {
	p := bindParams(r, "kode_guru", "apiKey")

	result, err := h.recorder.Record(r.Context(), p["kode_guru"], p["apiKey"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AbsenResponse{
		Success:  true,
		Tipe:     result.Tipe,
		Nama:     result.Nama,
		Status:   result.Status,
		Mengajar: result.Mengajar,
		Apel:     result.Apel,
	})
}

func (h *AttendanceHandler) writeError(w http.ResponseWriter, err error) {
	var (
		authErr       *services.UnauthorizedError
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
	)

	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, models.AbsenResponse{Success: false, Message: authErr.Message})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, models.AbsenResponse{Success: false, Message: validationErr.Message})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, models.AbsenResponse{Success: false, Message: notFoundErr.Message})
	default:
		h.log.Error("add-absen failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.AbsenResponse{Success: false, Message: "Terjadi kesalahan pada server."})
	}
}

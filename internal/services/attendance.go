package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/metrics"
	"github.com/gtpesantren22/wasender/internal/models"
	"github.com/gtpesantren22/wasender/internal/repository"
	"github.com/gtpesantren22/wasender/internal/wa"
)

// AttendanceStore hands out single-request connections.
type AttendanceStore interface {
	Acquire(ctx context.Context) (AttendanceConn, error)
}

// AttendanceConn is one checked-out connection's query surface.
type AttendanceConn interface {
	ResolveCode(ctx context.Context, kode string) (*models.Identity, error)
	HasAbsenSiswa(ctx context.Context, siswaID int64, tanggal string) (bool, error)
	InsertAbsenSiswa(ctx context.Context, siswaID int64, tanggal, jam string) error
	UpsertAbsenGuru(ctx context.Context, guruID int64, tanggal, jam string) (bool, error)
	InsertApelGuru(ctx context.Context, guruID int64, tanggal, jam string) (bool, error)
	Release()
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	EnqueueText(ctx context.Context, to, text string) error
}

// PgStore adapts the pgx-backed repository onto AttendanceStore.
func PgStore(repo *repository.AttendanceRepo) AttendanceStore {
	return pgStore{repo: repo}
}

type pgStore struct{ repo *repository.AttendanceRepo }

func (s pgStore) Acquire(ctx context.Context) (AttendanceConn, error) {
	return s.repo.Acquire(ctx)
}

// Attendance validates submitted codes and applies the idempotent
// insert/update rules for daily presence facts.
type Attendance struct {
	store   AttendanceStore
	notify  Notifier
	apiKey  string
	botName string
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
}

func NewAttendance(store AttendanceStore, notify Notifier, apiKey, botName string, loc *time.Location, log *zap.Logger) *Attendance {
	if loc == nil {
		loc = time.Local
	}
	return &Attendance{
		store:   store,
		notify:  notify,
		apiKey:  apiKey,
		botName: botName,
		loc:     loc,
		now:     time.Now,
		log:     log,
	}
}

// Record resolves the code and records today's attendance. All database work
// for one call runs on a single acquired connection, released on every exit
// path.
func (s *Attendance) Record(ctx context.Context, kode, apiKey string) (*models.RecordResult, error) {
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return nil, &UnauthorizedError{Message: "apiKey tidak valid"}
	}
	if kode == "" {
		return nil, &ValidationError{Message: "parameter kode_guru wajib diisi"}
	}

	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	ident, err := conn.ResolveCode(ctx, kode)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, &NotFoundError{Message: "kode tidak ditemukan"}
	}

	now := s.now().In(s.loc)
	tanggal := now.Format("2006-01-02")
	jam := now.Format("15:04:05")

	result := &models.RecordResult{Tipe: ident.Tipe, Nama: ident.Nama}

	switch ident.Tipe {
	case models.TipeSiswa:
		exists, err := conn.HasAbsenSiswa(ctx, ident.ID, tanggal)
		if err != nil {
			return nil, err
		}
		if exists {
			result.Status = models.StatusSudahAbsen
		} else {
			if err := conn.InsertAbsenSiswa(ctx, ident.ID, tanggal, jam); err != nil {
				return nil, err
			}
			result.Status = models.StatusDicatat
		}
		metrics.AttendanceTotal.WithLabelValues(models.TipeSiswa, result.Status).Inc()

	case models.TipeGuru:
		// Teaching attendance and roll-call are independent daily facts.
		inserted, err := conn.UpsertAbsenGuru(ctx, ident.ID, tanggal, jam)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Mengajar = models.StatusDicatat
		} else {
			result.Mengajar = models.StatusDiperbarui
		}

		newApel, err := conn.InsertApelGuru(ctx, ident.ID, tanggal, jam)
		if err != nil {
			return nil, err
		}
		if newApel {
			result.Apel = models.StatusDicatat
			s.sendWelcome(ctx, ident, tanggal, jam)
		} else {
			result.Apel = models.StatusSudahAda
		}
		metrics.AttendanceTotal.WithLabelValues(models.TipeGuru, result.Apel).Inc()
	}

	return result, nil
}

// sendWelcome dispatches the fixed-template roll-call notification. The send
// is fire-and-forget; a failure never affects the attendance result.
func (s *Attendance) sendWelcome(ctx context.Context, ident *models.Identity, tanggal, jam string) {
	if ident.NoHP == "" {
		s.log.Warn("nomor HP kosong, notifikasi apel dilewati", zap.String("nama", ident.Nama))
		return
	}

	text := fmt.Sprintf(
		"Assalamualaikum %s, kehadiran apel Anda tanggal %s pukul %s telah dicatat. (%s)",
		ident.Nama, tanggal, jam, s.botName,
	)
	if err := s.notify.EnqueueText(ctx, wa.FormatNumber(ident.NoHP), text); err != nil {
		s.log.Error("enqueue notifikasi apel", zap.String("nama", ident.Nama), zap.Error(err))
	}
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gtpesantren22/wasender/internal/models"
)

// AttendanceRepo persists attendance facts. All queries for one request run
// on a single acquired connection (see Acquire).
type AttendanceRepo struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepo(pool *pgxpool.Pool) *AttendanceRepo {
	return &AttendanceRepo{pool: pool}
}

// Conn is one checked-out connection. Release must be called on every exit
// path.
type Conn struct {
	conn *pgxpool.Conn
}

// Acquire checks out a connection from the pool.
func (r *AttendanceRepo) Acquire(ctx context.Context) (*Conn, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Release returns the connection to the pool.
func (c *Conn) Release() {
	c.conn.Release()
}

// ResolveCode looks the code up in the siswa and guru tables at once and
// returns a tagged identity, or nil when the code is unknown.
func (c *Conn) ResolveCode(ctx context.Context, kode string) (*models.Identity, error) {
	query := `
		SELECT 'siswa' AS tipe, id, nama, COALESCE(no_hp, '') FROM siswa WHERE kode = $1
		UNION ALL
		SELECT 'guru', id, nama, COALESCE(no_hp, '') FROM guru WHERE kode = $1
		LIMIT 1
	`

	var ident models.Identity
	err := c.conn.QueryRow(ctx, query, kode).Scan(&ident.Tipe, &ident.ID, &ident.Nama, &ident.NoHP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// HasAbsenSiswa reports whether a presence record exists for the date.
func (c *Conn) HasAbsenSiswa(ctx context.Context, siswaID int64, tanggal string) (bool, error) {
	var exists bool
	err := c.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM absen_siswa WHERE siswa_id = $1 AND tanggal = $2)",
		siswaID, tanggal).Scan(&exists)
	return exists, err
}

// InsertAbsenSiswa records a student's daily presence. The unique constraint
// on (siswa_id, tanggal) keeps this at one row per day even under races.
func (c *Conn) InsertAbsenSiswa(ctx context.Context, siswaID int64, tanggal, jam string) error {
	_, err := c.conn.Exec(ctx, `
		INSERT INTO absen_siswa (siswa_id, tanggal, jam)
		VALUES ($1, $2, $3)
		ON CONFLICT (siswa_id, tanggal) DO NOTHING
	`, siswaID, tanggal, jam)
	return err
}

// UpsertAbsenGuru inserts the teaching-attendance fact or, when it already
// exists, refreshes its status flag. Returns true when a new row was created.
func (c *Conn) UpsertAbsenGuru(ctx context.Context, guruID int64, tanggal, jam string) (bool, error) {
	var inserted bool
	err := c.conn.QueryRow(ctx, `
		INSERT INTO absen_guru (guru_id, tanggal, jam, status)
		VALUES ($1, $2, $3, 'hadir')
		ON CONFLICT (guru_id, tanggal)
		DO UPDATE SET status = 'hadir'
		RETURNING (xmax = 0)
	`, guruID, tanggal, jam).Scan(&inserted)
	return inserted, err
}

// InsertApelGuru records the roll-call fact only when absent. Returns true
// when a new row was created.
func (c *Conn) InsertApelGuru(ctx context.Context, guruID int64, tanggal, jam string) (bool, error) {
	tag, err := c.conn.Exec(ctx, `
		INSERT INTO apel_guru (guru_id, tanggal, jam)
		VALUES ($1, $2, $3)
		ON CONFLICT (guru_id, tanggal) DO NOTHING
	`, guruID, tanggal, jam)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

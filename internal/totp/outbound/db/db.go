package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/db/migrations"
)

const (
	queryGetLastCounter = `SELECT last_counter FROM totp_last_counters WHERE user_id = $1`

	// The WHERE on the conflict branch makes the check and the write one
	// statement, so concurrent verifications of the same code cannot both win.
	querySetLastCounter = `
INSERT INTO totp_last_counters (user_id, last_counter, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET last_counter = EXCLUDED.last_counter, updated_at = EXCLUDED.updated_at
WHERE totp_last_counters.last_counter < EXCLUDED.last_counter`
)

// DB stores last accepted counters in PostgreSQL.
type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, conn *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(conn)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("totp.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, entity.ErrStaleCounter) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *DB) GetLastCounter(ctx context.Context, userID string) (_ int64, _ bool, err error) {
	ctx, span := s.startSpan(ctx, "GetLastCounter")
	defer func() { s.endSpan(span, err) }()

	var counter int64
	err = s.conn.QueryRow(ctx, queryGetLastCounter, userID).Scan(&counter)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return counter, true, nil
}

func (s *DB) SetLastCounter(ctx context.Context, userID string, counter int64) (err error) {
	ctx, span := s.startSpan(ctx, "SetLastCounter")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, querySetLastCounter, userID, counter)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrStaleCounter
	}

	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "slidecast/pkg/database"
	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

// Manager implements interfaces.SlideStore on SQLite.
//
// All writes funnel through a single goroutine; SQLite tolerates concurrent
// readers under WAL but only one writer. Mode and current-slide writes are
// enqueued fire-and-forget (write-behind), so the caller's broadcast never
// waits on the disk and the newest change can be lost on a crash. Answer
// writes wait for completion because the answer count is read back right after.
type Manager struct {
	db      *sql.DB
	log     *zap.Logger
	writeCh chan writeOp
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	name string
	fn   func(*sql.DB) error
	// result is nil for write-behind operations.
	result chan error
}

// NewManager opens the database, applies migrations, and starts the writer.
func NewManager(cfg *dbconfig.Config, log *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbconfig.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	m := &Manager{
		db:      db,
		log:     log,
		writeCh: make(chan writeOp, 256),
		done:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop is the single writer. A failed operation is retried once after a
// short backoff before being dropped.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeCh:
			err := op.fn(m.db)
			if err != nil {
				m.log.Warn("database write failed, retrying",
					zap.String("op", op.name), zap.Error(err))
				time.Sleep(500 * time.Millisecond)
				err = op.fn(m.db)
			}
			if op.result != nil {
				op.result <- err
			} else if err != nil {
				// Write-behind: nobody is waiting, the in-memory state already
				// moved on. Log and drop.
				m.log.Error("database write dropped after retry",
					zap.String("op", op.name), zap.Error(err))
			}

		case <-m.done:
			// Drain whatever is already queued so Close does not lose writes
			// that were accepted before shutdown.
			for {
				select {
				case op := <-m.writeCh:
					err := op.fn(m.db)
					if err != nil {
						m.log.Error("database write failed during drain",
							zap.String("op", op.name), zap.Error(err))
					}
					if op.result != nil {
						op.result <- err
					}
				default:
					return
				}
			}
		}
	}
}

// queueWrite enqueues a write-behind operation. A full queue drops the write
// with a log line rather than blocking the command path.
func (m *Manager) queueWrite(name string, fn func(*sql.DB) error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		m.log.Warn("database write rejected, store closed", zap.String("op", name))
		return
	}
	m.mu.RUnlock()

	select {
	case m.writeCh <- writeOp{name: name, fn: fn}:
	default:
		m.log.Error("database write queue full, dropping", zap.String("op", name))
	}
}

// executeWrite enqueues an operation and waits for it to land.
func (m *Manager) executeWrite(name string, fn func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeCh <- writeOp{name: name, fn: fn, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.done:
		return ErrManagerClosed
	}
}

// ListSlideStates returns every active slide of a game with its persisted mode.
func (m *Manager) ListSlideStates(ctx context.Context, gameID int64) ([]interfaces.SlideState, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, mode FROM slides WHERE game_id = ? AND active = 1 ORDER BY position`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slide states: %w", err)
	}
	defer rows.Close()

	var states []interfaces.SlideState
	for rows.Next() {
		var (
			state interfaces.SlideState
			mode  sql.NullString
		)
		if err := rows.Scan(&state.SlideID, &mode); err != nil {
			return nil, fmt.Errorf("failed to scan slide state: %w", err)
		}
		if mode.Valid {
			sm := protocol.SlideMode(mode.String)
			state.Mode = &sm
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// CurrentSlide returns the persisted current-slide pointer, 0 when the game
// has no row or no pointer yet.
func (m *Manager) CurrentSlide(ctx context.Context, gameID int64) (int64, error) {
	var current sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT current_slide_id FROM games WHERE id = ?`, gameID).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current slide: %w", err)
	}
	if !current.Valid {
		return 0, nil
	}
	return current.Int64, nil
}

// SetSlideMode records a slide's mode, write-behind. The upsert keeps the
// write valid even when the slide row was never authored (degraded hydration).
func (m *Manager) SetSlideMode(gameID, slideID int64, mode protocol.SlideMode) {
	m.queueWrite("set_slide_mode", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO slides (id, game_id, mode, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET mode = excluded.mode, updated_at = CURRENT_TIMESTAMP`,
			slideID, gameID, string(mode))
		return err
	})
}

// SetCurrentSlide records a game's current-slide pointer, write-behind.
func (m *Manager) SetCurrentSlide(gameID, slideID int64) {
	m.queueWrite("set_current_slide", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO games (id, current_slide_id, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET current_slide_id = excluded.current_slide_id, updated_at = CURRENT_TIMESTAMP`,
			gameID, slideID)
		return err
	})
}

// SaveAnswer stores one student answer and waits for the write.
func (m *Manager) SaveAnswer(ctx context.Context, answer *interfaces.Answer) error {
	if answer == nil {
		return ErrNilAnswer
	}
	return m.executeWrite("save_answer", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO answers (id, game_id, slide_id, student_id, answer_data, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			answer.ID, answer.GameID, answer.SlideID, answer.StudentID,
			string(answer.Data), answer.CreatedAt.UTC())
		return err
	})
}

// CountAnswers returns the stored answer count for a slide.
func (m *Manager) CountAnswers(ctx context.Context, gameID, slideID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE game_id = ? AND slide_id = ?`,
		gameID, slideID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return count, nil
}

// HealthCheck verifies connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close stops the writer, drains accepted writes, and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	return m.db.Close()
}

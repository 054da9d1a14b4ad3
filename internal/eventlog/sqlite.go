package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/model"
)

// Log registra em SQLite os eventos classificados do canal, por conta.
// Alimenta a visão de atividade recente; não é fonte de verdade de nada.
type Log struct {
	conn *sql.DB
	log  *zap.Logger
}

func New(dataDir string, log *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("eventlog: criar diretório: %w", err)
	}

	dbPath := filepath.Join(dataDir, "console.db")
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: falha ao abrir: %w", err)
	}

	// SQLite não suporta múltiplas escritas simultâneas
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("eventlog: falha ao ping: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS event_logs (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_event_logs_account ON event_logs(account_id, created_at);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("eventlog: criar schema: %w", err)
	}

	log.Info("eventlog: sqlite conectado", zap.String("path", dbPath))
	return &Log{conn: db, log: log}, nil
}

func (l *Log) Append(ctx context.Context, entry model.EventLog) (model.EventLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO event_logs (id, account_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := l.conn.ExecContext(ctx, query,
		entry.ID, entry.AccountID, entry.Type, entry.Payload, entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.EventLog{}, fmt.Errorf("eventlog: inserir: %w", err)
	}
	return entry, nil
}

func (l *Log) ListRecent(ctx context.Context, limit int) ([]model.EventLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	query := `
		SELECT id, account_id, type, payload, created_at
		FROM event_logs
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := l.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: listar: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (l *Log) ListByAccount(ctx context.Context, accountID string) ([]model.EventLog, error) {
	query := `
		SELECT id, account_id, type, payload, created_at
		FROM event_logs
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := l.conn.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: listar por conta: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (l *Log) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := l.conn.ExecContext(ctx, `DELETE FROM event_logs WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("eventlog: deletar por conta: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]model.EventLog, error) {
	var entries []model.EventLog
	for rows.Next() {
		var entry model.EventLog
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Type, &entry.Payload, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (l *Log) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// Package history 用 SQLite 记录每次生成的结果，便于回看和排查。
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iabetor/listenbuddy/internal/logger"
	_ "modernc.org/sqlite"
)

// 运行状态。
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// 定宽时间格式，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run 是一次生成的记录。
type Run struct {
	ID        string
	Question  string
	Output    string
	Model     string
	Turns     int
	Attempts  int
	Duration  time.Duration
	Status    string
	Stage     string // 失败阶段，成功时为空
	Error     string
	CreatedAt time.Time
}

// Store 是生成记录的 SQLite 存储。
type Store struct {
	db *sql.DB
}

// Open 打开或创建数据库并完成迁移。
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("[history] 数据库路径为空")
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("[history] 创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("[history] 打开数据库失败: %w", err)
	}

	// WAL 模式下多个进程可同时读取
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("[history] 设置 WAL 模式失败: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("[history] 数据库已打开: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			turns INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("[history] 数据库迁移失败: %w", err)
		}
	}
	return nil
}

// Record 写入一条记录。CreatedAt 为零值时使用当前时间。
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("[history] 记录缺少 ID")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusOK
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, question, output, model, turns, attempts, duration_ms, status, stage, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Question, r.Output, r.Model, r.Turns, r.Attempts, r.Duration.Milliseconds(),
		r.Status, r.Stage, r.Error, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("[history] 写入记录失败: %w", err)
	}
	return nil
}

// List 按时间倒序返回最近 limit 条记录，limit <= 0 时返回全部。
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, question, output, model, turns, attempts, duration_ms, status, stage, error, created_at
		FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("[history] 查询记录失败: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			durationMs int64
			created    string
		)
		if err := rows.Scan(&r.ID, &r.Question, &r.Output, &r.Model, &r.Turns, &r.Attempts,
			&durationMs, &r.Status, &r.Stage, &r.Error, &created); err != nil {
			return nil, fmt.Errorf("[history] 读取记录失败: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(timeLayout, created); err == nil {
			r.CreatedAt = t
		} else {
			logger.Warnf("[history] 无法解析时间 %q: %v", created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

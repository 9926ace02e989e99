// Package store 管理本地 SQLite 数据库句柄（预览缓存与 master data 缓存共用）。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Error 对应持久化层失败（打开 / 建表 / 事务）。
//
// 约束：调用方拿到 *Error 时应按“缓存未命中”降级，而不是中止主流程。
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "store error"
	}
	if e.Err == nil {
		return "store " + e.Op
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStoreError 判断 err 链上是否存在 *Error。
func IsStoreError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// Open 按 DSN 打开数据库并设置连接级 PRAGMA。
//
// DSN 形如 sqlite:///abs/path.db、sqlite://rel/path.db 或 sqlite://:memory:。
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, &Error{Op: "parse dsn", Err: err}
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	// 单用户本地缓存：一个连接即可，同时保证 :memory: 库在各语句间是同一个库。
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Op: "ping", Err: err}
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, &Error{Op: "pragma", Err: fmt.Errorf("%q: %w", pragma, err)}
		}
	}
	return db, nil
}

// Lazy 是“首次使用时打开、之后复用”的数据库句柄。
//
// 规则：
// - 并发的首次调用只会打开一次（互斥保护）
// - 打开失败不缓存：下一次调用会重新尝试
type Lazy struct {
	DSN string

	mu sync.Mutex
	db *sql.DB
}

func NewLazy(dsn string) *Lazy {
	return &Lazy{DSN: dsn}
}

func (l *Lazy) DB(ctx context.Context) (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return l.db, nil
	}
	db, err := Open(ctx, l.DSN)
	if err != nil {
		return nil, err
	}
	l.db = db
	return db, nil
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// ExecScript 在一个事务内顺序执行以 ';' 结尾的多条 DDL 语句。
func ExecScript(ctx context.Context, db *sql.DB, ddl string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "begin schema", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: "schema", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "commit schema", Err: err}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(stripped, ";") {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

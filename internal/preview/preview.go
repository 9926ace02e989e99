// Package preview 是帧预览（data URI）的持久化缓存。
//
// 约束：
// - key 为帧 id（scene/frame id），value 为 data URI
// - 条目永不过期，只能显式 Clear；timestamp 仅用于诊断
// - 表结构在首次使用时创建，之后复用同一个数据库句柄
package preview

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/mtgview/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS scene_previews (
	scene_id         TEXT PRIMARY KEY,
	preview_data_url TEXT NOT NULL,
	timestamp        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scene_previews_timestamp ON scene_previews (timestamp);
`

// SQLite 默认单语句变量上限为 999（旧版本），分块查询留余量。
const batchChunk = 500

type Entry struct {
	Key     string
	DataURI string
}

type Store struct {
	lazy *store.Lazy
	now  func() time.Time

	mu    sync.Mutex
	ready bool
}

func New(lazy *store.Lazy) *Store {
	return &Store{lazy: lazy, now: time.Now}
}

func (s *Store) db(ctx context.Context) (*sql.DB, error) {
	if s == nil || s.lazy == nil {
		return nil, &store.Error{Op: "open", Err: errors.New("preview store 未初始化")}
	}
	db, err := s.lazy.DB(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		if err := store.ExecScript(ctx, db, schema); err != nil {
			return nil, err
		}
		s.ready = true
	}
	return db, nil
}

// Get 返回 key 对应的 data URI；不存在时 ok=false 且 err=nil。
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	db, err := s.db(ctx)
	if err != nil {
		return "", false, err
	}
	var uri string
	err = db.QueryRowContext(ctx, `SELECT preview_data_url FROM scene_previews WHERE scene_id = ?`, key).Scan(&uri)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &store.Error{Op: "get", Err: err}
	}
	return uri, true, nil
}

// GetBatch 只返回存在的条目；未知 key 静默省略。
func (s *Store) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	uniq := dedupe(keys)
	for start := 0; start < len(uniq); start += batchChunk {
		end := min(start+batchChunk, len(uniq))
		chunk := uniq[start:end]

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		q := `SELECT scene_id, preview_data_url FROM scene_previews WHERE scene_id IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + `)`
		rows, err := db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, &store.Error{Op: "get batch", Err: err}
		}
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				rows.Close()
				return nil, &store.Error{Op: "get batch", Err: err}
			}
			if v != "" {
				out[k] = v
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, &store.Error{Op: "get batch", Err: err}
		}
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, key, dataURI string) error {
	return s.PutBatch(ctx, []Entry{{Key: key, DataURI: dataURI}})
}

// PutBatch 在单个事务内写入全部条目（同 key 覆盖）。
func (s *Store) PutBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Op: "put batch", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scene_previews (scene_id, preview_data_url, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(scene_id) DO UPDATE SET
			preview_data_url = excluded.preview_data_url,
			timestamp = excluded.timestamp`)
	if err != nil {
		return &store.Error{Op: "put batch", Err: err}
	}
	defer stmt.Close()

	ts := s.now().UnixMilli()
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.Key, e.DataURI, ts); err != nil {
			return &store.Error{Op: "put batch", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &store.Error{Op: "put batch", Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM scene_previews`); err != nil {
		return &store.Error{Op: "clear", Err: err}
	}
	return nil
}

// Keys 按写入时间升序返回全部 key（时间相同按 key 排序）。
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT scene_id FROM scene_previews ORDER BY timestamp, scene_id`)
	if err != nil {
		return nil, &store.Error{Op: "keys", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &store.Error{Op: "keys", Err: err}
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.Error{Op: "keys", Err: err}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scene_previews`).Scan(&n); err != nil {
		return 0, &store.Error{Op: "count", Err: err}
	}
	return n, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

package masterdata

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/John-Robertt/mtgview/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS characters (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS scenes (
	key  TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS metadata (
	key       TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL
);
`

// Store 是 master data 的持久化层：每类数据一张表，外加 metadata 记录写入时间。
//
// 约束：Save 先写数据再写 metadata，两步不在同一事务内；
// 中途失败时最坏情况是数据已更新但时间戳仍旧，下一次读取会判定过期并重新拉取。
type Store struct {
	lazy *store.Lazy

	mu    sync.Mutex
	ready bool
}

func NewStore(lazy *store.Lazy) *Store {
	return &Store{lazy: lazy}
}

func (s *Store) db(ctx context.Context) (*sql.DB, error) {
	if s == nil || s.lazy == nil {
		return nil, &store.Error{Op: "open", Err: errors.New("master data store 未初始化")}
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

func metadataKey(kind Kind) string {
	return string(kind) + "_metadata"
}

// Load 返回缓存的原始 JSON 与其写入时间；不存在时 ok=false。
func (s *Store) Load(ctx context.Context, kind Kind) (data []byte, savedAt time.Time, ok bool, err error) {
	if !kind.valid() {
		return nil, time.Time{}, false, &store.Error{Op: "load", Err: errors.New("未知的 master data 类型：" + string(kind))}
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	var ts int64
	err = db.QueryRowContext(ctx, `SELECT timestamp FROM metadata WHERE key = ?`, metadataKey(kind)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, &store.Error{Op: "load metadata", Err: err}
	}

	// 表名来自白名单 Kind，不是外部输入。
	err = db.QueryRowContext(ctx, `SELECT data FROM `+string(kind)+` WHERE key = ?`, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, &store.Error{Op: "load data", Err: err}
	}
	return data, time.UnixMilli(ts), true, nil
}

// Save 写入数据，随后写入时间戳。
func (s *Store) Save(ctx context.Context, kind Kind, data []byte, at time.Time) error {
	if !kind.valid() {
		return &store.Error{Op: "save", Err: errors.New("未知的 master data 类型：" + string(kind))}
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO `+string(kind)+` (key, data) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data`,
		string(kind), data); err != nil {
		return &store.Error{Op: "save data", Err: err}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO metadata (key, timestamp) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET timestamp = excluded.timestamp`,
		metadataKey(kind), at.UnixMilli()); err != nil {
		return &store.Error{Op: "save metadata", Err: err}
	}
	return nil
}

// Clear 清空全部 master data 表（逐表执行，不保证原子）。
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	for _, table := range []string{string(KindCharacters), string(KindScenes), "metadata"} {
		if _, err := db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return &store.Error{Op: "clear " + table, Err: err}
		}
	}
	return nil
}

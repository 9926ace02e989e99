package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestParseDSN(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "sqlite://:memory:", want: ":memory:"},
		{in: "sqlite:///var/lib/mtgview.db", want: "/var/lib/mtgview.db"},
		{in: "sqlite://./data/mtgview.db", want: "./data/mtgview.db"},
		{in: "sqlite://data/mtgview.db", want: "./data/mtgview.db"},
		{in: "sqlite://data/my%20cache.db?mode=ro", want: "./data/my cache.db?mode=ro"},
		{in: "postgres://x", wantErr: true},
		{in: "sqlite://", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseDSN(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q 期望错误，但得到 %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q 不期望错误：%v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q => %q，期望 %q", tc.in, got, tc.want)
		}
	}
}

func TestOpen_BadDSNIsStoreError(t *testing.T) {
	_, err := Open(context.Background(), "file.db")
	if !IsStoreError(err) {
		t.Fatalf("期望 *Error，实际 %T %v", err, err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "parse dsn" {
		t.Fatalf("Op 不正确：%+v", se)
	}
}

func TestLazy_OpensOnceAndExecScript(t *testing.T) {
	dsn := DSNForPath(filepath.Join(t.TempDir(), "t.db"))
	l := NewLazy(dsn)
	defer l.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	got := make(chan any, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := l.DB(ctx)
			if err != nil {
				t.Errorf("打开失败：%v", err)
				return
			}
			got <- db
		}()
	}
	wg.Wait()
	close(got)
	var first any
	for db := range got {
		if first == nil {
			first = db
		} else if db != first {
			t.Fatalf("并发首次打开应复用同一个句柄")
		}
	}

	db, _ := l.DB(ctx)
	ddl := `
	-- comment
	CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);
	CREATE INDEX IF NOT EXISTS idx_kv_v ON kv (v);
	`
	if err := ExecScript(ctx, db, ddl); err != nil {
		t.Fatalf("ExecScript 失败：%v", err)
	}
	// 幂等
	if err := ExecScript(ctx, db, ddl); err != nil {
		t.Fatalf("重复 ExecScript 失败：%v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	if err := ExecScript(ctx, db, "CREATE TABLE broken ("); !IsStoreError(err) {
		t.Fatalf("非法 DDL 期望 *Error，实际 %v", err)
	}
}

func TestLazy_FailedOpenNotCached(t *testing.T) {
	l := NewLazy("bogus")
	if _, err := l.DB(context.Background()); err == nil {
		t.Fatalf("期望错误")
	}
	l.DSN = "sqlite://:memory:"
	db, err := l.DB(context.Background())
	if err != nil || db == nil {
		t.Fatalf("修正 DSN 后应能打开：%v", err)
	}
	_ = l.Close()
}

package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func readString(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	return string(b)
}

func TestWriteFileAtomic_ReplaceAndNoTempLeft(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	if err := WriteFileAtomic(dir, "report.json", []byte("v1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "report.json", []byte("v2")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}
	if got := readString(t, filepath.Join(dir, "report.json")); got != "v2" {
		t.Fatalf("内容应被替换为 v2，实际 %q", got)
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(string, string) error { return os.ErrPermission }
	defer func() { renameFunc = old }()

	if err := WriteFileAtomic(dir, "a.png", []byte("x")); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望 ErrPermission，实际 %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.png")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件：%v", err)
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomicNoOverwrite_KeepsExisting(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicNoOverwrite(dir, "s1.png", []byte("first")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(dir, "s1.png", []byte("second"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际 %v", err)
	}
	if got := readString(t, filepath.Join(dir, "s1.png")); got != "first" {
		t.Fatalf("已存在的文件不应被修改：%q", got)
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomicNoOverwrite_LinkUnsupportedFallsBack(t *testing.T) {
	dir := t.TempDir()

	old := linkFunc
	linkFunc = func(string, string) error { return errors.New("link 不支持") }
	defer func() { linkFunc = old }()

	if err := WriteFileAtomicNoOverwrite(dir, "s1.png", []byte("data")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := readString(t, filepath.Join(dir, "s1.png")); got != "data" {
		t.Fatalf("内容不一致：%q", got)
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomic_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	for name, write := range map[string]func(string, string, []byte) error{
		"replace":      WriteFileAtomic,
		"no-overwrite": WriteFileAtomicNoOverwrite,
	} {
		err := write(dir, "a.png", []byte("x"))
		if !IsPathTypeConflict(err) {
			t.Fatalf("%s：期望 PathTypeConflictError，实际 %T %v", name, err, err)
		}
	}
}

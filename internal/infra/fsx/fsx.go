// Package fsx 提供落盘相关的小工具：报告、导出图片、下载的静帧都通过这里原子写入。
package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// 测试通过替换这两个函数模拟 rename/link 失败。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// tmpPrefix 是同目录临时文件的前缀（以 '.' 开头，导出目录里默认不可见）。
const tmpPrefix = ".mtgview-"

// PathTypeConflictError 表示目标路径已存在但不是普通文件（例如同名目录）。
type PathTypeConflictError struct {
	Path string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径不是普通文件：%q（实际为 %s）", e.Path, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFileAtomic 在 dir 下写入 name，已存在则替换。
// 用于 report.json、--overwrite 导出与静帧下载。
func WriteFileAtomic(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	if err := checkTarget(dst); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return writeTemp(dir, name, data, func(tmp string) error {
		return renameFunc(tmp, dst)
	})
}

// WriteFileAtomicNoOverwrite 在 dir 下写入 name；目标已存在时返回 os.ErrExist，文件保持不变。
//
// 发布使用 hard link（已存在时由文件系统拒绝）；不支持 link 的文件系统退化为先检查再 rename。
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	if err := checkTarget(dst); err != nil {
		return err
	}
	return writeTemp(dir, name, data, func(tmp string) error {
		err := linkFunc(tmp, dst)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, os.ErrExist):
			return os.ErrExist
		}
		if err := checkTarget(dst); err != nil {
			return err
		}
		return renameFunc(tmp, dst)
	})
}

// checkTarget：不存在返回 nil；普通文件返回 os.ErrExist；其它类型返回 PathTypeConflictError。
func checkTarget(dst string) error {
	fi, err := os.Lstat(dst)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case fi.IsDir():
		return &PathTypeConflictError{Path: dst, Got: "dir"}
	case !fi.Mode().IsRegular():
		return &PathTypeConflictError{Path: dst, Got: fi.Mode().Type().String()}
	}
	return os.ErrExist
}

// writeTemp 把 data 写入 dir 下的临时文件并 fsync，再交给 publish 发布。
// 临时文件无论成败都会被删除（link 发布后目标仍保留）。
func writeTemp(dir, name string, data []byte, publish func(tmp string) error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tmpPrefix+name+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil && runtime.GOOS != "windows" {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := publish(tmpName); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}

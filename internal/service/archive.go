package service

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// DefaultCompressionLevel 归档使用的 DEFLATE 级别
const DefaultCompressionLevel = 6

// ErrArchiveFinalized 归档已经序列化，不能再写入
var ErrArchiveFinalized = errors.New("archive already finalized")

// Archive 组装过程中的文件名到内容映射
//
// 并发写入安全，同名条目后写覆盖先写。只能序列化一次。
type Archive struct {
	mu        sync.Mutex
	entries   map[string][]byte
	finalized bool
	modified  time.Time
}

// NewArchive 创建空归档，modified 作为所有条目的修改时间
func NewArchive(modified time.Time) *Archive {
	return &Archive{entries: make(map[string][]byte), modified: modified}
}

// Put 写入一个条目
func (a *Archive) Put(name string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return ErrArchiveFinalized
	}
	a.entries[name] = data
	return nil
}

// Len 条目数
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Names 按名称排序的条目名
func (a *Archive) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedNames()
}

func (a *Archive) sortedNames() []string {
	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes 以给定的 DEFLATE 级别把归档序列化为 ZIP，条目按名称排序
//
// 参数:
//   - level: 压缩级别 0-9
//
// 返回值:
//   - []byte: ZIP 内容
//   - error: 已序列化过或写入失败
func (a *Archive) Bytes(level int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return nil, ErrArchiveFinalized
	}
	a.finalized = true

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	for _, name := range a.sortedNames() {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: a.modified,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %q: %w", name, err)
		}
		if _, err := w.Write(a.entries[name]); err != nil {
			return nil, fmt.Errorf("write zip entry %q: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

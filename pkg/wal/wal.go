package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rwxr-xr-x - 適用於目錄
	FileModeExecutable fs.FileMode = 0755

	// rw------- (只有擁有者可讀寫) - 適用於私鑰、機密檔
	FileModePrivate fs.FileMode = 0600
)

// Options WAL 選項
type Options struct {
	// SyncOnWrite 每次寫入後 fsync (預設 true)
	SyncOnWrite bool
}

// WAL 以 JSON Lines 格式追加紀錄的 Write-Ahead Log
type WAL struct {
	file    *os.File
	writer  *bufio.Writer
	mu      sync.Mutex
	opts    Options
	records uint64
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	return Open(path, Options{SyncOnWrite: true})
}

// Open 以指定選項開啟 WAL，必要時建立上層目錄
func Open(path string, opts Options) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, FileModeExecutable); err != nil {
			return nil, fmt.Errorf("create wal directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return &WAL{
		file:   file,
		writer: bufio.NewWriter(file),
		opts:   opts,
	}, nil
}

// Write 寫入一筆資料 (一行 JSON)
func (w *WAL) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal wal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.opts.SyncOnWrite {
		if err := w.file.Sync(); err != nil {
			return err
		}
	}
	w.records++
	return nil
}

// Flush 把緩衝區內容寫入檔案並強制刷入硬碟
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Records 本次開啟後成功寫入的筆數
func (w *WAL) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadAll 讀取所有資料
// callback 接收每一行的 raw JSON，避免一次將所有資料載入記憶體
// 檔案尾端若有寫到一半的紀錄 (crash 造成) 會被忽略
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	var good int64
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// 截掉寫到一半的尾巴，之後的追加才不會接在殘缺紀錄後面
				if err := w.file.Truncate(good); err != nil {
					return fmt.Errorf("truncate torn wal tail: %w", err)
				}
				break
			}
			return fmt.Errorf("decode wal record: %w", err)
		}
		good = decoder.InputOffset()
		if err := callback(raw); err != nil {
			return err
		}
	}

	// O_APPEND 下寫入一律落在檔尾，這裡只是讓 offset 回到一致狀態
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// Replay 讀取所有紀錄並解碼成 T
func Replay[T any](w *WAL, fn func(T) error) error {
	return w.ReadAll(func(raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("unmarshal wal record: %w", err)
		}
		return fn(v)
	})
}

package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// 记录格式: len(4) + crc32(4) + payload
const (
	headerSize      = 8
	defaultFilePerm = 0o644
	defaultBufSize  = 64 << 10
)

// DefaultMaxPayload 防止坏数据把内存吃爆
const DefaultMaxPayload = 1 << 20

var (
	ErrCorruptHeader    = errors.New("wal: corrupt header")
	ErrCorruptPayload   = errors.New("wal: corrupt payload")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrPayloadTooLarge  = errors.New("wal: payload too large")
	ErrClosed           = errors.New("wal: writer closed")
)

type Options struct {
	BufferSize int
	// Truncate 为 true 时打开即清空文件，否则追加
	Truncate bool
}

type Writer struct {
	f  *os.File
	bw *bufio.Writer
	// 已写入的逻辑偏移（包含还在 bufio 里的数据）
	off int64
}

func OpenWrite(path string, opts Options) (*Writer, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flag, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &Writer{
		f:   file,
		bw:  bufio.NewWriterSize(file, opts.BufferSize),
		off: stat.Size(),
	}, nil
}

// Append 写入一条记录，数据先落在 bufio 里
func (w *Writer) Append(payload []byte) error {
	if w.f == nil {
		return ErrClosed
	}
	if len(payload) > DefaultMaxPayload {
		return ErrPayloadTooLarge
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.ChecksumIEEE(payload))
	if _, err := w.bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHeader, err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	w.off += int64(headerSize + len(payload))
	return nil
}

func (w *Writer) Offset() int64 { return w.off }

// Flush 把 bufio 刷到内核，什么时候落盘由操作系统决定
func (w *Writer) Flush() error {
	if w.f == nil {
		return ErrClosed
	}
	return w.bw.Flush()
}

// Sync Flush 之后再 fsync
func (w *Writer) Sync() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Close 具备持久化语义：flush + fsync + close，重复调用返回 nil
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	if err := w.bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type ReplayOptions struct {
	MaxPayload int // <=0 用 DefaultMaxPayload
	// 最后一条记录半写时是否视为正常结束
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay 顺序读取 path 中的记录并回调 onRecord；文件不存在视为空
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	maxPayload := opts.MaxPayload
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, defaultBufSize)
	var hdr [headerSize]byte
	var off int64
	for {
		if _, err = io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				st.TruncatedTail = true
				if opts.AllowTruncatedTail {
					return st, nil
				}
				return st, ErrCorruptHeader
			}
			return st, err
		}

		ln := int(binary.LittleEndian.Uint32(hdr[0:4]))
		crc := binary.LittleEndian.Uint32(hdr[4:8])
		if ln > maxPayload {
			return st, ErrPayloadTooLarge
		}

		payload := make([]byte, ln)
		if _, err = io.ReadFull(br, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				st.TruncatedTail = true
				if opts.AllowTruncatedTail {
					return st, nil
				}
				return st, ErrCorruptPayload
			}
			return st, err
		}
		if crc32.ChecksumIEEE(payload) != crc {
			return st, ErrChecksumMismatch
		}

		if err := onRecord(payload); err != nil {
			return st, err
		}
		off += int64(headerSize + ln)
		st.Records++
		st.LastGoodOffset = off
	}
}

// TruncateTo 把文件截断到 offset，用于丢掉半写的尾巴；offset 超过文件大小时什么也不做
func TruncateTo(path string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("wal: negative truncate offset %d", offset)
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if offset >= st.Size() {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(offset); err != nil {
		return err
	}
	_ = f.Sync()
	return nil
}

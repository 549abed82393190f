package filecheck

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"syscall"
	"unicode"
	"unicode/utf8"
)

// readBufferSize 每次读取文件的缓冲区大小(1MiB)
const readBufferSize = 1 << 20

// ComputeError 表示计算某个文件校验和时发生的I/O错误
//
// Op：失败的操作(open / read / close)
// Path：文件路径
// Err：底层错误
type ComputeError struct {
	Op   string
	Path string
	Err  error
}

func (e *ComputeError) Error() string {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return fmt.Sprintf("%s: [%d] %s", e.Op, int(errno), errno.Error())
	}
	return fmt.Sprintf("%s: %v", e.Op, unwrapPathError(e.Err))
}

func (e *ComputeError) Unwrap() error { return e.Err }

// Description 返回报告中使用的错误描述，形如 strerror 的输出(如 "Permission denied")
func (e *ComputeError) Description() string {
	var msg string
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		msg = errno.Error()
	} else {
		msg = unwrapPathError(e.Err).Error()
	}
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	return string(unicode.ToUpper(r)) + msg[size:]
}

func unwrapPathError(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Checksum 以流的方式计算r的CRC-32(反射多项式，初值0xFFFFFFFF，结果取反)
//
// 返回校验值与读取的字节数。结果只取决于字节内容，与读取分块方式无关。
func Checksum(r io.Reader) (uint32, int64, error) {
	h := crc32.NewIEEE()
	buf := make([]byte, readBufferSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return 0, n, err
	}
	return h.Sum32(), n, nil
}

// ChecksumFile 计算path指向文件的校验值
//
// 所有失败都以 *ComputeError 返回
func ChecksumFile(path string) (uint32, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &ComputeError{Op: "open", Path: path, Err: err}
	}

	sum, n, readErr := Checksum(onlyReader{f})
	closeErr := f.Close()
	if readErr != nil {
		return 0, n, &ComputeError{Op: "read", Path: path, Err: readErr}
	}
	if closeErr != nil {
		return 0, n, &ComputeError{Op: "close", Path: path, Err: closeErr}
	}
	return sum, n, nil
}

// onlyReader 隐藏 *os.File 的 WriterTo，让 io.CopyBuffer 使用我们的缓冲区
type onlyReader struct{ io.Reader }

// FormatDigest 把校验值格式化为报告中使用的 0xXXXXXXXX 形式
func FormatDigest(sum uint32) string {
	return fmt.Sprintf("0x%08X", sum)
}

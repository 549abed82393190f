package filecheck

import (
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"testing/iotest"
)

// TestChecksumKnownVectors 测试标准CRC-32向量
func TestChecksumKnownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"", 0x00000000},
		{"123456789", 0xCBF43926},
		{"The quick brown fox jumps over the lazy dog", 0x414FA339},
	}
	for _, c := range cases {
		got, n, err := Checksum(strings.NewReader(c.in))
		if err != nil {
			t.Fatalf("Checksum(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Checksum(%q) = %08X; want %08X", c.in, got, c.want)
		}
		if n != int64(len(c.in)) {
			t.Errorf("Checksum(%q) read %d bytes; want %d", c.in, n, len(c.in))
		}
	}
}

// TestChecksumChunkIndependent 不同的读取分块必须得到相同结果
func TestChecksumChunkIndependent(t *testing.T) {
	data := make([]byte, 3*readBufferSize+17)
	rand.New(rand.NewSource(1)).Read(data)
	want := crc32.ChecksumIEEE(data)

	readers := map[string]func() io.Reader{
		"whole":    func() io.Reader { return bytes.NewReader(data) },
		"half":     func() io.Reader { return iotest.HalfReader(bytes.NewReader(data)) },
		"data-err": func() io.Reader { return iotest.DataErrReader(bytes.NewReader(data)) },
	}
	for name, mk := range readers {
		got, _, err := Checksum(mk())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: got %08X; want %08X", name, got, want)
		}
	}

	small := data[:4096]
	got, _, err := Checksum(iotest.OneByteReader(bytes.NewReader(small)))
	if err != nil {
		t.Fatal(err)
	}
	if got != crc32.ChecksumIEEE(small) {
		t.Errorf("one-byte reader: got %08X; want %08X", got, crc32.ChecksumIEEE(small))
	}
}

func TestChecksumReadError(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := Checksum(iotest.ErrReader(boom))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(path, []byte("123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, n, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile failed: %v", err)
	}
	if sum != 0xCBF43926 || n != 9 {
		t.Errorf("ChecksumFile = %08X, %d; want CBF43926, 9", sum, n)
	}
}

func TestChecksumFileMissing(t *testing.T) {
	_, _, err := ChecksumFile(filepath.Join(t.TempDir(), "nope"))
	var ce *ComputeError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ComputeError, got %T (%v)", err, err)
	}
	if ce.Op != "open" {
		t.Errorf("Op = %q; want open", ce.Op)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist in chain: %v", err)
	}
	if !strings.HasPrefix(ce.Error(), "open: [2] ") {
		t.Errorf("Error() = %q; want errno prefix", ce.Error())
	}
	if got := ce.Description(); got != "No such file or directory" {
		t.Errorf("Description() = %q; want strerror text", got)
	}
}

func TestComputeErrorDescription(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&os.PathError{Op: "read", Path: "/d/x", Err: syscall.EIO}, "Input/output error"},
		{syscall.EACCES, "Permission denied"},
		{errors.New("short read"), "Short read"},
		{errors.New(""), ""},
	}
	for _, tt := range tests {
		ce := &ComputeError{Op: "read", Path: "/d/x", Err: tt.err}
		if got := ce.Description(); got != tt.want {
			t.Errorf("Description(%v) = %q; want %q", tt.err, got, tt.want)
		}
	}
}

func TestFormatDigest(t *testing.T) {
	if got := FormatDigest(0x99AABBCC); got != "0x99AABBCC" {
		t.Errorf("FormatDigest = %s", got)
	}
	if got := FormatDigest(0x1); got != "0x00000001" {
		t.Errorf("FormatDigest = %s", got)
	}
}

// BenchmarkChecksumFile 基准测试
func BenchmarkChecksumFile(b *testing.B) {
	path := filepath.Join(b.TempDir(), "benchfile")
	data := make([]byte, 1024*1024) // 1MB
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = ChecksumFile(path)
	}
}

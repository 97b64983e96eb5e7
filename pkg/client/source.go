package client

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Source is the content being uploaded. Chunks are read with ReadAt so
// several can be in flight at once.
type Source interface {
	io.ReaderAt
	Name() string
	Size() int64
}

// Fingerprinter is implemented by sources that can be recognised across
// client restarts. Only such sources are resumable.
type Fingerprinter interface {
	Fingerprint() string
}

// FileSource is a file on the local filesystem
type FileSource struct {
	*os.File
	name        string
	size        int64
	fingerprint string
}

// OpenFile opens path for upload. The fingerprint covers the absolute path,
// size and modification time, so editing the file starts a fresh upload.
func OpenFile(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	h := sha256.New()
	h.Write([]byte(abs))
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))

	return &FileSource{
		File:        f,
		name:        info.Name(),
		size:        info.Size(),
		fingerprint: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *FileSource) Name() string        { return s.name }
func (s *FileSource) Size() int64         { return s.size }
func (s *FileSource) Fingerprint() string { return s.fingerprint }

type bytesSource struct {
	*bytes.Reader
	name string
	sum  string
}

// BytesSource wraps in-memory content. Its fingerprint is the content hash.
func BytesSource(name string, data []byte) Source {
	sum := sha256.Sum256(data)
	return &bytesSource{
		Reader: bytes.NewReader(data),
		name:   name,
		sum:    hex.EncodeToString(sum[:]),
	}
}

func (s *bytesSource) Name() string        { return s.name }
func (s *bytesSource) Fingerprint() string { return s.sum }

func fingerprintOf(src Source) string {
	if fp, ok := src.(Fingerprinter); ok {
		return fp.Fingerprint()
	}
	return ""
}

package post

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// File is a single user-selected file.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// BytesFile is a File held in memory.
type BytesFile struct {
	Filename string
	Content  []byte
}

func (f BytesFile) Name() string { return f.Filename }
func (f BytesFile) Size() int64  { return int64(len(f.Content)) }
func (f BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

// DiskFile is a File on the local filesystem.
type DiskFile struct {
	Path string
	size int64
}

// OpenDiskFile stats path and returns it as a File.
func OpenDiskFile(path string) (DiskFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return DiskFile{}, err
	}
	return DiskFile{Path: path, size: fi.Size()}, nil
}

func (f DiskFile) Name() string { return filepath.Base(f.Path) }
func (f DiskFile) Size() int64  { return f.size }
func (f DiskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Select returns the only file of a selection. Empty and multi-file
// selections yield ErrNoSelection, which callers treat as no change.
func Select(files []File) (File, error) {
	if len(files) != 1 {
		return nil, ErrNoSelection
	}
	return files[0], nil
}

// EncodeSelection encodes the only file of a selection.
func EncodeSelection(files []File) (EmbeddedImage, error) {
	f, err := Select(files)
	if err != nil {
		return EmbeddedImage{}, err
	}
	return Encode(f)
}

// Encode turns f into an inline data-URL image. The declared size is checked
// before anything is read; the base64 growth of the result is not limited.
func Encode(f File) (EmbeddedImage, error) {
	if f.Size() > MaxAttachmentBytes {
		return EmbeddedImage{}, ErrSizeExceeded
	}
	rc, err := f.Open()
	if err != nil {
		return EmbeddedImage{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxAttachmentBytes+1))
	if err != nil {
		return EmbeddedImage{}, err
	}
	if len(data) > MaxAttachmentBytes {
		return EmbeddedImage{}, ErrSizeExceeded
	}

	mime, err := sniffImage(f.Name(), data)
	if err != nil {
		return EmbeddedImage{}, err
	}
	return EmbeddedImage{
		Encoding: EncodingBase64,
		Data:     "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// sniffImage returns the MIME type of an image by decoding its header.
// SVG has no raster header and is recognised by name and root element.
func sniffImage(name string, data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return "image/" + format, nil
	}
	if strings.EqualFold(filepath.Ext(name), ".svg") && bytes.Contains(data, []byte("<svg")) {
		return "image/svg+xml", nil
	}
	return "", ErrNotImage
}

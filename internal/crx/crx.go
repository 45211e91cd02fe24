// Package crx reads CRX3 browser-extension packages. A CRX3 file is a small
// fixed header, a signed protobuf header of declared length, and then a plain
// zip archive. Archive exposes that trailing zip as if it started at offset 0.
package crx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic is the CRX signature stored in the first four bytes ("Cr24").
var Magic = [4]byte{'C', 'r', '2', '4'}

// SupportedVersion is the only CRX format version this package understands.
const SupportedVersion = 3

// fixedHeaderSize covers magic, version and header length.
const fixedHeaderSize = 12

// ErrInvalidFormat is returned when the signature, version or header length
// does not describe a readable CRX3 package.
var ErrInvalidFormat = errors.New("crx: invalid format")

// Header describes the fixed part of a CRX3 package.
type Header struct {
	Magic        [4]byte
	Version      uint32
	HeaderLength uint32
	// ArchiveOffset is the absolute position of the embedded zip archive.
	ArchiveOffset int64
}

// Archive is a read-only view of the zip archive embedded in a CRX3 package.
// Absolute seeks are shifted by the archive offset so callers see a clean
// archive at position 0; relative seeks pass through unchanged. Positions
// returned by Seek are relative to the archive start.
type Archive struct {
	src    io.ReadSeeker
	closer io.Closer
	header Header
	size   int64
}

// Open opens the CRX3 file at path and validates its header.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open crx: %w", err)
	}
	a, err := NewArchive(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the CRX3 header from src, which must be positioned at the
// start of the package. On success src is left at the start of the archive.
func NewArchive(src io.ReadSeeker) (*Archive, error) {
	h, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("crx: measure size: %w", err)
	}
	if end < h.ArchiveOffset {
		return nil, fmt.Errorf("%w: header length %d exceeds file size %d", ErrInvalidFormat, h.HeaderLength, end)
	}
	if _, err := src.Seek(h.ArchiveOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("crx: seek archive: %w", err)
	}
	return &Archive{src: src, header: h, size: end - h.ArchiveOffset}, nil
}

func readHeader(r io.Reader) (Header, error) {
	var h Header
	var buf [4]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, fmt.Errorf("%w: read signature: %v", ErrInvalidFormat, err)
	}
	if !bytes.Equal(buf[:], Magic[:]) {
		return h, fmt.Errorf("%w: signature %x", ErrInvalidFormat, binary.LittleEndian.Uint32(buf[:]))
	}
	h.Magic = buf

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, fmt.Errorf("%w: read version: %v", ErrInvalidFormat, err)
	}
	h.Version = binary.LittleEndian.Uint32(buf[:])
	if h.Version != SupportedVersion {
		return h, fmt.Errorf("%w: version %d", ErrInvalidFormat, h.Version)
	}

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, fmt.Errorf("%w: read header length: %v", ErrInvalidFormat, err)
	}
	h.HeaderLength = binary.LittleEndian.Uint32(buf[:])
	h.ArchiveOffset = fixedHeaderSize + int64(h.HeaderLength)
	return h, nil
}

// Header returns the parsed package header.
func (a *Archive) Header() Header { return a.header }

// Size is the length of the embedded archive in bytes.
func (a *Archive) Size() int64 { return a.size }

func (a *Archive) Read(p []byte) (int, error) {
	return a.src.Read(p)
}

// Seek translates absolute positions into the underlying package. Negative
// absolute offsets are passed through untouched so the source reports the error.
func (a *Archive) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart && offset >= 0 {
		offset += a.header.ArchiveOffset
	}
	pos, err := a.src.Seek(offset, whence)
	return pos - a.header.ArchiveOffset, err
}

// ReadAt reads from the archive at off, relative to the archive start.
func (a *Archive) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("crx: negative offset")
	}
	ra, ok := a.src.(io.ReaderAt)
	if !ok {
		return 0, errors.New("crx: source does not support ReadAt")
	}
	if off >= a.size {
		return 0, io.EOF
	}
	if remain := a.size - off; int64(len(p)) > remain {
		n, err := ra.ReadAt(p[:remain], off+a.header.ArchiveOffset)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return ra.ReadAt(p, off+a.header.ArchiveOffset)
}

// Close closes the underlying file when the archive was opened with Open.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

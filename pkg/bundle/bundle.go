// Package bundle aggregates icon results into a single downloadable file:
// a ZIP archive of the individual PNGs or a Windows ICO container.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/menta2k/toolbox/pkg/types"
)

// Format selects the bundle container.
type Format string

const (
	FormatZip Format = "zip"
	FormatICO Format = "ico"
)

// MaxICOSize is the largest icon an ICO directory entry can describe.
const MaxICOSize = 256

var (
	ErrEmpty         = errors.New("nothing to bundle")
	ErrUnknownFormat = errors.New("unknown bundle format")
)

// ParseFormat maps "zip" or "ico" to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatZip, FormatICO:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Ext returns the file extension of the format, dot included.
func (f Format) Ext() string { return "." + string(f) }

// MimeType returns the content type of the format.
func (f Format) MimeType() string {
	if f == FormatICO {
		return "image/x-icon"
	}
	return "application/zip"
}

// Write encodes results into w using format.
func Write(w io.Writer, format Format, results []types.RasterResult) error {
	switch format {
	case FormatZip:
		return Zip(w, results)
	case FormatICO:
		return ICO(w, results)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Bytes is Write into memory.
func Bytes(format Format, results []types.RasterResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, format, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Zip writes one deflated entry per result, named after the result.
func Zip(w io.Writer, results []types.RasterResult) error {
	if len(results) == 0 {
		return ErrEmpty
	}
	zw := zip.NewWriter(w)
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("icon-%dx%d.png", r.Width, r.Height)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := fw.Write(r.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip: %w", err)
	}
	return nil
}

// ICO writes a Windows icon with PNG-compressed images. Results larger than
// MaxICOSize or not square are skipped.
func ICO(w io.Writer, results []types.RasterResult) error {
	entries := make([]types.RasterResult, 0, len(results))
	for _, r := range results {
		if r.Width == r.Height && r.Width > 0 && r.Width <= MaxICOSize && len(r.Data) > 0 {
			entries = append(entries, r)
		}
	}
	if len(entries) == 0 {
		return ErrEmpty
	}

	const headerSize, entrySize = 6, 16
	var buf bytes.Buffer
	le := binary.LittleEndian

	header := make([]byte, headerSize)
	le.PutUint16(header[2:], 1) // type: icon
	le.PutUint16(header[4:], uint16(len(entries)))
	buf.Write(header)

	offset := uint32(headerSize + entrySize*len(entries))
	for _, r := range entries {
		e := make([]byte, entrySize)
		e[0] = dimByte(r.Width)
		e[1] = dimByte(r.Height)
		le.PutUint16(e[4:], 1)  // planes
		le.PutUint16(e[6:], 32) // bits per pixel
		le.PutUint32(e[8:], uint32(len(r.Data)))
		le.PutUint32(e[12:], offset)
		buf.Write(e)
		offset += uint32(len(r.Data))
	}
	for _, r := range entries {
		buf.Write(r.Data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// 256 is stored as 0
func dimByte(n int) byte {
	if n >= MaxICOSize {
		return 0
	}
	return byte(n)
}

// Package program reads cellvm program images.
//
// An image is a flat sequence of 32-bit cells in host byte order. Images may
// be stored zstd-compressed; compressed input is recognised by the zstd frame
// magic and expanded transparently. Raw images carry no header, so a
// cell-aligned image that starts with the magic but does not decode as zstd
// is taken as raw cells. Every image is identified by the hash of
// its expanded bytes, so a packed and an unpacked copy share one ID.
package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/cellvm/internal/types"
	"github.com/fortiblox/cellvm/pkg/cpu"
)

// MaxImageSize bounds an expanded image, in bytes.
const MaxImageSize = 64 << 20

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// ErrImageTooLarge is returned for images above MaxImageSize.
	ErrImageTooLarge = errors.New("program image too large")

	// ErrDecompressionFailed is returned when a compressed image is corrupt.
	ErrDecompressionFailed = errors.New("zstd decompression failed")
)

// Image is a program ready to be loaded into memory.
type Image struct {
	// Data holds the expanded program cells as raw bytes.
	Data []byte

	// ID is the hash of Data.
	ID types.ProgramID

	// Packed reports whether the source bytes were zstd-compressed.
	Packed bool
}

// New builds an image from raw or packed bytes. The image keeps a reference
// to data when it is not packed.
func New(data []byte) (*Image, error) {
	img := &Image{}
	if IsPacked(data) {
		raw, err := unpack(data)
		switch {
		case err == nil:
			data = raw
			img.Packed = true
		case errors.Is(err, ErrDecompressionFailed) && len(data)%cpu.CellSize == 0:
			// A raw program whose first cell matches the magic.
		default:
			return nil, err
		}
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(data))
	}
	if len(data)%cpu.CellSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", cpu.ErrMisalignedProgram, len(data))
	}
	img.Data = data
	img.ID = types.ProgramIDOf(data)
	return img, nil
}

// Read reads an image from r.
func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	return New(data)
}

// Open reads an image from a file.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// FromCells builds an image from decoded cells.
func FromCells(cells []int32) *Image {
	data := cpu.EncodeCells(cells)
	return &Image{Data: data, ID: types.ProgramIDOf(data)}
}

// Cells returns the number of program cells.
func (img *Image) Cells() int {
	return len(img.Data) / cpu.CellSize
}

// Load lays the image out in front of a stack of stackCapacity cells.
func (img *Image) Load(stackCapacity int) (*cpu.Memory, error) {
	return cpu.LoadMemory(bytes.NewReader(img.Data), stackCapacity)
}

// Pack returns the image compressed with zstd.
func (img *Image) Pack() ([]byte, error) {
	return Pack(img.Data)
}

// IsPacked reports whether data starts with a zstd frame.
func IsPacked(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// Pack compresses raw program bytes.
func Pack(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

// unpack expands a zstd image, refusing output above MaxImageSize.
func unpack(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	defer decoder.Close()

	raw, err := io.ReadAll(io.LimitReader(decoder, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	if len(raw) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	return raw, nil
}

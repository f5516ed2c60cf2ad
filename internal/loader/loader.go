// Package loader detects an executable's container format and opens it with
// the matching image reader.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"x2arm/internal/elfx"
	"x2arm/internal/image"
	"x2arm/internal/machox"
	"x2arm/internal/pex"
)

const (
	machoMagic32 = 0xfeedface
	machoMagic64 = 0xfeedfacf
	fatMagic     = 0xcafebabe
	fatMagic64   = 0xcafebabf
)

// Detect reports the container format of data from its leading magic bytes.
func Detect(data []byte) (image.Format, error) {
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		return image.FormatELF, nil
	case bytes.HasPrefix(data, []byte("MZ")):
		return image.FormatPE, nil
	case len(data) < 4:
		return 0, fmt.Errorf("loader: %w: file too short", image.ErrUnsupportedFormat)
	}

	le, be := binary.LittleEndian.Uint32(data), binary.BigEndian.Uint32(data)
	switch {
	case le == machoMagic32, le == machoMagic64, be == machoMagic32, be == machoMagic64:
		return image.FormatMachO, nil
	case be == fatMagic, be == fatMagic64:
		return 0, fmt.Errorf("loader: %w: universal (fat) Mach-O, extract a thin slice first", image.ErrUnsupportedFormat)
	}
	return 0, fmt.Errorf("loader: %w: unrecognised magic % x", image.ErrUnsupportedFormat, data[:4])
}

// Open maps path and returns the image for its format. The caller must Close it.
func Open(path string) (image.Image, error) {
	m, err := image.Map(path)
	if err != nil {
		return nil, err
	}

	var im image.Image
	format, err := Detect(m.Bytes())
	if err == nil {
		switch format {
		case image.FormatELF:
			im, err = elfx.New(m)
		case image.FormatPE:
			im, err = pex.New(m)
		case image.FormatMachO:
			im, err = machox.New(m)
		}
	}
	if err != nil {
		m.Close()
		return nil, err
	}
	return im, nil
}

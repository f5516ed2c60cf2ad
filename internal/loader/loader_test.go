package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"x2arm/internal/elfx/elftest"
	"x2arm/internal/image"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    image.Format
		wantErr error
	}{
		{"elf", []byte("\x7fELF\x02\x01\x01"), image.FormatELF, nil},
		{"pe", []byte("MZ\x90\x00"), image.FormatPE, nil},
		{"macho64 le", []byte{0xcf, 0xfa, 0xed, 0xfe}, image.FormatMachO, nil},
		{"macho32 be", []byte{0xfe, 0xed, 0xfa, 0xce}, image.FormatMachO, nil},
		{"fat", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 2}, 0, image.ErrUnsupportedFormat},
		{"script", []byte("#!/bin/sh\n"), 0, image.ErrUnsupportedFormat},
		{"short", []byte{0x7f}, 0, image.ErrUnsupportedFormat},
		{"empty", nil, 0, image.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenELF(t *testing.T) {
	path := elftest.Write(t, []byte{0xc3}, elftest.Options{})
	im, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	if im.Format() != image.FormatELF || im.Arch() != image.ArchX86_64 {
		t.Errorf("got %v/%v", im.Format(), im.Arch())
	}
	if im.Entry() != elftest.TextVA {
		t.Errorf("Entry = %#x", im.Entry())
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "nope")); !errors.Is(err, image.ErrIO) {
		t.Errorf("missing file err = %v, want ErrIO", err)
	}

	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(text); !errors.Is(err, image.ErrUnsupportedFormat) {
		t.Errorf("text file err = %v, want ErrUnsupportedFormat", err)
	}

	trunc := filepath.Join(dir, "trunc")
	if err := os.WriteFile(trunc, []byte("\x7fELF\x02\x01"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(trunc); !errors.Is(err, image.ErrMalformedBinary) {
		t.Errorf("truncated ELF err = %v, want ErrMalformedBinary", err)
	}
}

package npz

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"
)

// buildNPY constructs a minimal version-1.0 .npy file with the given shape,
// dtype and raw data.
func buildNPY(t *testing.T, shape string, dtype string, data []byte) []byte {
	t.Helper()
	header := "{'descr': '" + dtype + "', 'fortran_order': False, 'shape': " + shape + ", }"
	// Pad so magic(6)+version(2)+headerlen(2)+header is a multiple of 16 before the
	// trailing newline; padding is not required for our own decoder to round-trip correctly.
	for (10+len(header))%16 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.WriteByte(1) // major
	buf.WriteByte(0) // minor
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(header)))
	buf.Write(lenBuf)
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func buildNPZ(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeArchiveRoundTrip(t *testing.T) {
	imgData := []byte{10, 20, 30, 40}
	npy := buildNPY(t, "(2, 2)", "|u1", imgData)
	archive := buildNPZ(t, map[string][]byte{"w1_image.npy": npy})

	arrays, err := DecodeArchive(archive)
	if err != nil {
		t.Fatalf("DecodeArchive: %v", err)
	}

	arr, ok := arrays["w1_image"]
	if !ok {
		t.Fatalf("expected member w1_image, got %v", arrays)
	}
	if arr.DType != "|u1" {
		t.Errorf("dtype = %q, want |u1", arr.DType)
	}
	if len(arr.Shape) != 2 || arr.Shape[0] != 2 || arr.Shape[1] != 2 {
		t.Errorf("shape = %v, want [2 2]", arr.Shape)
	}
	if !bytes.Equal(arr.Data, imgData) {
		t.Errorf("data = %v, want %v", arr.Data, imgData)
	}
}

func TestNormalizeToPNGGrayscale(t *testing.T) {
	arr := Array{DType: "|u1", Shape: []int{2, 2}, Data: []byte{0, 64, 128, 255}}
	png, err := NormalizeToPNG(arr)
	if err != nil {
		t.Fatalf("NormalizeToPNG: %v", err)
	}
	if !IsPNG(png) {
		t.Errorf("output does not start with PNG magic")
	}
}

func TestIsPNGAndIsZIP(t *testing.T) {
	if !IsZIP([]byte("PK\x03\x04rest")) {
		t.Errorf("IsZIP should be true for PK header")
	}
	if IsZIP([]byte("\x89PNG")) {
		t.Errorf("IsZIP should be false for PNG header")
	}
	if !IsPNG([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}) {
		t.Errorf("IsPNG should be true for PNG header")
	}
}

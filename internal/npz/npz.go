// Package npz decodes NPZ archives (a ZIP container of .npy numeric-array
// members) produced by the encoder service, and normalizes decoded arrays
// into PNG-encoded images. No third-party NPY/NPZ library is introduced:
// the format is a plain ZIP plus a small NPY header, and both archive/zip
// and encoding/binary already cover it.
package npz

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"
)

// Array is a decoded .npy member: its dtype descriptor, shape, and raw
// row-major buffer.
type Array struct {
	Name    string
	DType   string // numpy dtype string, e.g. "<f8", "|u1"
	Shape   []int
	Fortran bool
	Data    []byte
}

// Len returns the total element count described by Shape.
func (a Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Float64 decodes Data as a flat slice of float64, converting from the
// array's native dtype (float32/float64 supported).
func (a Array) Float64() ([]float64, error) {
	n := a.Len()
	out := make([]float64, n)
	switch a.DType {
	case "<f8", "=f8", ">f8":
		bo := byteOrder(a.DType)
		for i := 0; i < n; i++ {
			bits := bo.Uint64(a.Data[i*8 : i*8+8])
			out[i] = math.Float64frombits(bits)
		}
	case "<f4", "=f4", ">f4":
		bo := byteOrder(a.DType)
		for i := 0; i < n; i++ {
			bits := bo.Uint32(a.Data[i*4 : i*4+4])
			out[i] = float64(math.Float32frombits(bits))
		}
	case "|u1":
		for i := 0; i < n; i++ {
			out[i] = float64(a.Data[i])
		}
	default:
		return nil, fmt.Errorf("npz: unsupported dtype %q", a.DType)
	}
	return out, nil
}

// Bytes returns Data unchanged, for |u1 (uint8) arrays.
func (a Array) Bytes() []byte { return a.Data }

func byteOrder(dtype string) binary.ByteOrder {
	if strings.HasPrefix(dtype, ">") {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeArchive reads a ZIP (NPZ) container and decodes every .npy member.
func DecodeArchive(data []byte) (map[string]Array, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("npz: open archive: %w", err)
	}

	out := make(map[string]Array, len(r.File))
	for _, f := range r.File {
		name := strings.TrimSuffix(f.Name, ".npy")
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("npz: open member %s: %w", f.Name, err)
		}
		buf, err := io.ReadAll(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("npz: read member %s: %w", f.Name, err)
		}
		_ = rc.Close()

		arr, err := decodeNPY(buf)
		if err != nil {
			return nil, fmt.Errorf("npz: decode member %s: %w", f.Name, err)
		}
		arr.Name = name
		out[name] = arr
	}
	return out, nil
}

var npyMagic = []byte("\x93NUMPY")

// decodeNPY parses the published .npy format: magic, version, header length,
// a Python-literal dict describing shape/dtype/fortran_order, then the raw
// little- or big-endian buffer.
func decodeNPY(buf []byte) (Array, error) {
	if len(buf) < 10 || !bytes.Equal(buf[:6], npyMagic) {
		return Array{}, fmt.Errorf("bad npy magic")
	}
	major := buf[6]

	var headerLen int
	var headerStart int
	if major == 1 {
		headerLen = int(binary.LittleEndian.Uint16(buf[8:10]))
		headerStart = 10
	} else {
		headerLen = int(binary.LittleEndian.Uint32(buf[8:12]))
		headerStart = 12
	}
	headerEnd := headerStart + headerLen
	if headerEnd > len(buf) {
		return Array{}, fmt.Errorf("npy header truncated")
	}
	header := string(buf[headerStart:headerEnd])

	dtype, err := extractLiteral(header, "descr")
	if err != nil {
		return Array{}, err
	}
	fortranStr, err := extractLiteral(header, "fortran_order")
	if err != nil {
		return Array{}, err
	}
	shapeStr, err := extractShape(header)
	if err != nil {
		return Array{}, err
	}

	return Array{
		DType:   dtype,
		Shape:   shapeStr,
		Fortran: fortranStr == "True",
		Data:    buf[headerEnd:],
	}, nil
}

// extractLiteral pulls the quoted or bare value for a 'key': value pair out
// of the NPY header's Python-dict-literal text.
func extractLiteral(header, key string) (string, error) {
	needle := "'" + key + "':"
	idx := strings.Index(header, needle)
	if idx < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	rest := strings.TrimSpace(header[idx+len(needle):])
	if strings.HasPrefix(rest, "'") {
		rest = rest[1:]
		end := strings.Index(rest, "'")
		if end < 0 {
			return "", fmt.Errorf("npy header malformed %q value", key)
		}
		return rest[:end], nil
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end]), nil
}

// extractShape parses the 'shape': (a, b, c) tuple.
func extractShape(header string) ([]int, error) {
	needle := "'shape':"
	idx := strings.Index(header, needle)
	if idx < 0 {
		return nil, fmt.Errorf("npy header missing shape")
	}
	rest := header[idx+len(needle):]
	open := strings.Index(rest, "(")
	shut := strings.Index(rest, ")")
	if open < 0 || shut < 0 || shut < open {
		return nil, fmt.Errorf("npy header malformed shape")
	}
	inner := rest[open+1 : shut]
	parts := strings.Split(inner, ",")
	shape := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("npy header shape element %q: %w", p, err)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

// NormalizeToPNG converts a decoded image array (H, W[, C]) into PNG bytes.
// Values are assumed uint8-range; if the array is float-typed with max <= 1.0
// it is scaled by 255 first, matching the model's normalized-float output.
func NormalizeToPNG(a Array) ([]byte, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("npz: image array needs at least 2 dims, got %v", a.Shape)
	}
	h, w := a.Shape[0], a.Shape[1]
	channels := 1
	if len(a.Shape) == 3 {
		channels = a.Shape[2]
	}

	var pixels []float64
	var err error
	if a.DType == "|u1" {
		pixels = make([]float64, a.Len())
		for i, b := range a.Bytes() {
			pixels[i] = float64(b)
		}
	} else {
		pixels, err = a.Float64()
		if err != nil {
			return nil, err
		}
		max := 0.0
		for _, v := range pixels {
			if v > max {
				max = v
			}
		}
		if max <= 1.0 {
			for i := range pixels {
				pixels[i] *= 255.0
			}
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + x) * channels
			switch channels {
			case 1:
				v := clampByte(pixels[base])
				img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
			case 3:
				img.Set(x, y, color.RGBA{
					R: clampByte(pixels[base]),
					G: clampByte(pixels[base+1]),
					B: clampByte(pixels[base+2]),
					A: 255,
				})
			case 4:
				img.Set(x, y, color.RGBA{
					R: clampByte(pixels[base]),
					G: clampByte(pixels[base+1]),
					B: clampByte(pixels[base+2]),
					A: clampByte(pixels[base+3]),
				})
			default:
				return nil, fmt.Errorf("npz: unsupported channel count %d", channels)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("npz: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// IsPNG reports whether data begins with the PNG magic number.
func IsPNG(data []byte) bool {
	sig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(data) >= len(sig) && bytes.Equal(data[:len(sig)], sig)
}

// IsZIP reports whether data begins with the "PK" local-file-header magic.
func IsZIP(data []byte) bool {
	return len(data) >= 2 && data[0] == 'P' && data[1] == 'K'
}

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Format is an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
)

// maxDocumentBytes caps the decoded size of an artifact so a small
// compressed file can't exhaust memory.
const maxDocumentBytes = 256 << 20

// cborEnc produces Core Deterministic Encoding: identical documents always
// serialize to identical bytes, hence identical fingerprints.
var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("model: CBOR encoder initialization failed: " + err.Error())
	}
}

// FormatOf returns the encoding selected by name's extension and whether the
// file is zstd compressed.
func FormatOf(name string) (Format, bool, error) {
	base := strings.ToLower(filepath.Base(name))
	compressed := false
	if b, ok := strings.CutSuffix(base, ".zst"); ok {
		base, compressed = b, true
	}
	switch filepath.Ext(base) {
	case ".json":
		return FormatJSON, compressed, nil
	case ".yaml", ".yml":
		return FormatYAML, compressed, nil
	case ".cbor":
		return FormatCBOR, compressed, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
	}
}

// Load reads and validates the artifact at path.
func Load(path string) (*Document, error) {
	if _, _, err := FormatOf(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the catalog
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f, filepath.Base(path))
}

// Decode reads a document encoded as indicated by name's extension.
func Decode(r io.Reader, name string) (*Document, error) {
	format, compressed, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	if compressed {
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxDocumentBytes))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) > maxDocumentBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDocument, name, maxDocumentBytes)
	}
	d := &Document{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, d)
	case FormatYAML:
		err = yaml.Unmarshal(data, d)
	case FormatCBOR:
		err = cbor.Unmarshal(data, d)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidDocument, name, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode writes d encoded as indicated by name's extension.
func Encode(w io.Writer, name string, d *Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	format, compressed, err := FormatOf(name)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(d, "", "  ")
	case FormatYAML:
		data, err = yaml.Marshal(d)
	case FormatCBOR:
		data, err = cborEnc.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if !compressed {
		_, err = w.Write(data)
		return err
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	if _, err := io.Copy(zw, bytes.NewReader(data)); err != nil {
		return errors.Join(err, zw.Close())
	}
	return zw.Close()
}

// Save writes d to path.
func Save(path string, d *Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, path, d); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644) //nolint:gosec // G306: artifacts are not secret
}

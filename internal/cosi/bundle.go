package cosi

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

// Bundle is an opened COSI file: its parsed Metadata plus the on-disk
// location each image was extracted to. Close removes the extraction
// directory.
//
// A COSI file is a zstd-compressed cpio archive; extraction streams
// through klauspost/compress/zstd and cavaliercoder/go-cpio rather than
// shelling out to an archiver.
type Bundle struct {
	Metadata Metadata
	dir      string
}

// Close removes the bundle's extraction directory.
func (b *Bundle) Close() error {
	log.WithField("dir", b.dir).Debug("removing COSI extraction directory")
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("failed to remove COSI extraction directory %q: %w", b.dir, err)
	}
	return nil
}

// OpenFile opens, decompresses, and fully extracts a COSI file from
// path, validating its metadata before returning.
func OpenFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open COSI file %q: %w", path, err)
	}
	defer f.Close()
	return Open(f)
}

// Open decompresses and extracts a COSI archive from an arbitrary
// reader, validating its metadata.json against every entry actually
// present in the archive.
func Open(r io.Reader) (*Bundle, error) {
	dir, err := os.MkdirTemp("", "cosi-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create COSI extraction directory: %w", err)
	}

	entries, meta, err := extractAll(r, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to extract COSI file: %w", err)
	}
	if meta == nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("metadata.json not found in COSI file")
	}

	if err := crossCheckEntries(meta, entries); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	for i := range meta.Images {
		img := &meta.Images[i]
		img.Image.SourceFile = filepath.Join(dir, img.Image.Path)
		if img.Verity != nil {
			img.Verity.Image.SourceFile = filepath.Join(dir, img.Verity.Image.Path)
		}
	}

	return &Bundle{Metadata: *meta, dir: dir}, nil
}

// ScanMetadata reads and validates only metadata.json from a COSI
// archive without extracting the image payloads to disk; the payloads
// are still decompressed as the reader streams past them -- the cheap
// path `tridentctl cosi inspect` style tooling wants.
func ScanMetadata(r io.Reader) (*Metadata, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open COSI zstd stream: %w", err)
	}
	defer zr.Close()

	cr := cpio.NewReader(zr)
	var meta *Metadata
	var names []string
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read COSI archive entry: %w", err)
		}
		if hdr.Name == "metadata.json" {
			meta, err = readMetadataEntry(cr)
			if err != nil {
				return nil, err
			}
			continue
		}
		names = append(names, hdr.Name)
	}
	if meta == nil {
		return nil, fmt.Errorf("metadata.json not found in COSI file")
	}
	if err := crossCheckEntries(meta, names); err != nil {
		return nil, err
	}
	return meta, nil
}

func extractAll(r io.Reader, dir string) ([]string, *Metadata, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open COSI zstd stream: %w", err)
	}
	defer zr.Close()

	cr := cpio.NewReader(zr)
	var entries []string
	var meta *Metadata

	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read COSI archive entry: %w", err)
		}

		dest := filepath.Join(dir, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create directory for %q: %w", hdr.Name, err)
		}

		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %q: %w", dest, err)
		}
		if _, err := io.Copy(out, cr); err != nil {
			out.Close()
			return nil, nil, fmt.Errorf("failed to write %q: %w", dest, err)
		}
		out.Close()

		log.WithField("name", hdr.Name).WithField("size", hdr.Size).Debug("extracted COSI entry")
		entries = append(entries, hdr.Name)

		if hdr.Name == "metadata.json" {
			data, err := os.ReadFile(dest)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read extracted metadata.json: %w", err)
			}
			meta, err = parseMetadataBytes(data)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	return entries, meta, nil
}

func readMetadataEntry(r io.Reader) (*Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata.json: %w", err)
	}
	return parseMetadataBytes(data)
}

func parseMetadataBytes(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal COSI metadata: %w", err)
	}
	return &m, nil
}

// crossCheckEntries verifies every image path metadata.json declares is
// actually present in the archive, the I/O-boundary counterpart to the
// pure Validate() rules.
func crossCheckEntries(m *Metadata, entries []string) error {
	present := map[string]bool{}
	for _, e := range entries {
		present[e] = true
	}
	for _, img := range m.Images {
		if !present[img.Image.Path] {
			return fmt.Errorf("image %q referenced in COSI metadata not found in archive", img.Image.Path)
		}
		if img.Verity != nil && !present[img.Verity.Image.Path] {
			return fmt.Errorf("verity image %q referenced in COSI metadata not found in archive", img.Verity.Image.Path)
		}
	}
	return nil
}

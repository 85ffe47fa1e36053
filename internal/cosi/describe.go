package cosi

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Summary is the read-only digest of validated metadata that
// `tridentctl cosi inspect` prints: counts and totals only, no image
// bytes.
type Summary struct {
	Version          string
	OsArch           string
	OsRelease        string
	ImageCount       int
	UncompressedSize uint64
	CompressedSize   uint64
	Bootloader       string
	PartitionCount   int
}

// Describe summarizes already-validated metadata.
func Describe(m *Metadata) Summary {
	s := Summary{
		Version:        m.Version,
		OsArch:         m.OsArch,
		OsRelease:      m.OsRelease,
		ImageCount:     len(m.Images),
		PartitionCount: len(m.Partitions),
		Bootloader:     "none",
	}
	for _, img := range m.Images {
		s.UncompressedSize += img.Image.UncompressedSize
		s.CompressedSize += img.Image.CompressedSize
		if img.Verity != nil {
			s.UncompressedSize += img.Verity.Image.UncompressedSize
			s.CompressedSize += img.Verity.Image.CompressedSize
		}
	}
	if m.Bootloader != nil {
		s.Bootloader = string(m.Bootloader.Type)
		if m.Bootloader.SystemdBoot != nil {
			s.Bootloader = fmt.Sprintf("%s (%d entries)", m.Bootloader.Type, len(m.Bootloader.SystemdBoot.Entries))
		}
	}
	return s
}

// String renders the summary as the multi-line report the CLI shows.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version:      %s\n", s.Version)
	fmt.Fprintf(&b, "os:           %s (%s)\n", s.OsRelease, s.OsArch)
	fmt.Fprintf(&b, "images:       %d (%s uncompressed, %s compressed)\n",
		s.ImageCount, humanize.IBytes(s.UncompressedSize), humanize.IBytes(s.CompressedSize))
	fmt.Fprintf(&b, "bootloader:   %s\n", s.Bootloader)
	fmt.Fprintf(&b, "partitions:   %d\n", s.PartitionCount)
	return b.String()
}

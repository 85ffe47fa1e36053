package cosi

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// writeArchive builds an in-memory zstd-compressed cpio archive from
// name -> contents pairs, in map-independent declared order.
func writeArchive(t *testing.T, entries []struct {
	name string
	data []byte
}) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	cw := cpio.NewWriter(zw)
	for _, e := range entries {
		require.NoError(t, cw.WriteHeader(&cpio.Header{
			Name: e.name,
			Mode: 0o644,
			Size: int64(len(e.data)),
		}))
		_, err := cw.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, cw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testMetadata(t *testing.T) []byte {
	meta := Metadata{
		Version:   "1.0",
		OsArch:    "amd64",
		OsRelease: "3.0",
		Images: []Image{
			{
				Image:      ImageFile{Path: "images/root.img.zst", CompressedSize: 4, UncompressedSize: 11},
				MountPoint: "/",
				FsType:     "ext4",
			},
		},
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	return data
}

func TestScanMetadataReadsWithoutExtraction(t *testing.T) {
	archive := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"metadata.json", testMetadata(t)},
		{"images/root.img.zst", []byte("blob")},
	})

	meta, err := ScanMetadata(bytes.NewReader(archive))
	require.NoError(t, err)
	require.Equal(t, "1.0", meta.Version)
	require.Len(t, meta.Images, 1)
	require.Equal(t, "/", meta.Images[0].MountPoint)
}

func TestScanMetadataMissingImageEntry(t *testing.T) {
	archive := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"metadata.json", testMetadata(t)},
	})

	_, err := ScanMetadata(bytes.NewReader(archive))
	require.Error(t, err)
	require.Contains(t, err.Error(), "images/root.img.zst")
}

func TestScanMetadataMissingMetadata(t *testing.T) {
	archive := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"images/root.img.zst", []byte("blob")},
	})

	_, err := ScanMetadata(bytes.NewReader(archive))
	require.Error(t, err)
	require.Contains(t, err.Error(), "metadata.json not found")
}

func TestOpenExtractsAndPopulatesSourceFiles(t *testing.T) {
	archive := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"metadata.json", testMetadata(t)},
		{"images/root.img.zst", []byte("blob")},
	})

	b, err := Open(bytes.NewReader(archive))
	require.NoError(t, err)
	defer b.Close()

	require.NotEmpty(t, b.Metadata.Images[0].Image.SourceFile)
	require.FileExists(t, b.Metadata.Images[0].Image.SourceFile)
}

func TestDescribeSummarizesMetadata(t *testing.T) {
	var meta Metadata
	require.NoError(t, json.Unmarshal(testMetadata(t), &meta))
	meta.Bootloader = &Bootloader{Type: BootloaderSystemdBoot, SystemdBoot: &SystemdBootEntries{
		Entries: []SystemdBootEntry{{Type: EntryUkiStandalone, Path: "EFI/Linux/uki.efi"}},
	}}

	s := Describe(&meta)
	require.Equal(t, 1, s.ImageCount)
	require.Equal(t, uint64(11), s.UncompressedSize)
	require.Contains(t, s.Bootloader, "systemd-boot")
	require.Contains(t, s.String(), "images:")
}

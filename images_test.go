package rowfill

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00")
)

// writeContainer writes a minimal workbook archive with the given entries.
func writeContainer(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "data.xlsx")
	f, err := os.Create(p)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, data := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return p
}

func anchorXML(row int, relID string) string {
	return fmt.Sprintf(`<xdr:twoCellAnchor>
  <xdr:from><xdr:col>2</xdr:col><xdr:colOff>0</xdr:colOff><xdr:row>%d</xdr:row><xdr:rowOff>0</xdr:rowOff></xdr:from>
  <xdr:to><xdr:col>3</xdr:col><xdr:colOff>0</xdr:colOff><xdr:row>%d</xdr:row><xdr:rowOff>0</xdr:rowOff></xdr:to>
  <xdr:pic><xdr:blipFill><a:blip r:embed="%s"/></xdr:blipFill></xdr:pic>
  <xdr:clientData/>
</xdr:twoCellAnchor>`, row, row+1, relID)
}

func structuredContainer(t *testing.T) string {
	drawing := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<xdr:wsDr xmlns:xdr="http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing"
          xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
          xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		anchorXML(1, "rId1") + // sheet row 2
		anchorXML(4, "rId2") + // sheet row 5
		anchorXML(8, "rId3") + // sheet row 9
		`</xdr:wsDr>`
	rels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image2.jpeg"/>
  <Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image3.gif"/>
</Relationships>`

	return writeContainer(t, map[string][]byte{
		"xl/drawings/drawing1.xml":            []byte(drawing),
		"xl/drawings/_rels/drawing1.xml.rels": []byte(rels),
		"xl/media/image1.png":                 pngBytes,
		"xl/media/image2.jpeg":                jpegBytes,
		"xl/media/image3.gif":                 gifBytes,
	})
}

func TestBuildImageIndexStructured(t *testing.T) {
	p := structuredContainer(t)

	ix, err := BuildImageIndex(p, testLogger())
	require.NoError(t, err)
	assert.Equal(t, StrategyStructured, ix.Strategy())
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, []int{2, 5, 9}, ix.Rows())

	img, ok := ix.Get(2)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, pngBytes, img.Data)

	img, ok = ix.Get(5)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	img, ok = ix.Get(9)
	require.True(t, ok)
	assert.Equal(t, "image/gif", img.MIMEType)

	// Rows without anchors stay empty.
	_, ok = ix.Get(3)
	assert.False(t, ok)
	_, ok = ix.Get(6)
	assert.False(t, ok)
}

func TestBuildImageIndexFallback(t *testing.T) {
	// Media files but no drawing metadata: filename-order assignment,
	// skipping the header row.
	p := writeContainer(t, map[string][]byte{
		"xl/media/image2.jpeg": jpegBytes,
		"xl/media/image1.png":  pngBytes,
		"xl/media/image10.png": pngBytes,
	})

	ix, err := BuildImageIndex(p, testLogger())
	require.NoError(t, err)
	assert.Equal(t, StrategyFallbackSequential, ix.Strategy())
	assert.Equal(t, []int{2, 3, 4}, ix.Rows())

	img, ok := ix.Get(2)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)

	img, ok = ix.Get(3)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	// image10 sorts numerically after image2, not lexically before it.
	img, ok = ix.Get(4)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestBuildImageIndexForcedStrategy(t *testing.T) {
	t.Run("structured only yields nothing without anchors", func(t *testing.T) {
		p := writeContainer(t, map[string][]byte{"xl/media/image1.png": pngBytes})
		ix, err := BuildImageIndex(p, testLogger(), WithForcedStrategy(StrategyStructured))
		require.NoError(t, err)
		assert.Equal(t, StrategyNone, ix.Strategy())
		assert.Zero(t, ix.Len())
	})

	t.Run("fallback only ignores anchors", func(t *testing.T) {
		p := structuredContainer(t)
		ix, err := BuildImageIndex(p, testLogger(), WithForcedStrategy(StrategyFallbackSequential))
		require.NoError(t, err)
		assert.Equal(t, StrategyFallbackSequential, ix.Strategy())
		assert.Equal(t, []int{2, 3, 4}, ix.Rows())
	})
}

func TestBuildImageIndexHeaderRows(t *testing.T) {
	p := writeContainer(t, map[string][]byte{"xl/media/image1.png": pngBytes})
	ix, err := BuildImageIndex(p, testLogger(), WithHeaderRows(3))
	require.NoError(t, err)
	assert.Equal(t, []int{5}, ix.Rows())
}

func TestBuildImageIndexEmptyContainer(t *testing.T) {
	p := writeContainer(t, map[string][]byte{"xl/workbook.xml": []byte("<workbook/>")})
	ix, err := BuildImageIndex(p, testLogger())
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, ix.Strategy())
	assert.Zero(t, ix.Len())
}

func TestBuildImageIndexCorruptDrawing(t *testing.T) {
	// Broken drawing XML is skipped; media still resolves via fallback.
	p := writeContainer(t, map[string][]byte{
		"xl/drawings/drawing1.xml": []byte("<<<not xml"),
		"xl/media/image1.png":      pngBytes,
	})
	ix, err := BuildImageIndex(p, testLogger())
	require.NoError(t, err)
	assert.Equal(t, StrategyFallbackSequential, ix.Strategy())
	assert.Equal(t, 1, ix.Len())
}

func TestBuildImageIndexMissingContainer(t *testing.T) {
	_, err := BuildImageIndex(filepath.Join(t.TempDir(), "gone.xlsx"), testLogger())
	assert.Error(t, err)
}

func TestSniffImageMIME(t *testing.T) {
	assert.Equal(t, "image/png", sniffImageMIME(pngBytes))
	assert.Equal(t, "image/jpeg", sniffImageMIME(jpegBytes))
	assert.Equal(t, "image/gif", sniffImageMIME(gifBytes))
	// Unrecognized payloads default to PNG rather than failing the row.
	assert.Equal(t, "image/png", sniffImageMIME([]byte("not an image")))
}

func TestLoadImageFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pic.dat"), pngBytes, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("plain text file contents"), 0644))

	t.Run("relative path against base", func(t *testing.T) {
		img, err := LoadImageFile("pic.dat", dir)
		require.NoError(t, err)
		// Content sniffing wins over the extension.
		assert.Equal(t, "image/png", img.MIMEType)
		assert.Equal(t, pngBytes, img.Data)
	})

	t.Run("absolute path ignores base", func(t *testing.T) {
		img, err := LoadImageFile(filepath.Join(dir, "pic.dat"), "/nonexistent")
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MIMEType)
	})

	t.Run("unsupported content", func(t *testing.T) {
		_, err := LoadImageFile("note.txt", dir)
		assert.ErrorContains(t, err, "unsupported image format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadImageFile("gone.png", dir)
		assert.ErrorIs(t, err, ErrInputNotFound)
	})
}

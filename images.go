package rowfill

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Strategy records how an ImageIndex associated images with rows.
type Strategy int

const (
	// StrategyNone means the container yielded no images at all.
	StrategyNone Strategy = iota
	// StrategyStructured maps images to rows through the container's
	// drawing anchors and relationship files. Exact.
	StrategyStructured
	// StrategyFallbackSequential assigns images to rows by the numeric
	// order of their filenames in the media directory. This is a
	// best-effort heuristic: the container format does not guarantee that
	// media order matches visual row order, so a misassignment here is a
	// known approximation rather than a bug.
	StrategyFallbackSequential
)

func (s Strategy) String() string {
	switch s {
	case StrategyStructured:
		return "structured"
	case StrategyFallbackSequential:
		return "fallback-sequential"
	default:
		return "none"
	}
}

// ImagePayload is a decoded inline image: raw bytes plus the MIME type
// sniffed from its magic bytes.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// ImageIndex maps a 1-based sheet row to the image anchored at it. Built
// once per run, read-only afterwards, so workers need no lock to read it.
type ImageIndex struct {
	images   map[int]ImagePayload
	strategy Strategy
}

// ImageIndexOption configures index construction.
type ImageIndexOption func(*imageIndexConfig)

type imageIndexConfig struct {
	headerRows int
	force      Strategy // StrategyNone → try structured, then fallback
}

// WithHeaderRows sets the number of header rows the sequential fallback
// skips when assigning images to rows. Default 1.
func WithHeaderRows(n int) ImageIndexOption {
	return func(c *imageIndexConfig) { c.headerRows = n }
}

// WithForcedStrategy restricts construction to a single strategy instead
// of the structured-then-fallback default.
func WithForcedStrategy(s Strategy) ImageIndexOption {
	return func(c *imageIndexConfig) { c.force = s }
}

// BuildImageIndex opens the workbook container as an archive and recovers
// its inline images. The structured walk over drawing relationships and
// anchors is tried first; if it resolves nothing, the sequential filename
// fallback takes over. Individual files that fail to parse are skipped —
// an unparseable container yields an empty index, never an aborted run.
func BuildImageIndex(containerPath string, log *slog.Logger, opts ...ImageIndexOption) (*ImageIndex, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := imageIndexConfig{headerRows: headerRowCount}
	for _, opt := range opts {
		opt(&cfg)
	}

	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return nil, fmt.Errorf("open container %s: %w", containerPath, err)
	}
	defer r.Close()

	ix := &ImageIndex{images: map[int]ImagePayload{}, strategy: StrategyNone}

	if cfg.force != StrategyFallbackSequential {
		ix.images = buildStructured(&r.Reader, log)
		if len(ix.images) > 0 {
			ix.strategy = StrategyStructured
			log.Debug("image index built", "strategy", ix.strategy, "images", len(ix.images))
			return ix, nil
		}
	}
	if cfg.force == StrategyStructured {
		return ix, nil
	}

	ix.images = buildSequential(&r.Reader, cfg.headerRows, log)
	if len(ix.images) > 0 {
		ix.strategy = StrategyFallbackSequential
	}
	log.Debug("image index built", "strategy", ix.strategy, "images", len(ix.images))
	return ix, nil
}

// Get returns the image anchored at the given 1-based sheet row.
func (ix *ImageIndex) Get(sheetRow int) (ImagePayload, bool) {
	p, ok := ix.images[sheetRow]
	return p, ok
}

// Len returns the number of indexed images.
func (ix *ImageIndex) Len() int { return len(ix.images) }

// Strategy reports which construction strategy produced the index.
func (ix *ImageIndex) Strategy() Strategy { return ix.strategy }

// Rows returns the indexed sheet rows in ascending order.
func (ix *ImageIndex) Rows() []int {
	rows := make([]int, 0, len(ix.images))
	for r := range ix.images {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

// imageAnchor is one resolved drawing anchor: the 0-based cell offset of
// its top-left corner plus the relationship id of the image it references.
type imageAnchor struct {
	col, row int
	relID    string
}

// buildStructured walks the container's drawing metadata:
//
//  1. every drawings/_rels/*.xml.rels file maps relationship ids to image
//     filenames for its drawing,
//  2. every drawings/*.xml file yields anchors with a (col,row) offset and
//     the relationship id of the embedded picture,
//  3. resolved images are read, sniffed and stored under the 1-based row.
func buildStructured(r *zip.Reader, log *slog.Logger) map[int]ImagePayload {
	images := map[int]ImagePayload{}

	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "xl/drawings/") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		if strings.Contains(f.Name, "_rels/") {
			continue
		}

		relPath := "xl/drawings/_rels/" + path.Base(f.Name) + ".rels"
		rels := parseRelationships(readZipFile(r, relPath))

		data := readZipFile(r, f.Name)
		if data == nil {
			continue
		}
		for _, a := range parseDrawingAnchors(data) {
			target, ok := rels[a.relID]
			if !ok {
				log.Debug("anchor references unknown relationship", "drawing", f.Name, "rel", a.relID)
				continue
			}
			payload := readZipFile(r, target)
			if payload == nil {
				log.Debug("anchored image missing from archive", "target", target)
				continue
			}
			sheetRow := a.row + 1 // archive rows are 0-based
			if _, dup := images[sheetRow]; dup {
				continue
			}
			images[sheetRow] = ImagePayload{Data: payload, MIMEType: sniffImageMIME(payload)}
		}
	}

	return images
}

var mediaNumRe = regexp.MustCompile(`(\d+)`)

// buildSequential lists every image in the media directory, sorts by the
// numeric suffix in each filename and assigns row = order + headerRows + 1.
// Weaker than the structured walk; see StrategyFallbackSequential.
func buildSequential(r *zip.Reader, headerRows int, log *slog.Logger) map[int]ImagePayload {
	type mediaFile struct {
		name string
		num  int
	}
	var files []mediaFile
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, "xl/media/") {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".emf":
		default:
			continue
		}
		num := 0
		if m := mediaNumRe.FindAllString(path.Base(f.Name), -1); len(m) > 0 {
			num, _ = strconv.Atoi(m[len(m)-1])
		}
		files = append(files, mediaFile{name: f.Name, num: num})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	images := map[int]ImagePayload{}
	for i, mf := range files {
		data := readZipFile(r, mf.name)
		if data == nil {
			continue
		}
		sheetRow := i + headerRows + 1
		images[sheetRow] = ImagePayload{Data: data, MIMEType: sniffImageMIME(data)}
		log.Debug("fallback image assignment", "media", mf.name, "row", sheetRow)
	}
	return images
}

// parseRelationships maps relationship ids to normalized archive paths for
// one drawing's .rels file. A nil or unparseable input yields an empty map.
func parseRelationships(data []byte) map[string]string {
	rels := map[string]string{}
	if data == nil {
		return rels
	}
	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := token.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "Id":
				id = attr.Value
			case "Target":
				target = attr.Value
			}
		}
		if id != "" && target != "" {
			rels[id] = normalizeTarget(target)
		}
	}
	return rels
}

// normalizeTarget resolves a relationship target (usually "../media/x.png",
// relative to xl/drawings/) to a full archive path.
func normalizeTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join("xl/drawings", target))
}

// parseDrawingAnchors streams through a drawing XML file and extracts one
// anchor per embedded picture: the from-cell offset and the r:embed id.
// Anchors without a cell offset (absoluteAnchor) carry no row and are
// skipped. Parse errors end the walk with whatever was collected.
func parseDrawingAnchors(data []byte) []imageAnchor {
	var anchors []imageAnchor

	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		if se, ok := token.(xml.StartElement); ok {
			switch se.Name.Local {
			case "twoCellAnchor", "oneCellAnchor":
				if a, ok := parseAnchor(decoder); ok {
					anchors = append(anchors, a)
				}
			}
		}
	}

	return anchors
}

// parseAnchor consumes one anchor element. The first "from" child supplies
// the (col,row) offset; the first "blip" child supplies the embed id.
func parseAnchor(decoder *xml.Decoder) (imageAnchor, bool) {
	a := imageAnchor{col: -1, row: -1}
	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "from":
				if a.row < 0 {
					a.col, a.row = parseFromCell(decoder)
				} else {
					skipElement(decoder)
				}
				depth--
			case "blip":
				for _, attr := range t.Attr {
					if attr.Name.Local == "embed" && a.relID == "" {
						a.relID = attr.Value
					}
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	return a, a.row >= 0 && a.relID != ""
}

// parseFromCell reads the col/row children of a "from" element.
func parseFromCell(decoder *xml.Decoder) (col, row int) {
	col, row = -1, -1
	depth := 1
	var current string
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
			current = t.Name.Local
		case xml.CharData:
			v := strings.TrimSpace(string(t))
			if v == "" {
				break
			}
			if n, err := strconv.Atoi(v); err == nil {
				switch current {
				case "col":
					col = n
				case "row":
					row = n
				}
			}
		case xml.EndElement:
			depth--
			current = ""
		}
	}
	return col, row
}

func skipElement(decoder *xml.Decoder) {
	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			return
		}
		switch token.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
}

// supportedImageMIMEs is the set accepted by every provider.
var supportedImageMIMEs = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// sniffImageMIME detects an image's true format from its magic bytes,
// regardless of the filename it was stored under. Unrecognized payloads
// default to PNG.
func sniffImageMIME(data []byte) string {
	mt := mimetype.Detect(data)
	for _, want := range []string{"image/png", "image/jpeg", "image/gif", "image/webp"} {
		if mt.Is(want) {
			return want
		}
	}
	return "image/png"
}

// LoadImageFile reads a row-referenced image from disk. Relative paths
// resolve against basePath. The format is sniffed from content, not the
// extension, and must be one of the provider-supported types.
func LoadImageFile(imagePath, basePath string) (*ImagePayload, error) {
	p := imagePath
	if basePath != "" && !filepath.IsAbs(p) {
		p = filepath.Join(basePath, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, p)
		}
		return nil, fmt.Errorf("read image %s: %w", p, err)
	}
	mt := mimetype.Detect(data).String()
	if !supportedImageMIMEs[mt] {
		return nil, fmt.Errorf("unsupported image format %s for %s", mt, p)
	}
	return &ImagePayload{Data: data, MIMEType: mt}, nil
}

// readZipFile returns the named archive entry's bytes, or nil when the
// entry is absent or unreadable.
func readZipFile(r *zip.Reader, name string) []byte {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

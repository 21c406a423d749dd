package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TOCItem is one table-of-contents entry from the PDF conversion sidecar.
type TOCItem struct {
	// Title is the section heading text.
	Title string `json:"title"`
	// PageID is the zero-based source page the section starts on.
	PageID int `json:"page_id"`
}

// DocMetadata is the metadata sidecar written alongside each converted
// document. Only the table of contents is consumed here; unknown fields
// are ignored.
type DocMetadata struct {
	// TableOfContents lists section headings in document order.
	TableOfContents []TOCItem `json:"table_of_contents"`
}

// ImageInfo describes one extracted figure image in a document directory.
type ImageInfo struct {
	// Filename is the image file name.
	Filename string `json:"filename"`
	// Path is the full path to the image file.
	Path string `json:"path"`
	// Page is the source page number, -1 when not parseable.
	Page int `json:"page"`
	// Type is "Figure" or "Picture", "unknown" when not parseable.
	Type string `json:"type"`
	// Number is the figure number on the page, -1 when not parseable.
	Number int `json:"number"`
}

// LoadMetadata parses a metadata sidecar file. A missing file is not an
// error: ingestion falls back to semantic chunking without a TOC.
func LoadMetadata(path string) (DocMetadata, error) {
	var m DocMetadata

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("ingestion: read metadata %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("ingestion: parse metadata %s: %w", path, err)
	}
	return m, nil
}

// Image filename patterns produced by the PDF conversion, e.g.
// "_page_12_Figure_3.jpeg".
var (
	imagePagePattern   = regexp.MustCompile(`_page_(\d+)_`)
	imageFigurePattern = regexp.MustCompile(`(Figure|Picture)_(\d+)`)
)

// ScanImages collects metadata for the figure images in a document
// directory, sorted by page then figure number.
func ScanImages(docDir string) ([]ImageInfo, error) {
	entries, err := os.ReadDir(docDir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: scan images in %s: %w", docDir, err)
	}

	var images []ImageInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jpeg") {
			continue
		}

		info := ImageInfo{
			Filename: name,
			Path:     filepath.Join(docDir, name),
			Page:     -1,
			Type:     "unknown",
			Number:   -1,
		}
		if m := imagePagePattern.FindStringSubmatch(name); m != nil {
			info.Page, _ = strconv.Atoi(m[1])
		}
		if m := imageFigurePattern.FindStringSubmatch(name); m != nil {
			info.Type = m[1]
			info.Number, _ = strconv.Atoi(m[2])
		}
		images = append(images, info)
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].Number < images[j].Number
	})
	return images, nil
}

// extractSectionText returns the text for one TOC section title: the lines
// from the first line containing the title, up to 50 lines or maxSize
// characters. Empty string when the title never appears.
func extractSectionText(text, title string, maxSize int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	if clean == "" {
		return ""
	}
	needle := strings.ToLower(clean)

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), needle) {
			start = i
			break
		}
	}
	if start == -1 {
		return ""
	}

	var section []string
	total := 0
	for i := start; i < len(lines) && i < start+50; i++ {
		if total+len(lines[i]) > maxSize {
			break
		}
		section = append(section, lines[i])
		total += len(lines[i]) + 1
	}
	return strings.TrimSpace(strings.Join(section, "\n"))
}

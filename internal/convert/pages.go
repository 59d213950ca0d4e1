package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/pachat/internal/models"
)

var (
	pageMarker    = regexp.MustCompile(`(?m)^--- page_(\d+) ---\r?\n(.*)$`)
	pageImageName = regexp.MustCompile(`^page_(\d+)\.png$`)
)

// ParsePageMap reads `--- page_<N> ---` blocks. The line after a marker is the PA number;
// "none" in any case drops the page. Content without a single marker is a parse error.
func ParsePageMap(content string) (map[int]string, error) {
	content = strings.TrimSpace(content)
	out := make(map[int]string)
	if content == "" {
		return out, nil
	}
	matches := pageMarker.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no page markers in PA number map", models.ErrParse)
	}
	for _, m := range matches {
		page, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: page number %q", models.ErrParse, m[1])
		}
		pa := strings.TrimSpace(m[2])
		if pa == "" || strings.EqualFold(pa, "none") {
			continue
		}
		out[page] = pa
	}
	return out, nil
}

// ReadPageMap reads and parses the map file at path.
func ReadPageMap(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: PA number map %s", models.ErrMissingFile, path)
		}
		return nil, err
	}
	return ParsePageMap(string(data))
}

// PageImage is one rendered page.
type PageImage struct {
	Number int
	Path   string
}

// ListPageImages returns the page_<N>.png files in dir ordered by page number.
func ListPageImages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: page image directory %s", models.ErrMissingFile, dir)
		}
		return nil, err
	}
	var pages []PageImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageImageName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageImage{Number: n, Path: abs})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// PageRecords joins page images with the PA map. Pages without a PA number are skipped.
func PageRecords(images []PageImage, paMap map[int]string, sourceFilename string) []models.PageRecord {
	var records []models.PageRecord
	for _, img := range images {
		pa, ok := paMap[img.Number]
		if !ok {
			continue
		}
		records = append(records, models.PageRecord{
			PageNumber:     img.Number,
			Identifier:     pa,
			ImagePath:      img.Path,
			SourceFilename: sourceFilename,
		})
	}
	return records
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

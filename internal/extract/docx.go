package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	contentTypesPart = "[Content_Types].xml"
	defaultBodyPart  = "word/document.xml"
	bodyContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// Word stores body text as runs (<w:t>) grouped into paragraphs (<w:p>).
// Runs inside one paragraph are contiguous text and concatenate without a
// separator; a word split across runs must not gain a space.
var (
	paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	runTextRe   = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

	// Both attribute orders of the Override element occur in the wild.
	partBeforeTypeRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(bodyContentType) + `"`)
	typeBeforePartRe = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(bodyContentType) + `"[^>]+PartName="([^"]+)"`)
)

// docxText extracts paragraph text from .docx bytes. Paragraphs become
// blank-line separated blocks.
func docxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	xmlBytes, err := readZipPart(zr, mainBodyPart(zr))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	body := string(xmlBytes)

	var paragraphs []string
	for _, p := range paragraphRe.FindAllString(body, -1) {
		var b strings.Builder
		for _, run := range runTextRe.FindAllStringSubmatch(p, -1) {
			b.WriteString(run[1])
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n"), nil
	}

	// No paragraph markup at all; fall back to bare runs joined by spaces.
	var b strings.Builder
	for i, run := range runTextRe.FindAllStringSubmatch(body, -1) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(run[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

// mainBodyPart resolves the body part name from [Content_Types].xml, falling
// back to the conventional word/document.xml when the manifest is absent or
// does not declare one.
func mainBodyPart(zr *zip.Reader) string {
	manifest, err := readZipPart(zr, contentTypesPart)
	if err != nil {
		return defaultBodyPart
	}
	for _, re := range []*regexp.Regexp{partBeforeTypeRe, typeBeforePartRe} {
		if m := re.FindSubmatch(manifest); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return defaultBodyPart
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}

package e2e

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions lists the extensions the file-based tests write.
// Plain text and Markdown pass through raw; .docx and .xlsx get minimal
// binary builders. PDF stays out: a hand-built PDF needs a correct xref
// table to carry extractable text, and that path is covered in the extract
// package with a real sample.
var SupportedFileExtensions = []string{".txt", ".md", ".docx", ".xlsx"}

// WriteMinimalFile returns file bytes for the given extension whose
// extracted text contains text. Unknown extensions fall back to raw bytes,
// matching the extractor's plain-text fallback.
func WriteMinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".docx":
		return minimalDocx(text)
	case ".xlsx":
		return minimalXlsx(text)
	default:
		return []byte(text), nil
	}
}

// minimalDocx zips a bare word/document.xml with one paragraph per
// blank-line block. It carries no [Content_Types].xml; the extractor falls
// back to the conventional part name.
func minimalDocx(text string) ([]byte, error) {
	var doc strings.Builder
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, para := range strings.Split(text, "\n\n") {
		doc.WriteString(`<w:p><w:r><w:t>`)
		doc.WriteString(para)
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(doc.String())); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

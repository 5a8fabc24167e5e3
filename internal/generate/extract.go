package generate

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyDocument   = errors.New("document contains no text")
)

var (
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	spaceRegex = regexp.MustCompile(`[ \t\f\v]+`)
	blankRegex = regexp.MustCompile(`\n{3,}`)
)

// Extractor pulls plain text out of uploaded documents.
type Extractor struct {
	// PDFToText is the pdftotext binary. Empty means look it up on PATH.
	PDFToText string
}

// SupportedExtensions lists the file types Extract understands.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
}

func (e Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text file is not valid UTF-8", ErrUnsupportedFile)
		}
		text = string(data)
	case ".pdf":
		text, err = e.pdfText(ctx, data)
		text = tagRegex.ReplaceAllString(text, " ")
	case ".docx":
		text, err = docxText(data)
	case ".xlsx":
		text, err = xlsxText(data)
	default:
		return "", fmt.Errorf("%w: %q, expected one of %s",
			ErrUnsupportedFile, filepath.Ext(name), strings.Join(SupportedExtensions(), " "))
	}
	if err != nil {
		return "", err
	}

	text = cleanText(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func (e Extractor) pdfText(ctx context.Context, data []byte) (string, error) {
	bin := e.PDFToText
	if bin == "" {
		bin = "pdftotext"
	}

	tmp, err := os.CreateTemp("", "qbank-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	out, err := exec.CommandContext(ctx, bin, "-enc", "UTF-8", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrUnsupportedFile, err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrUnsupportedFile)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(io.LimitReader(rc, 32<<20))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parse document.xml: %v", ErrUnsupportedFile, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: open xlsx: %v", ErrUnsupportedFile, err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				sb.WriteString(strings.Join(cells, " "))
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String(), nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRegex.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

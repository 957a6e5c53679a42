package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	tmpFile, err := os.CreateTemp("", "docchat-test-*"+ext)
	require.NoError(t, err, "Failed to create temp file")

	_, err = tmpFile.Write([]byte(content))
	require.NoError(t, err, "Failed to write temp file")
	tmpFile.Close()

	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

func createTempPDF(t *testing.T, text string) string {
	tmpFile, err := os.CreateTemp("", "docchat-test-*.pdf")
	require.NoError(t, err, "Failed to create temp PDF file")
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 10, text, "", "", false)
	require.NoError(t, pdf.Output(tmpFile), "Failed to write PDF")

	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

func TestPlainTextParser(t *testing.T) {
	content := "Hello, this is a plain text file.\nSecond line."
	file := createTempFile(t, content, ".txt")

	parser := NewPlainTextParser()
	text, err := parser.Parse(file)
	require.NoError(t, err, "PlainTextParser.Parse should succeed")
	assert.Contains(t, text, "plain text file")
	assert.Contains(t, text, "Second line")
}

func TestMarkdownParser(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")

	parser := NewMarkdownParser()
	text, err := parser.Parse(file)
	require.NoError(t, err, "MarkdownParser.Parse should succeed")
	assert.Contains(t, text, "markdown file")
	assert.Contains(t, text, "Item 1")
	assert.NotContains(t, text, "**", "Markdown syntax should be stripped")
	assert.Contains(t, text, "Title\n\n", "Blocks should stay separated by blank lines")
}

func TestPDFParser(t *testing.T) {
	content := "This is a PDF test.\nSecond line."
	file := createTempPDF(t, content)

	parser := NewPDFParser()
	text, err := parser.Parse(file)
	require.NoError(t, err, "PDFParser.Parse should succeed")
	assert.Contains(t, text, "PDF test")
}

func TestPDFParser_ParseReader(t *testing.T) {
	content := "Reader based PDF parsing."
	file := createTempPDF(t, content)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()

	parser := NewPDFParser()
	text, err := parser.ParseReader(f, "test.pdf")
	require.NoError(t, err, "PDFParser.ParseReader should succeed")
	assert.Contains(t, text, "Reader based PDF parsing")
}

func TestParserFactory(t *testing.T) {
	txtFile := createTempFile(t, "plain text content", ".txt")
	mdFile := createTempFile(t, "# Markdown heading", ".md")
	pdfFile := createTempPDF(t, "PDF factory content")

	tests := []struct {
		name     string
		file     string
		expected string
	}{
		{"PlainText", txtFile, "plain text content"},
		{"Markdown", mdFile, "Markdown heading"},
		{"PDF", pdfFile, "PDF factory content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := ParserFactory(tt.file)
			require.NoError(t, err, "ParserFactory should succeed")

			text, err := parser.Parse(tt.file)
			require.NoError(t, err, "Parser.Parse should succeed")
			assert.Contains(t, text, tt.expected)
		})
	}

	// 不支持的类型
	_, err := ParserFactory("document.docx")
	assert.ErrorIs(t, err, ErrUnsupportedType, "Unsupported extension should be rejected")
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PDF, DetectContentType("a/b/report.PDF"))
	assert.Equal(t, Markdown, DetectContentType("notes.markdown"))
	assert.Equal(t, PlainText, DetectContentType("readme.txt"))
	assert.Equal(t, Unknown, DetectContentType("image.png"))
}

func TestDirectoryLoader_Scan(t *testing.T) {
	root := t.TempDir()

	// 构造嵌套目录结构
	sub := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(sub, 0755))
	hidden := filepath.Join(root, ".hidden")
	require.NoError(t, os.MkdirAll(hidden, 0755))

	writeFile := func(path string) {
		require.NoError(t, os.WriteFile(path, []byte("content"), 0644))
	}
	writeFile(filepath.Join(root, "a.txt"))
	writeFile(filepath.Join(root, "b.md"))
	writeFile(filepath.Join(sub, "c.pdf"))
	writeFile(filepath.Join(root, "ignore.png"))
	writeFile(filepath.Join(hidden, "secret.txt"))

	loader := NewDirectoryLoader(root)
	files, err := loader.Scan()
	require.NoError(t, err, "Directory scan should succeed")

	require.Len(t, files, 3, "Only supported document types should be found")
	for _, f := range files {
		assert.NotEqual(t, Unknown, DetectContentType(f))
		assert.False(t, strings.Contains(f, ".hidden"), "Hidden directories should be skipped")
	}

	// 扫描结果应稳定排序
	again, err := loader.Scan()
	require.NoError(t, err)
	assert.Equal(t, files, again, "Repeated scans should return the same order")

	// 不存在的目录
	_, err = NewDirectoryLoader(filepath.Join(root, "missing")).Scan()
	assert.Error(t, err, "Missing directory should return an error")
}

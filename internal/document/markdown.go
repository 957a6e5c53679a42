package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open markdown file: %v", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
// 直接遍历语法树提取文本，块级节点之间保留空行，便于后续按段落分块
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown content: %v", err)
	}

	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := mdParser.Parse(content)

	var blocks []string
	var current strings.Builder

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			blocks = append(blocks, text)
		}
		current.Reset()
	}

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				current.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				current.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				flush()
				if text := strings.TrimSpace(string(n.Literal)); text != "" {
					blocks = append(blocks, text)
				}
			}
		case *ast.Softbreak, *ast.Hardbreak:
			if entering {
				current.WriteByte(' ')
			}
		case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TableRow:
			if !entering {
				flush()
			}
		case *ast.TableCell:
			if !entering {
				current.WriteByte(' ')
			}
		case *ast.HTMLBlock, *ast.HTMLSpan:
			// 原始HTML不计入正文
			return ast.SkipChildren
		}
		return ast.GoToNext
	})
	flush()

	return strings.Join(blocks, "\n\n"), nil
}

package storage

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// ErrFileNotFound 文件未找到错误
var ErrFileNotFound = errors.New("file not found")

// FileInfo 文件元信息
type FileInfo struct {
	ID       string // 文件唯一标识符
	Name     string // 原始文件名
	Size     int64  // 文件大小（字节）
	MimeType string // MIME类型
	Path     string // 存储内的相对路径
}

// Storage 文件存储接口
// 上传的原始文档先落到存储层，再进入解析流水线
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get 根据文件ID获取文件内容
	Get(id string) (io.ReadCloser, error)

	// Delete 根据文件ID删除文件
	Delete(id string) error

	// List 列出存储中的所有文件
	List() ([]FileInfo, error)

	// Exists 检查指定ID的文件是否存在
	Exists(id string) (bool, error)
}

// getMimeType 根据文件扩展名推断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

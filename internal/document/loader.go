package document

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectoryLoader 目录加载器
// 递归扫描目录，找出所有可解析的文档文件
type DirectoryLoader struct {
	root string // 扫描的根目录
}

// NewDirectoryLoader 创建目录加载器
func NewDirectoryLoader(root string) *DirectoryLoader {
	return &DirectoryLoader{root: root}
}

// Scan 递归扫描根目录，返回所有支持类型的文件路径
// 返回的路径按字典序排列，保证多次扫描结果稳定
func (l *DirectoryLoader) Scan() ([]string, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to access document directory: %v", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document path is not a directory: %s", l.root)
	}

	var files []string
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// 跳过隐藏目录
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if DetectContentType(path) == Unknown {
			return nil
		}

		files = append(files, path)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan document directory: %v", err)
	}

	sort.Strings(files)
	return files, nil
}

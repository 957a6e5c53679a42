package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStorage 本地文件系统存储实现
type LocalStorage struct {
	basePath string // 存储根目录
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 存储根目录路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage path cannot be empty")
	}

	// 确保存储目录存在
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: cfg.Path}, nil
}

// Save 保存文件到本地存储
// 文件按年/月/日目录存放，文件名为生成的唯一ID加原扩展名
func (s *LocalStorage) Save(reader io.Reader, filename string) (FileInfo, error) {
	id := uuid.New().String()
	ext := filepath.Ext(filename)

	now := time.Now()
	datePath := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())

	dir := filepath.Join(s.basePath, datePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create date directory: %w", err)
	}

	relPath := filepath.Join(datePath, id+ext)
	fullPath := filepath.Join(s.basePath, relPath)

	out, err := os.Create(fullPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, reader)
	if err != nil {
		// 写入失败时移除不完整的文件
		os.Remove(fullPath)
		return FileInfo{}, fmt.Errorf("failed to write file content: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     size,
		MimeType: getMimeType(filename),
		Path:     relPath,
	}, nil
}

// Get 根据文件ID获取文件内容
func (s *LocalStorage) Get(id string) (io.ReadCloser, error) {
	path, err := s.findPathByID(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete 根据文件ID删除文件
func (s *LocalStorage) Delete(id string) error {
	path, err := s.findPathByID(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List 列出本地存储中的所有文件
func (s *LocalStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		name := d.Name()
		files = append(files, FileInfo{
			ID:       strings.TrimSuffix(name, filepath.Ext(name)),
			Name:     name,
			Size:     info.Size(),
			MimeType: getMimeType(name),
			Path:     relPath,
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Exists 检查指定ID的文件是否存在
func (s *LocalStorage) Exists(id string) (bool, error) {
	_, err := s.findPathByID(id)
	if errors.Is(err, ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// errFoundFile 提前终止目录遍历的哨兵错误
var errFoundFile = errors.New("file found")

// findPathByID 在日期目录结构中查找指定ID对应的文件路径
func (s *LocalStorage) findPathByID(id string) (string, error) {
	var found string

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == id {
			found = path
			return errFoundFile
		}
		return nil
	})

	if errors.Is(err, errFoundFile) {
		return found, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to search for file: %w", err)
	}
	return "", ErrFileNotFound
}

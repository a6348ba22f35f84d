// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package object

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "invoice-agent/pkg/errors"
)

const metaSuffix = ".meta.json"

// FileStore 本地文件系统对象存储；元数据存在同名 sidecar 文件里
type FileStore struct {
	root string
}

// NewFileStore 创建文件对象存储，root 不存在时自动创建
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		root = "data/objects"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrap(err, "创建对象存储目录failed")
	}
	return &FileStore{root: root}, nil
}

// fullPath 把对象路径落到 root 下，拒绝越出 root 的路径
func (s *FileStore) fullPath(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.Newf(apperrors.KindValidation, "非法对象路径: %s", path)
	}
	return filepath.Join(s.root, clean), nil
}

// Put 上传对象
func (s *FileStore) Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error {
	full, err := s.fullPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apperrors.Wrap(err, "创建对象目录failed")
	}

	f, err := os.Create(full)
	if err != nil {
		return apperrors.Wrap(err, "创建对象文件failed")
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return apperrors.Wrap(err, "写入对象数据failed")
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(err, "写入对象数据failed")
	}

	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return apperrors.WrapKind(err, apperrors.KindSerialization, "序列化对象元数据failed")
		}
		if err := os.WriteFile(full+metaSuffix, raw, 0o644); err != nil {
			return apperrors.Wrap(err, "写入对象元数据failed")
		}
	}
	return nil
}

// Get 下载对象
func (s *FileStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "object %s", path)
		}
		return nil, apperrors.Wrap(err, "读取对象failed")
	}
	return f, nil
}

// Delete 删除对象
func (s *FileStore) Delete(ctx context.Context, path string) error {
	full, err := s.fullPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return apperrors.Wrapf(apperrors.ErrNotFound, "object %s", path)
		}
		return apperrors.Wrap(err, "删除对象failed")
	}
	os.Remove(full + metaSuffix)
	return nil
}

// List 列出对象
func (s *FileStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var results []*ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		objPath := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(objPath, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		metadata, _ := s.readMetadata(p)
		results = append(results, &ObjectInfo{
			Path:      objPath,
			Size:      info.Size(),
			Metadata:  metadata,
			CreatedAt: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "列出对象failed")
	}
	return results, nil
}

// Exists 检查对象是否存在
func (s *FileStore) Exists(ctx context.Context, path string) (bool, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "检查对象failed")
	}
	return true, nil
}

// GetMetadata 获取对象元数据
func (s *FileStore) GetMetadata(ctx context.Context, path string) (map[string]string, error) {
	full, err := s.fullPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "object %s", path)
		}
		return nil, apperrors.Wrap(err, "检查对象failed")
	}
	metadata, err := s.readMetadata(full)
	if err != nil {
		return nil, err
	}
	return metadata, nil
}

func (s *FileStore) readMetadata(full string) (map[string]string, error) {
	raw, err := os.ReadFile(full + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "读取对象元数据failed")
	}
	metadata := make(map[string]string)
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, apperrors.WrapKind(err, apperrors.KindSerialization, "解析对象元数据failed")
	}
	return metadata, nil
}

// Close 关闭存储连接
func (s *FileStore) Close() error {
	return nil
}

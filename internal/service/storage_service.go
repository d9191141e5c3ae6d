package service

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	storage "github.com/supabase-community/storage-go"
	"go.uber.org/zap"
)

var ErrObjectExists = errors.New("object already exists")

// StorageProvider 归档使用的对象存储接口，只写入不删除
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	GetURL(key string) string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filepath.FromSlash(key))
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	// 先写临时文件，完整落盘后再 link 到目标路径；link 在目标已存在时失败，保证只写一次
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Link(tmpName, dst); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
		}
		return "", err
	}

	return p.GetURL(key), nil
}

func (p *LocalStorageProvider) Download(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.Config.LocalPath, filepath.FromSlash(key)))
}

func (p *LocalStorageProvider) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Clean(p.Config.LocalPath)
	// 前缀按目录处理，从最近的已存在目录开始遍历
	start := filepath.Join(root, filepath.FromSlash(prefix))
	if !strings.HasSuffix(prefix, "/") {
		start = filepath.Dir(start)
	}
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}

func (p *LocalStorageProvider) GetURL(key string) string {
	return "/uploads/" + key
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	// 写入前检查，已存在的对象不覆盖
	if _, err := p.Client.StatObject(ctx, p.Config.MinioBucket, key, minio.StatObjectOptions{}); err == nil {
		return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", err
	}

	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := p.Client.GetObject(ctx, p.Config.MinioBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (p *MinioStorageProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range p.Client.ListObjects(ctx, p.Config.MinioBucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (p *MinioStorageProvider) GetURL(key string) string {
	return "/" + p.Config.MinioBucket + "/" + key
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	err = bucket.PutObject(key, reader, oss.ContentType(contentType), oss.ForbidOverWrite(true))
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == "FileAlreadyExists" {
			return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
		}
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) Download(ctx context.Context, key string) ([]byte, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	body, err := bucket.GetObject(key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (p *OSSStorageProvider) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}

	var keys []string
	marker := ""
	for {
		res, err := bucket.ListObjects(oss.Prefix(prefix), oss.Marker(marker))
		if err != nil {
			return nil, err
		}
		for _, obj := range res.Objects {
			keys = append(keys, obj.Key)
		}
		if !res.IsTruncated {
			break
		}
		marker = res.NextMarker
	}
	return keys, nil
}

func (p *OSSStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, key)
}

// SupabaseStorageProvider Supabase Storage 实现
type SupabaseStorageProvider struct {
	Config *config.StorageConfig
	Client *storage.Client
}

const supabaseListPage = 100

func NewSupabaseStorageProvider(cfg *config.StorageConfig) *SupabaseStorageProvider {
	client := storage.NewClient(strings.TrimRight(cfg.SupabaseURL, "/")+"/storage/v1", cfg.SupabaseKey, nil)
	return &SupabaseStorageProvider{Config: cfg, Client: client}
}

func (p *SupabaseStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	upsert := false
	_, err := p.Client.UploadFile(p.Config.SupabaseBucket, key, reader, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
		}
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *SupabaseStorageProvider) Download(ctx context.Context, key string) ([]byte, error) {
	return p.Client.DownloadFile(p.Config.SupabaseBucket, key)
}

// List Supabase 按目录列举，没有 id 的条目为子目录，需要递归
func (p *SupabaseStorageProvider) List(ctx context.Context, prefix string) ([]string, error) {
	dir := prefix
	namePrefix := ""
	if !strings.HasSuffix(prefix, "/") {
		if i := strings.LastIndex(prefix, "/"); i >= 0 {
			dir, namePrefix = prefix[:i+1], prefix[i+1:]
		} else {
			dir, namePrefix = "", prefix
		}
	}
	return p.listDir(ctx, strings.TrimSuffix(dir, "/"), namePrefix)
}

func (p *SupabaseStorageProvider) listDir(ctx context.Context, dir, namePrefix string) ([]string, error) {
	var keys []string
	for offset := 0; ; offset += supabaseListPage {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := p.Client.ListFiles(p.Config.SupabaseBucket, dir, storage.FileSearchOptions{
			Limit:  supabaseListPage,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !strings.HasPrefix(f.Name, namePrefix) {
				continue
			}
			full := f.Name
			if dir != "" {
				full = dir + "/" + f.Name
			}
			if f.Id == "" {
				sub, err := p.listDir(ctx, full, "")
				if err != nil {
					return nil, err
				}
				keys = append(keys, sub...)
				continue
			}
			keys = append(keys, full)
		}
		if len(files) < supabaseListPage {
			break
		}
	}
	return keys, nil
}

func (p *SupabaseStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", strings.TrimRight(p.Config.SupabaseURL, "/"), p.Config.SupabaseBucket, key)
}

// StorageService 存储服务
type StorageService struct {
	Provider StorageProvider
}

func NewStorageService(cfg *config.Config) *StorageService {
	var provider StorageProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioStorageProvider(&cfg.Storage)
		if err == nil {
			provider = p
		} else {
			logger.Log.Error("minio init failed, falling back to local storage", zap.Error(err))
		}
	case util.StorageOSS:
		p, err := NewOSSStorageProvider(&cfg.Storage)
		if err == nil {
			provider = p
		} else {
			logger.Log.Error("oss init failed, falling back to local storage", zap.Error(err))
		}
	case util.StorageSupabase:
		provider = NewSupabaseStorageProvider(&cfg.Storage)
	}

	if provider == nil {
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return &StorageService{Provider: provider}
}

func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.Provider.Upload(ctx, key, reader, size, contentType)
}

func (s *StorageService) Download(ctx context.Context, key string) ([]byte, error) {
	return s.Provider.Download(ctx, key)
}

func (s *StorageService) List(ctx context.Context, prefix string) ([]string, error) {
	return s.Provider.List(ctx, prefix)
}

func (s *StorageService) GetURL(key string) string {
	return s.Provider.GetURL(key)
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"visual_experiment/internal/config"
	"visual_experiment/internal/model"
	"visual_experiment/internal/util"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveProvider 对象存储接口，归档完成实验的参与者记录
type ArchiveProvider interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Name() string
}

// LocalArchiveProvider 写入本地目录
type LocalArchiveProvider struct {
	Root string
}

func (p *LocalArchiveProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	dst := filepath.Join(p.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (p *LocalArchiveProvider) Name() string { return util.ArchiveLocal }

// MinioArchiveProvider MinIO 实现
type MinioArchiveProvider struct {
	Bucket string
	Client *minio.Client
}

func NewMinioArchiveProvider(cfg *config.ArchiveConfig) (*MinioArchiveProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiveProvider{Bucket: cfg.MinioBucket, Client: client}, nil
}

func (p *MinioArchiveProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.Client.PutObject(ctx, p.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (p *MinioArchiveProvider) Name() string { return util.ArchiveMinio }

// OSSArchiveProvider 阿里云 OSS 实现
type OSSArchiveProvider struct {
	Bucket *oss.Bucket
}

func NewOSSArchiveProvider(cfg *config.ArchiveConfig) (*OSSArchiveProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSArchiveProvider{Bucket: bucket}, nil
}

func (p *OSSArchiveProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return p.Bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType))
}

func (p *OSSArchiveProvider) Name() string { return util.ArchiveOSS }

// NewArchiveProvider 按配置创建归档实现；type 为 none 或空时返回 nil
func NewArchiveProvider(cfg *config.ArchiveConfig) (ArchiveProvider, error) {
	switch cfg.Type {
	case "", util.ArchiveNone:
		return nil, nil
	case util.ArchiveLocal:
		return &LocalArchiveProvider{Root: cfg.LocalPath}, nil
	case util.ArchiveMinio:
		return NewMinioArchiveProvider(cfg)
	case util.ArchiveOSS:
		return NewOSSArchiveProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedArchive, cfg.Type)
	}
}

// ArchiveService 把参与者记录序列化后交给 provider
type ArchiveService struct {
	Provider ArchiveProvider
}

func NewArchiveService(provider ArchiveProvider) *ArchiveService {
	return &ArchiveService{Provider: provider}
}

// Enabled 未配置归档时为 false
func (s *ArchiveService) Enabled() bool {
	return s != nil && s.Provider != nil
}

// ParticipantKey participants/<id>.json
func ParticipantKey(id string) string {
	return "participants/" + id + ".json"
}

func (s *ArchiveService) ArchiveParticipant(ctx context.Context, p *model.Participant) error {
	if !s.Enabled() {
		return util.ErrArchiveNotAvailable
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return s.Provider.Put(ctx, ParticipantKey(p.ID), data, "application/json")
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"resume-match-go/internal/config"
	applogger "resume-match-go/internal/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadResume 上传简历文件，objectName 即简历的存储键
	UploadResume(ctx context.Context, objectName string, reader io.Reader, fileSize int64, contentType string) error

	// DownloadResume 按存储键下载简历文件
	DownloadResume(ctx context.Context, objectName string) ([]byte, error)

	// DeleteResume 按存储键删除简历文件
	DeleteResume(ctx context.Context, objectName string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client       *minio.Client
	cfg          *config.MinIOConfig
	resumeBucket string
}

// NewMinIO 创建MinIO客户端并确保简历存储桶存在
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:       client,
		cfg:          cfg,
		resumeBucket: cfg.ResumeBucket,
	}

	if err := m.ensureBucketExists(context.Background(), cfg.ResumeBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", cfg.ResumeBucket, err)
	}

	applogger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.ResumeBucket).Msg("MinIO客户端初始化成功")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
	}
	return nil
}

// UploadResume 上传简历文件
func (m *MinIO) UploadResume(ctx context.Context, objectName string, reader io.Reader, fileSize int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.resumeBucket, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传简历文件 %s 失败: %w", objectName, err)
	}
	return nil
}

// DownloadResume 按存储键下载简历文件
func (m *MinIO) DownloadResume(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.resumeBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取简历文件 %s 失败: %w", objectName, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, fmt.Errorf("读取简历文件 %s 内容失败: %w", objectName, err)
	}
	return buf.Bytes(), nil
}

// DeleteResume 按存储键删除简历文件
func (m *MinIO) DeleteResume(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.resumeBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除简历文件 %s 失败: %w", objectName, err)
	}
	return nil
}

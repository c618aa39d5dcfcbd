package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/constants"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
)

// MinIO 保存原始简历文件与解析后的JSON，分桶存储并按天数自动过期。
type MinIO struct {
	client       *minio.Client
	rawBucket    string
	parsedBucket string
}

// NewMinIO 创建客户端并确保两个桶存在、生命周期规则就位。
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:       client,
		rawBucket:    cfg.RawBucket,
		parsedBucket: cfg.ParsedBucket,
	}
	if m.rawBucket == "" {
		m.rawBucket = constants.RawResumeBucket
	}
	if m.parsedBucket == "" {
		m.parsedBucket = constants.ParsedResumeBucket
	}

	if err := m.ensureBucket(ctx, m.rawBucket, cfg.Location, cfg.RawExpireDays); err != nil {
		return nil, err
	}
	if err := m.ensureBucket(ctx, m.parsedBucket, cfg.Location, cfg.ParsedExpireDays); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinIO) ensureBucket(ctx context.Context, bucket, location string, expireDays int) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查桶是否存在失败 (bucket=%s): %w", bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建桶失败 (bucket=%s): %w", bucket, err)
		}
		logger.Info().Str("bucket", bucket).Msg("已创建对象存储桶")
	}
	if expireDays > 0 {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{
			{
				ID:     fmt.Sprintf("expire-%s", bucket),
				Status: "Enabled",
				Expiration: lifecycle.Expiration{
					Days: lifecycle.ExpirationDays(expireDays),
				},
			},
		}
		// 生命周期设置失败不阻断启动
		if err := m.client.SetBucketLifecycle(ctx, bucket, lc); err != nil {
			logger.Warn().Err(err).Str("bucket", bucket).Msg("设置桶生命周期失败")
		}
	}
	return nil
}

// RawBucket 返回原始简历所在桶名。
func (m *MinIO) RawBucket() string {
	return m.rawBucket
}

// ParsedBucket 返回解析结果所在桶名。
func (m *MinIO) ParsedBucket() string {
	return m.parsedBucket
}

// UploadResumeFile 流式上传原始简历，边上传边计算内容MD5。
// 对象键为 resumes/{submissionUUID}/original{ext}，返回对象键与MD5十六进制值。
// size未知时传-1走分片上传。
func (m *MinIO) UploadResumeFile(ctx context.Context, submissionUUID, filename string, reader io.Reader, size int64) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".md"
	}
	objectKey := fmt.Sprintf("resumes/%s/original%s", submissionUUID, ext)

	hasher := md5.New()
	tee := io.TeeReader(reader, hasher)
	info, err := m.client.PutObject(ctx, m.rawBucket, objectKey, tee, size, minio.PutObjectOptions{
		ContentType: contentTypeForExt(ext),
		UserMetadata: map[string]string{
			"original-filename": filename,
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("上传原始简历失败 (key=%s): %w", objectKey, err)
	}
	md5Hex := hex.EncodeToString(hasher.Sum(nil))
	logger.Debug().
		Str("bucket", m.rawBucket).
		Str("key", objectKey).
		Int64("size", info.Size).
		Msg("原始简历已上传")
	return objectKey, md5Hex, nil
}

// UploadParsedJSON 保存解析后的简历JSON，对象键为 resumes/{submissionUUID}/parsed.json。
func (m *MinIO) UploadParsedJSON(ctx context.Context, submissionUUID string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("resumes/%s/parsed.json", submissionUUID)
	_, err := m.client.PutObject(ctx, m.parsedBucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("上传解析结果失败 (key=%s): %w", objectKey, err)
	}
	return objectKey, nil
}

// DownloadResume 读取原始简历的完整内容。
func (m *MinIO) DownloadResume(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.rawBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下载原始简历失败 (key=%s): %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取原始简历内容失败 (key=%s): %w", objectKey, err)
	}
	return data, nil
}

// DownloadParsed 读取解析后的简历JSON。
func (m *MinIO) DownloadParsed(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.parsedBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("下载解析结果失败 (key=%s): %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取解析结果内容失败 (key=%s): %w", objectKey, err)
	}
	return data, nil
}

// PresignedRawURL 生成原始简历的预签名下载链接，expiry不大于0时默认15分钟。
func (m *MinIO) PresignedRawURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := m.client.PresignedGetObject(ctx, m.rawBucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名下载链接失败 (key=%s): %w", objectKey, err)
	}
	return u.String(), nil
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// Package service 实现了核心业务逻辑。
package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/drive"
	"talktofolder-go/pkg/log"
	"talktofolder-go/pkg/tika"
)

// ExtractService 负责把 Drive 文件变成纯文本。
// Google Workspace 文件走导出接口，二进制文件下载后交给 Tika 解析。
type ExtractService interface {
	ExtractText(ctx context.Context, user *model.User, file *model.File) (string, error)
}

type extractService struct {
	googleCfg  config.GoogleConfig
	tikaClient *tika.Client
}

// NewExtractService 创建一个新的 ExtractService 实例。
func NewExtractService(googleCfg config.GoogleConfig, tikaClient *tika.Client) ExtractService {
	return &extractService{googleCfg: googleCfg, tikaClient: tikaClient}
}

// ExtractText 提取单个文件的纯文本内容。
func (s *extractService) ExtractText(ctx context.Context, user *model.User, file *model.File) (string, error) {
	client, err := drive.NewClient(ctx, s.googleCfg, user.AccessToken, user.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to create drive client: %w", err)
	}

	// Workspace 文件不能直接下载，必须导出
	if exportMime := drive.ExportMimeFor(file.MimeType); exportMime != "" {
		content, err := client.Export(ctx, file.DriveID, exportMime)
		if err != nil {
			return "", fmt.Errorf("failed to export file %s: %w", file.Name, err)
		}
		return content, nil
	}

	data, err := client.Download(ctx, file.DriveID)
	if err != nil {
		return "", fmt.Errorf("failed to download file %s: %w", file.Name, err)
	}

	if drive.IsPlainText(file.MimeType) {
		return string(data), nil
	}

	log.Infof("[ExtractService] 使用 Tika 解析二进制文件: %s (%s)", file.Name, file.MimeType)
	content, err := s.tikaClient.ExtractText(ctx, bytes.NewReader(data), file.Name)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", file.Name, err)
	}
	return strings.TrimSpace(content), nil
}

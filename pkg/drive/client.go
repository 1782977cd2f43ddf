// Package drive 提供了访问 Google Drive API 的客户端封装。
package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"talktofolder-go/internal/config"
	"talktofolder-go/pkg/log"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Google Workspace 文件的 MIME 类型。
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
)

// Workspace 文件的导出格式。
const (
	ExportMimeText = "text/plain"
	ExportMimeCSV  = "text/csv"
)

// MaxDownloadSize 是单个文件内容读取的上限（20MB），防止超大文件拖垮索引请求。
const MaxDownloadSize = 20 * 1024 * 1024

// Client 封装一个绑定到单个用户 OAuth 令牌的 Drive 服务。
type Client struct {
	svc *drivev3.Service
}

// NewClient 使用用户的 OAuth 令牌创建 Drive 客户端。
// 令牌刷新由 oauth2.TokenSource 自动完成。
func NewClient(ctx context.Context, cfg config.GoogleConfig, accessToken, refreshToken string) (*Client, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       []string{drivev3.DriveReadonlyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})

	svc, err := drivev3.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// GetFolder 获取文件夹自身的元数据。
func (c *Client) GetFolder(ctx context.Context, folderID string) (*drivev3.File, error) {
	f, err := c.svc.Files.Get(folderID).
		Fields("id, name, mimeType").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get drive folder: %w", err)
	}
	if f.MimeType != MimeTypeFolder {
		return nil, fmt.Errorf("drive object %s is not a folder", folderID)
	}
	return f, nil
}

// ListFolderFiles 列出文件夹下的全部非回收文件（不含子文件夹）。
func (c *Client) ListFolderFiles(ctx context.Context, folderID string) ([]*drivev3.File, error) {
	var files []*drivev3.File
	query := fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'", folderID, MimeTypeFolder)

	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime)").
			PageSize(200).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list drive files: %w", err)
		}
		files = append(files, resp.Files...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	log.Infof("[DriveClient] 列出文件夹 %s 下 %d 个文件", folderID, len(files))
	return files, nil
}

// Download 下载普通文件的原始字节。
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download drive file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read drive file content: %w", err)
	}
	return data, nil
}

// Export 将 Google Workspace 文件导出为指定格式的文本。
func (c *Client) Export(ctx context.Context, fileID, exportMime string) (string, error) {
	resp, err := c.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("failed to export drive file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return "", fmt.Errorf("failed to read export content: %w", err)
	}
	return string(data), nil
}

// ExportMimeFor 返回 Workspace 文件对应的导出格式，非 Workspace 文件返回空串。
func ExportMimeFor(mimeType string) string {
	switch mimeType {
	case MimeTypeGoogleDoc, MimeTypeGoogleSlides:
		return ExportMimeText
	case MimeTypeGoogleSheet:
		return ExportMimeCSV
	}
	return ""
}

// IsPlainText 判断 MIME 类型是否为可直接读取的文本。
func IsPlainText(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-yaml":
		return true
	}
	return false
}

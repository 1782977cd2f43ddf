// Package assistant 提供了托管文档助手服务的 HTTP 客户端。
// 助手是一个按名称寻址的托管实体：上传文件后由服务端自行切分与索引，
// 聊天接口在助手的全部文件上做检索增强问答。
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"talktofolder-go/internal/config"
	"talktofolder-go/pkg/log"
)

// Message 是一条助手对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Info 是助手实体的元数据。
type Info struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// FileInfo 是助手侧已上传文件的元数据。
type FileInfo struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// ChatResponse 是助手聊天的完整回答。
type ChatResponse struct {
	Message Message `json:"message"`
	Model   string  `json:"model"`
}

// Client defines the interface for the managed assistant API.
type Client interface {
	// CreateAssistant 创建一个命名助手，已存在时服务端返回冲突错误。
	CreateAssistant(ctx context.Context, name, instructions string) error
	// DescribeAssistant 查询助手元数据，不存在时返回 ReasonNotFound 错误。
	DescribeAssistant(ctx context.Context, name string) (*Info, error)
	// Chat 在助手的全部文件上做检索增强问答。
	Chat(ctx context.Context, name string, messages []Message) (*ChatResponse, error)
	// UploadFile 以 multipart 上传本地文件，metadata 随查询参数提交。
	UploadFile(ctx context.Context, name, filePath string, metadata map[string]string) (*FileInfo, error)
	// ListFiles 列出助手侧全部文件。
	ListFiles(ctx context.Context, name string) ([]FileInfo, error)
	// DeleteFile 删除助手侧单个文件。
	DeleteFile(ctx context.Context, name, fileID string) error
}

type httpClient struct {
	cfg    config.AssistantConfig
	client *http.Client
}

// NewClient creates a new assistant API client.
func NewClient(cfg config.AssistantConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeError 将非 2xx 响应转换为结构化 APIError。
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Code = eb.Error.Code
		apiErr.Message = eb.Error.Message
	}
	return apiErr
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal assistant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create assistant request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call assistant api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("failed to decode assistant response: %w", err)
		}
	}
	return nil
}

func (c *httpClient) CreateAssistant(ctx context.Context, name, instructions string) error {
	body := map[string]string{
		"name":         name,
		"instructions": instructions,
	}
	if err := c.doJSON(ctx, "POST", "/assistant/assistants", body, nil); err != nil {
		return err
	}
	log.Infof("[AssistantClient] 助手创建成功, name: %s", name)
	return nil
}

func (c *httpClient) DescribeAssistant(ctx context.Context, name string) (*Info, error) {
	var info Info
	if err := c.doJSON(ctx, "GET", "/assistant/assistants/"+url.PathEscape(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) Chat(ctx context.Context, name string, messages []Message) (*ChatResponse, error) {
	body := map[string]interface{}{
		"messages": messages,
	}
	var chatResp ChatResponse
	if err := c.doJSON(ctx, "POST", "/assistant/chat/"+url.PathEscape(name), body, &chatResp); err != nil {
		return nil, err
	}
	if chatResp.Message.Content == "" {
		return nil, fmt.Errorf("assistant api returned empty message")
	}
	return &chatResp, nil
}

func (c *httpClient) UploadFile(ctx context.Context, name, filePath string, metadata map[string]string) (*FileInfo, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file into multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	uploadURL := c.cfg.BaseURL + "/assistant/files/" + url.PathEscape(name)
	if len(metadata) > 0 {
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal file metadata: %w", err)
		}
		uploadURL += "?metadata=" + url.QueryEscape(string(metaJSON))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call assistant upload api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var info FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	log.Infof("[AssistantClient] 文件上传成功, assistant: %s, file: %s", name, info.Name)
	return &info, nil
}

func (c *httpClient) ListFiles(ctx context.Context, name string) ([]FileInfo, error) {
	var listResp struct {
		Files []FileInfo `json:"files"`
	}
	if err := c.doJSON(ctx, "GET", "/assistant/files/"+url.PathEscape(name), nil, &listResp); err != nil {
		return nil, err
	}
	return listResp.Files, nil
}

func (c *httpClient) DeleteFile(ctx context.Context, name, fileID string) error {
	path := "/assistant/files/" + url.PathEscape(name) + "/" + url.PathEscape(fileID)
	return c.doJSON(ctx, "DELETE", path, nil, nil)
}

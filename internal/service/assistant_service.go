package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/internal/repository"
	"talktofolder-go/pkg/assistant"
	"talktofolder-go/pkg/log"
)

// assistantInstructions 是创建助手时的固定系统指令。
const assistantInstructions = "You are an AI assistant helping users understand and work with documents " +
	"in their Google Drive folders. Answer questions based on the uploaded documents. " +
	"Be helpful, accurate, and cite specific documents when referencing information."

// EnsureResult 是 CreateOrGetAssistant 的结果。
type EnsureResult struct {
	AssistantName string
	Existed       bool
}

// BatchUploadResult 是单个批次上传后的结果记录。
type BatchUploadResult struct {
	BatchName string   `json:"batchName"`
	Files     []string `json:"files"`
	FileIDs   []string `json:"fileIds"`
	Status    string   `json:"status"` // success | error
	Error     string   `json:"error,omitempty"`
}

// AssistantService 封装了对托管文档助手的全部业务操作。
// 每个用户恰好对应一个助手，绑定关系持久化在数据库里。
type AssistantService interface {
	// CreateOrGetAssistant 幂等地返回用户的助手：绑定记录缺失则条件插入，
	// 远端助手缺失则创建并等待就绪。并发调用收敛到同一个助手。
	CreateOrGetAssistant(ctx context.Context, userID string) (*EnsureResult, error)
	// UploadFileContent 把单个文件内容经临时文件上传到用户助手。
	UploadFileContent(ctx context.Context, userID, folderID, fileName, content string) error
	// UploadBatchedContent 打包后逐批上传，单批失败不影响其余批次。
	UploadBatchedContent(ctx context.Context, userID, folderID string, files []assistant.FileContent) ([]BatchUploadResult, error)
	// DeleteFilesForFolder 删除助手侧属于该文件夹的全部文件，返回删除数量。
	DeleteFilesForFolder(ctx context.Context, userID, folderID string) (int, error)
	// ChatWithAssistant 携带历史消息调用助手聊天接口。
	ChatWithAssistant(ctx context.Context, userID, message string, history []model.ChatMessage) (*assistant.ChatResponse, error)
}

type assistantService struct {
	client       assistant.Client
	identityRepo repository.AssistantIdentityRepository
	cfg          config.AssistantConfig
	batchLimit   int64
}

// NewAssistantService 创建一个新的 AssistantService 实例。
func NewAssistantService(client assistant.Client, identityRepo repository.AssistantIdentityRepository, cfg config.AssistantConfig, batchLimit int64) AssistantService {
	if batchLimit <= 0 {
		batchLimit = assistant.DefaultBatchSizeLimit
	}
	return &assistantService{
		client:       client,
		identityRepo: identityRepo,
		cfg:          cfg,
		batchLimit:   batchLimit,
	}
}

// assistantNameFor 从用户 ID 派生确定性的助手名。
func assistantNameFor(userID string) string {
	return "docs-assistant-" + sanitizeName(userID)
}

// sanitizeName 只保留小写字母、数字和连字符。
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func (s *assistantService) CreateOrGetAssistant(ctx context.Context, userID string) (*EnsureResult, error) {
	identity, err := s.identityRepo.FindByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant identity: %w", err)
	}
	if identity == nil {
		identity, err = s.identityRepo.Ensure(userID, assistantNameFor(userID))
		if err != nil {
			return nil, fmt.Errorf("failed to persist assistant identity: %w", err)
		}
	}

	if _, err := s.client.DescribeAssistant(ctx, identity.AssistantName); err == nil {
		return &EnsureResult{AssistantName: identity.AssistantName, Existed: true}, nil
	} else if !assistant.IsNotFound(err) {
		return nil, fmt.Errorf("failed to describe assistant: %w", err)
	}

	log.Infof("[AssistantService] 为用户 %s 创建助手: %s", userID, identity.AssistantName)
	if err := s.client.CreateAssistant(ctx, identity.AssistantName, assistantInstructions); err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}

	// 新建助手需要短暂等待后端就绪
	if wait := time.Duration(s.cfg.ReadyWaitSeconds) * time.Second; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &EnsureResult{AssistantName: identity.AssistantName, Existed: false}, nil
}

// uploadViaTempFile 把内容落成临时文件后上传，无论成败都清理临时产物。
func (s *assistantService) uploadViaTempFile(ctx context.Context, assistantName, fileName, content string, metadata map[string]string) error {
	dir, err := os.MkdirTemp("", "assistant-upload-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, sanitizeFileName(fileName))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if _, err := s.client.UploadFile(ctx, assistantName, path, metadata); err != nil {
		return err
	}
	return nil
}

// sanitizeFileName 替换文件名中的路径分隔符等危险字符。
func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", "\x00", "_")
	cleaned := replacer.Replace(name)
	if strings.TrimSpace(cleaned) == "" {
		return "untitled.txt"
	}
	return cleaned
}

func (s *assistantService) UploadFileContent(ctx context.Context, userID, folderID, fileName, content string) error {
	ensure, err := s.CreateOrGetAssistant(ctx, userID)
	if err != nil {
		return err
	}
	metadata := map[string]string{
		"userId":     userID,
		"folderId":   folderID,
		"fileName":   fileName,
		"uploadedAt": time.Now().UTC().Format(time.RFC3339),
	}
	return s.uploadViaTempFile(ctx, ensure.AssistantName, fileName, content, metadata)
}

func (s *assistantService) UploadBatchedContent(ctx context.Context, userID, folderID string, files []assistant.FileContent) ([]BatchUploadResult, error) {
	ensure, err := s.CreateOrGetAssistant(ctx, userID)
	if err != nil {
		return nil, err
	}

	batches := assistant.BuildBatches(folderID, files, s.batchLimit)
	results := make([]BatchUploadResult, 0, len(batches))

	for _, batch := range batches {
		if batch.Size > s.batchLimit {
			log.Warnf("[AssistantService] 批次 %s 超过大小上限 (%d > %d)，单文件独占批次", batch.Name, batch.Size, s.batchLimit)
		}

		includedFiles, _ := json.Marshal(batch.FileNames)
		metadata := map[string]string{
			"userId":        userID,
			"folderId":      folderID,
			"batchFileName": batch.Name,
			"includedFiles": string(includedFiles),
			"fileCount":     fmt.Sprintf("%d", len(batch.FileNames)),
			"uploadedAt":    time.Now().UTC().Format(time.RFC3339),
		}

		result := BatchUploadResult{
			BatchName: batch.Name,
			Files:     batch.FileNames,
			FileIDs:   batch.FileIDs,
			Status:    "success",
		}
		if err := s.uploadViaTempFile(ctx, ensure.AssistantName, batch.Name, batch.Content, metadata); err != nil {
			log.Errorf("[AssistantService] 批次 %s 上传失败: %v", batch.Name, err)
			result.Status = "error"
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *assistantService) DeleteFilesForFolder(ctx context.Context, userID, folderID string) (int, error) {
	identity, err := s.identityRepo.FindByUser(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load assistant identity: %w", err)
	}
	if identity == nil {
		return 0, nil // 用户没有助手，也就没有远端文件
	}

	files, err := s.client.ListFiles(ctx, identity.AssistantName)
	if err != nil {
		if assistant.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list assistant files: %w", err)
	}

	deleted := 0
	for _, f := range files {
		if f.Metadata["folderId"] != folderID {
			continue
		}
		if err := s.client.DeleteFile(ctx, identity.AssistantName, f.ID); err != nil {
			log.Warnf("[AssistantService] 删除助手文件 %s 失败: %v", f.ID, err)
			continue
		}
		deleted++
	}
	log.Infof("[AssistantService] 已删除文件夹 %s 的 %d 个助手文件", folderID, deleted)
	return deleted, nil
}

func (s *assistantService) ChatWithAssistant(ctx context.Context, userID, message string, history []model.ChatMessage) (*assistant.ChatResponse, error) {
	ensure, err := s.CreateOrGetAssistant(ctx, userID)
	if err != nil {
		return nil, err
	}

	messages := make([]assistant.Message, 0, len(history)+1)
	for _, h := range history {
		messages = append(messages, assistant.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, assistant.Message{Role: model.RoleUser, Content: message})

	return s.client.Chat(ctx, ensure.AssistantName, messages)
}

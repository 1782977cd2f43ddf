package service

import (
	"context"
	"fmt"
	"strings"

	"talktofolder-go/internal/model"
	"talktofolder-go/internal/repository"
	"talktofolder-go/pkg/assistant"
	"talktofolder-go/pkg/llm"
	"talktofolder-go/pkg/log"

	"github.com/google/uuid"
)

// 聊天编排的固定参数。
const (
	chatHistoryLimit  = 10
	fallbackTopK      = 5
	fallbackMinScore  = 0.7
	fallbackMaxTokens = 1000
	fallbackTemp      = 0.7
)

// noContextSentinel 在检索无命中时充当上下文占位。
const noContextSentinel = "No relevant documents found in this folder."

// failureMessage 是兜底的助手回复，保证会话永远以助手消息收尾。
const failureMessage = "I'm sorry, there was an error processing your request. " +
	"Please make sure your documents are indexed and try again."

// FallbackVectorSearch 标记回答来自向量检索降级路径。
const FallbackVectorSearch = "vector-search"

// ChatResult 是一次聊天调用的结构化结果。
// Failed 为 true 表示走了兜底路径，但对调用方仍是软成功。
type ChatResult struct {
	Response  string           `json:"response"`
	MessageID string           `json:"messageId"`
	Citations []model.Citation `json:"citations,omitempty"`
	Fallback  string           `json:"fallback,omitempty"`
	Failed    bool             `json:"failed,omitempty"`
}

// ChatService 实现检索增强聊天的顶层编排。
type ChatService interface {
	// ChatWithAssistantFirst 执行助手优先协议：先持久化用户消息，
	// 尝试托管助手；仅当错误为服务条款类时降级到向量检索，
	// 其余错误直接落到固定失败消息。任何路径都会补上一条助手消息。
	ChatWithAssistantFirst(ctx context.Context, userID, chatID, message string) (*ChatResult, error)
	// ChatVectorOnly 跳过托管助手，直接走向量检索 + 补全。
	ChatVectorOnly(ctx context.Context, userID, chatID, message string) (*ChatResult, error)
	// Messages 返回会话全部消息（含引用）。
	Messages(userID, chatID string) ([]*model.Message, error)
	// RecentChats 返回用户最近活跃的会话。
	RecentChats(userID string, limit int) ([]*model.Chat, error)
	// DeleteChat 执行重置协议：尽力清理远端向量与助手文件后，
	// 删除会话与消息，文件夹回到 pending 并取消全部文件的索引标记。
	DeleteChat(ctx context.Context, userID, chatID string) error
}

type chatService struct {
	chatRepo     repository.ChatRepository
	folderRepo   repository.FolderRepository
	fileRepo     repository.FileRepository
	vectorSvc    VectorService
	assistantSvc AssistantService
	llmClient    llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	chatRepo repository.ChatRepository,
	folderRepo repository.FolderRepository,
	fileRepo repository.FileRepository,
	vectorSvc VectorService,
	assistantSvc AssistantService,
	llmClient llm.Client,
) ChatService {
	return &chatService{
		chatRepo:     chatRepo,
		folderRepo:   folderRepo,
		fileRepo:     fileRepo,
		vectorSvc:    vectorSvc,
		assistantSvc: assistantSvc,
		llmClient:    llmClient,
	}
}

// loadSession 校验会话归属并加载其文件夹。
func (s *chatService) loadSession(userID, chatID string) (*model.Chat, *model.Folder, error) {
	chat, err := s.chatRepo.FindByIDForUser(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		return nil, nil, fmt.Errorf("chat %s not found", chatID)
	}
	folder, err := s.folderRepo.FindByIDForUser(chat.FolderID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load folder: %w", err)
	}
	if folder == nil {
		return nil, nil, fmt.Errorf("folder %s not found", chat.FolderID)
	}
	return chat, folder, nil
}

// persistMessage 落库一条消息并返回其 ID。
func (s *chatService) persistMessage(chatID, role, content string, citations []model.Citation) (string, error) {
	msg := &model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Citations: model.EncodeCitations(citations),
	}
	if err := s.chatRepo.CreateMessage(msg); err != nil {
		return "", fmt.Errorf("failed to persist %s message: %w", role, err)
	}
	return msg.ID, nil
}

func (s *chatService) ChatWithAssistantFirst(ctx context.Context, userID, chatID, message string) (*ChatResult, error) {
	chat, folder, err := s.loadSession(userID, chatID)
	if err != nil {
		return nil, err
	}

	history, err := s.recentHistory(chat.ID)
	if err != nil {
		return nil, err
	}

	// 先落用户消息，之后任何失败都不会丢掉用户输入
	if _, err := s.persistMessage(chat.ID, model.RoleUser, message, nil); err != nil {
		return nil, err
	}

	resp, assistantErr := s.assistantSvc.ChatWithAssistant(ctx, userID, message, history)
	if assistantErr == nil {
		msgID, err := s.persistMessage(chat.ID, model.RoleAssistant, resp.Message.Content, nil)
		if err != nil {
			return nil, err
		}
		if err := s.chatRepo.Touch(chat.ID); err != nil {
			log.Warnf("[ChatService] 更新会话时间戳失败: %v", err)
		}
		return &ChatResult{Response: resp.Message.Content, MessageID: msgID}, nil
	}

	// 只有服务条款类错误才降级，其余助手错误直接走失败路径
	if assistant.ReasonOf(assistantErr) == assistant.ReasonTermsNotAccepted {
		log.Warnf("[ChatService] 助手服务条款未接受, 降级到向量检索: %v", assistantErr)
		if result, err := s.answerFromVectors(ctx, userID, chat, folder, message); err == nil {
			result.Fallback = FallbackVectorSearch
			return result, nil
		} else {
			log.Errorf("[ChatService] 向量检索降级失败: %v", err)
		}
	} else {
		log.Errorf("[ChatService] 助手聊天失败: %v", assistantErr)
	}

	return s.failSoft(chat.ID)
}

func (s *chatService) ChatVectorOnly(ctx context.Context, userID, chatID, message string) (*ChatResult, error) {
	chat, folder, err := s.loadSession(userID, chatID)
	if err != nil {
		return nil, err
	}

	if _, err := s.persistMessage(chat.ID, model.RoleUser, message, nil); err != nil {
		return nil, err
	}

	result, err := s.answerFromVectors(ctx, userID, chat, folder, message)
	if err != nil {
		log.Errorf("[ChatService] 向量检索聊天失败: %v", err)
		return s.failSoft(chat.ID)
	}
	return result, nil
}

// recentHistory 取会话最近的消息作为助手调用的上下文。
func (s *chatService) recentHistory(chatID string) ([]model.ChatMessage, error) {
	messages, err := s.chatRepo.LastMessages(chatID, chatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	history := make([]model.ChatMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, model.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// answerFromVectors 执行向量检索 + 补全，并落库带引用的助手回复。
func (s *chatService) answerFromVectors(ctx context.Context, userID string, chat *model.Chat, folder *model.Folder, message string) (*ChatResult, error) {
	results, err := s.vectorSvc.SearchSimilar(ctx, message, userID, SearchOptions{
		FolderID: folder.ID,
		TopK:     fallbackTopK,
		MinScore: fallbackMinScore,
	})
	if err != nil {
		return nil, err
	}

	contextText := noContextSentinel
	if len(results) > 0 {
		var blocks []string
		for _, r := range results {
			blocks = append(blocks, fmt.Sprintf("%s: %s", r.Metadata.FileName, r.Metadata.ChunkText))
		}
		contextText = strings.Join(blocks, "\n\n")
	}

	prompt := buildFallbackPrompt(folder.Name, contextText, message)
	temp := fallbackTemp
	maxTokens := fallbackMaxTokens
	answer, err := s.llmClient.Complete(ctx, prompt, message, &llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, err
	}

	citations := make([]model.Citation, 0, len(results))
	for _, r := range results {
		citations = append(citations, model.Citation{
			FileName:   r.Metadata.FileName,
			FileID:     r.Metadata.FileID,
			Score:      r.Score,
			ChunkIndex: r.Metadata.ChunkIndex,
		})
	}

	msgID, err := s.persistMessage(chat.ID, model.RoleAssistant, answer, citations)
	if err != nil {
		return nil, err
	}
	if err := s.chatRepo.Touch(chat.ID); err != nil {
		log.Warnf("[ChatService] 更新会话时间戳失败: %v", err)
	}
	return &ChatResult{Response: answer, MessageID: msgID, Citations: citations}, nil
}

// failSoft 落库固定失败消息；会话永远不会缺少助手回合。
// 时间戳不更新：失败回合不算有效活跃。
func (s *chatService) failSoft(chatID string) (*ChatResult, error) {
	msgID, err := s.persistMessage(chatID, model.RoleAssistant, failureMessage, nil)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Response: failureMessage, MessageID: msgID, Failed: true}, nil
}

// buildFallbackPrompt 构造文件夹范围内的系统提示词，要求模型点名引用来源文档。
func buildFallbackPrompt(folderName, contextText, question string) string {
	return fmt.Sprintf(`You are an AI assistant helping users understand and work with documents in their Google Drive folder "%s".

Based on the following context from the user's documents, please answer their question. If the context doesn't contain relevant information, let them know and suggest they might need to ask about different topics or check if their documents have been properly indexed.

Context from documents:
%s

User question: %s

Please provide a helpful response based on the context above. If you reference specific information, mention which document it came from.`, folderName, contextText, question)
}

func (s *chatService) Messages(userID, chatID string) ([]*model.Message, error) {
	chat, err := s.chatRepo.FindByIDForUser(chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		return nil, fmt.Errorf("chat %s not found", chatID)
	}
	return s.chatRepo.Messages(chat.ID)
}

func (s *chatService) RecentChats(userID string, limit int) ([]*model.Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.chatRepo.RecentForUser(userID, limit)
}

func (s *chatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	chat, folder, err := s.loadSession(userID, chatID)
	if err != nil {
		return err
	}

	// 远端清理是尽力而为，失败不阻塞本地重置
	if err := s.vectorSvc.DeleteFolderVectors(ctx, userID, folder.ID); err != nil {
		log.Warnf("[ChatService] 删除文件夹 %s 的向量失败: %v", folder.ID, err)
	}
	if _, err := s.assistantSvc.DeleteFilesForFolder(ctx, userID, folder.ID); err != nil {
		log.Warnf("[ChatService] 删除文件夹 %s 的助手文件失败: %v", folder.ID, err)
	}

	if err := s.chatRepo.DeleteWithMessages(chat.ID); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if err := s.fileRepo.UnmarkFolder(folder.ID); err != nil {
		return fmt.Errorf("failed to unmark folder files: %w", err)
	}
	if err := s.folderRepo.ResetToPending(folder.ID); err != nil {
		return fmt.Errorf("failed to reset folder status: %w", err)
	}
	log.Infof("[ChatService] 会话 %s 已删除, 文件夹 %s 重置为待索引", chat.ID, folder.ID)
	return nil
}

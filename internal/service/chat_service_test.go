package service

import (
	"context"
	"errors"
	"testing"

	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/assistant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	chatRepo     *fakeChatRepo
	folderRepo   *fakeFolderRepo
	fileRepo     *fakeFileRepo
	vectorSvc    *fakeVectorService
	assistantSvc *fakeAssistantService
	llm          *fakeLLM
	svc          ChatService
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		chatRepo:     newFakeChatRepo(),
		folderRepo:   newFakeFolderRepo(),
		fileRepo:     newFakeFileRepo(),
		vectorSvc:    newFakeVectorService(),
		assistantSvc: &fakeAssistantService{},
		llm:          &fakeLLM{response: "generated answer"},
	}
	f.folderRepo.Create(&model.Folder{ID: "folder1", UserID: "user1", Name: "Reports", IndexStatus: model.IndexStatusCompleted})
	f.chatRepo.addChat(&model.Chat{ID: "chat1", FolderID: "folder1"}, "user1")
	f.svc = NewChatService(f.chatRepo, f.folderRepo, f.fileRepo, f.vectorSvc, f.assistantSvc, f.llm)
	return f
}

func sampleSearchResults() []model.SearchResult {
	return []model.SearchResult{
		{
			ID:    "file1-chunk-0",
			Score: 0.92,
			Metadata: model.EsChunk{
				FileID: "file1", FileName: "report.pdf", ChunkIndex: 0, ChunkText: "quarterly revenue grew",
			},
		},
		{
			ID:    "file2-chunk-3",
			Score: 0.81,
			Metadata: model.EsChunk{
				FileID: "file2", FileName: "notes.txt", ChunkIndex: 3, ChunkText: "meeting summary",
			},
		},
	}
}

func TestChatAssistantSuccess(t *testing.T) {
	f := newChatFixture()
	f.assistantSvc.chatResp = &assistant.ChatResponse{Message: assistant.Message{Role: "assistant", Content: "from assistant"}}

	result, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "chat1", "what changed?")
	require.NoError(t, err)

	assert.Equal(t, "from assistant", result.Response)
	assert.Empty(t, result.Fallback)
	assert.False(t, result.Failed)
	assert.Empty(t, result.Citations)

	// 用户消息先落库，助手回复随后
	require.Len(t, f.chatRepo.messages, 2)
	assert.Equal(t, model.RoleUser, f.chatRepo.messages[0].Role)
	assert.Equal(t, "what changed?", f.chatRepo.messages[0].Content)
	assert.Equal(t, model.RoleAssistant, f.chatRepo.messages[1].Role)
	assert.Equal(t, 1, f.chatRepo.touched)
	assert.Equal(t, 0, f.vectorSvc.searchCalls)
}

func TestChatTosErrorTriggersFallback(t *testing.T) {
	f := newChatFixture()
	f.assistantSvc.chatErr = &assistant.APIError{StatusCode: 403, Code: "TERMS_OF_SERVICE_NOT_ACCEPTED", Message: "accept tos first"}
	f.vectorSvc.searchResults = sampleSearchResults()

	result, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "chat1", "what changed?")
	require.NoError(t, err)

	assert.Equal(t, FallbackVectorSearch, result.Fallback)
	assert.Equal(t, "generated answer", result.Response)
	require.Len(t, result.Citations, 2)
	assert.Equal(t, "report.pdf", result.Citations[0].FileName)
	assert.Equal(t, "file1", result.Citations[0].FileID)
	assert.Equal(t, 0.92, result.Citations[0].Score)
	assert.Equal(t, 0, result.Citations[0].ChunkIndex)

	// 降级检索限定在会话所属文件夹，参数固定
	assert.Equal(t, 1, f.vectorSvc.searchCalls)
	assert.Equal(t, "folder1", f.vectorSvc.lastSearchOpts.FolderID)
	assert.Equal(t, fallbackTopK, f.vectorSvc.lastSearchOpts.TopK)
	assert.Equal(t, fallbackMinScore, f.vectorSvc.lastSearchOpts.MinScore)

	// 助手回复带引用落库
	require.Len(t, f.chatRepo.messages, 2)
	assert.Equal(t, model.RoleAssistant, f.chatRepo.messages[1].Role)
	assert.Len(t, f.chatRepo.messages[1].CitationList(), 2)
	assert.Equal(t, 1, f.chatRepo.touched)
}

func TestChatGenericErrorSkipsFallback(t *testing.T) {
	f := newChatFixture()
	f.assistantSvc.chatErr = errors.New("connection reset")

	result, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "chat1", "hello")
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, failureMessage, result.Response)
	assert.Empty(t, result.Citations)

	// 非 ToS 错误绝不触发向量降级
	assert.Equal(t, 0, f.vectorSvc.searchCalls)
	assert.Equal(t, 0, f.llm.calls)

	// 会话仍以助手消息收尾，但不更新活跃时间
	require.Len(t, f.chatRepo.messages, 2)
	assert.Equal(t, model.RoleUser, f.chatRepo.messages[0].Role)
	assert.Equal(t, failureMessage, f.chatRepo.messages[1].Content)
	assert.Equal(t, 0, f.chatRepo.touched)
}

func TestChatFallbackFailureDegradesToFixedMessage(t *testing.T) {
	f := newChatFixture()
	f.assistantSvc.chatErr = &assistant.APIError{StatusCode: 403, Code: "TERMS_OF_SERVICE_NOT_ACCEPTED"}
	f.vectorSvc.searchErr = errors.New("search unavailable")

	result, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "chat1", "hello")
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, failureMessage, result.Response)
	assert.Equal(t, 0, f.chatRepo.touched)
}

func TestChatVectorOnlyWithEmptyResults(t *testing.T) {
	f := newChatFixture()
	f.vectorSvc.searchResults = nil

	result, err := f.svc.ChatVectorOnly(context.Background(), "user1", "chat1", "anything here?")
	require.NoError(t, err)

	assert.Equal(t, "generated answer", result.Response)
	assert.Empty(t, result.Citations)
	// 无命中时上下文用固定占位串
	assert.Contains(t, f.llm.lastPrompt, noContextSentinel)
	assert.Contains(t, f.llm.lastPrompt, "Reports")
}

func TestChatHistoryExcludesCurrentMessage(t *testing.T) {
	f := newChatFixture()
	f.assistantSvc.chatResp = &assistant.ChatResponse{Message: assistant.Message{Role: "assistant", Content: "ok"}}
	f.chatRepo.CreateMessage(&model.Message{ID: "m1", ChatID: "chat1", Role: model.RoleUser, Content: "earlier question"})
	f.chatRepo.CreateMessage(&model.Message{ID: "m2", ChatID: "chat1", Role: model.RoleAssistant, Content: "earlier answer"})

	_, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "chat1", "new question")
	require.NoError(t, err)

	require.Len(t, f.assistantSvc.lastHistory, 2)
	assert.Equal(t, "earlier question", f.assistantSvc.lastHistory[0].Content)
	assert.Equal(t, "earlier answer", f.assistantSvc.lastHistory[1].Content)
}

func TestChatUnknownChat(t *testing.T) {
	f := newChatFixture()
	_, err := f.svc.ChatWithAssistantFirst(context.Background(), "user1", "missing", "hello")
	assert.Error(t, err)

	// 归属校验：其他用户访问同一会话同样失败
	_, err = f.svc.ChatWithAssistantFirst(context.Background(), "user2", "chat1", "hello")
	assert.Error(t, err)
}

func TestDeleteChatResetsFolder(t *testing.T) {
	f := newChatFixture()
	f.fileRepo.Upsert(&model.File{ID: "file1", FolderID: "folder1", Indexed: true})

	err := f.svc.DeleteChat(context.Background(), "user1", "chat1")
	require.NoError(t, err)

	assert.Equal(t, []string{"chat1"}, f.chatRepo.deleted)
	assert.Equal(t, []string{"folder1"}, f.folderRepo.resetIDs)
	assert.Equal(t, []string{"folder1"}, f.fileRepo.unmarkedFolders)
	assert.Equal(t, []string{"folder1"}, f.vectorSvc.deletedFolders)
	assert.Equal(t, 1, f.assistantSvc.deleteCalls)
	assert.False(t, f.fileRepo.files["file1"].Indexed)
}

func TestDeleteChatProceedsPastRemoteFailures(t *testing.T) {
	f := newChatFixture()
	f.vectorSvc.deleteErr = errors.New("es down")
	f.assistantSvc.deleteErr = errors.New("assistant down")

	err := f.svc.DeleteChat(context.Background(), "user1", "chat1")
	require.NoError(t, err)

	// 远端清理失败不阻塞本地重置
	assert.Equal(t, []string{"chat1"}, f.chatRepo.deleted)
	assert.Equal(t, []string{"folder1"}, f.folderRepo.resetIDs)
}

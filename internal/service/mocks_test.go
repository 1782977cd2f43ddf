package service

import (
	"context"
	"fmt"
	"time"

	"talktofolder-go/internal/chunker"
	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/assistant"
	"talktofolder-go/pkg/llm"
)

// 手写的协作者替身，只实现测试需要的行为。

type fakeChatRepo struct {
	chats    map[string]*model.Chat
	ownerIDs map[string]string // chatID -> userID
	messages []*model.Message
	touched  int
	deleted  []string
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: map[string]*model.Chat{}, ownerIDs: map[string]string{}}
}

func (r *fakeChatRepo) addChat(chat *model.Chat, userID string) {
	r.chats[chat.ID] = chat
	r.ownerIDs[chat.ID] = userID
}

func (r *fakeChatRepo) Create(chat *model.Chat) error { r.chats[chat.ID] = chat; return nil }

func (r *fakeChatRepo) FindByIDForUser(id, userID string) (*model.Chat, error) {
	chat, ok := r.chats[id]
	if !ok || r.ownerIDs[id] != userID {
		return nil, nil
	}
	return chat, nil
}

func (r *fakeChatRepo) FindByFolder(folderID string) (*model.Chat, error) {
	for _, c := range r.chats {
		if c.FolderID == folderID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeChatRepo) RecentForUser(userID string, limit int) ([]*model.Chat, error) {
	return nil, nil
}

func (r *fakeChatRepo) CreateMessage(msg *model.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeChatRepo) Messages(chatID string) ([]*model.Message, error) {
	var out []*model.Message
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) LastMessages(chatID string, n int) ([]*model.Message, error) {
	all, _ := r.Messages(chatID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (r *fakeChatRepo) Touch(chatID string) error { r.touched++; return nil }

func (r *fakeChatRepo) DeleteWithMessages(chatID string) error {
	r.deleted = append(r.deleted, chatID)
	delete(r.chats, chatID)
	return nil
}

type fakeFolderRepo struct {
	folders       map[string]*model.Folder
	statusUpdates []string
	resetIDs      []string
}

func newFakeFolderRepo() *fakeFolderRepo {
	return &fakeFolderRepo{folders: map[string]*model.Folder{}}
}

func (r *fakeFolderRepo) Create(folder *model.Folder) error {
	r.folders[folder.ID] = folder
	return nil
}

func (r *fakeFolderRepo) FindByIDForUser(id, userID string) (*model.Folder, error) {
	folder, ok := r.folders[id]
	if !ok || folder.UserID != userID {
		return nil, nil
	}
	return folder, nil
}

func (r *fakeFolderRepo) FindByDriveIDForUser(driveID, userID string) (*model.Folder, error) {
	for _, f := range r.folders {
		if f.DriveID == driveID && f.UserID == userID {
			return f, nil
		}
	}
	return nil, nil
}

func (r *fakeFolderRepo) UpdateStatus(id, status string, lastIndexed *time.Time) error {
	r.statusUpdates = append(r.statusUpdates, status)
	if folder, ok := r.folders[id]; ok {
		folder.IndexStatus = status
		if lastIndexed != nil {
			folder.LastIndexed = lastIndexed
		}
	}
	return nil
}

func (r *fakeFolderRepo) ResetToPending(id string) error {
	r.resetIDs = append(r.resetIDs, id)
	if folder, ok := r.folders[id]; ok {
		folder.IndexStatus = model.IndexStatusPending
		folder.LastIndexed = nil
	}
	return nil
}

type fakeFileRepo struct {
	files           map[string]*model.File
	indexed         map[string]bool
	unmarkedFolders []string
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: map[string]*model.File{}, indexed: map[string]bool{}}
}

func (r *fakeFileRepo) Upsert(file *model.File) error { r.files[file.ID] = file; return nil }

func (r *fakeFileRepo) FindByFolder(folderID string) ([]*model.File, error) {
	var out []*model.File
	for _, f := range r.files {
		if f.FolderID == folderID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) FindByIDForUser(id, userID string) (*model.File, error) {
	return r.files[id], nil
}

func (r *fakeFileRepo) SetIndexed(id string, indexed bool) error {
	r.indexed[id] = indexed
	if f, ok := r.files[id]; ok {
		f.Indexed = indexed
	}
	return nil
}

func (r *fakeFileRepo) UnmarkFolder(folderID string) error {
	r.unmarkedFolders = append(r.unmarkedFolders, folderID)
	for _, f := range r.files {
		if f.FolderID == folderID {
			f.Indexed = false
		}
	}
	return nil
}

type fakeChunkRepo struct {
	replaced map[string]int // fileID -> chunk count
}

func newFakeChunkRepo() *fakeChunkRepo { return &fakeChunkRepo{replaced: map[string]int{}} }

func (r *fakeChunkRepo) BatchCreate(chunks []*model.FileChunk) error { return nil }
func (r *fakeChunkRepo) DeleteByFileID(fileID string) error          { return nil }
func (r *fakeChunkRepo) ReplaceForFile(fileID string, chunks []*model.FileChunk) error {
	r.replaced[fileID] = len(chunks)
	return nil
}
func (r *fakeChunkRepo) CountByFile(fileID string) (int64, error) {
	return int64(r.replaced[fileID]), nil
}

type fakeIdentityRepo struct {
	identities map[string]*model.AssistantIdentity
	ensured    int
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{identities: map[string]*model.AssistantIdentity{}}
}

func (r *fakeIdentityRepo) Ensure(userID, assistantName string) (*model.AssistantIdentity, error) {
	r.ensured++
	if existing, ok := r.identities[userID]; ok {
		return existing, nil
	}
	identity := &model.AssistantIdentity{UserID: userID, AssistantName: assistantName}
	r.identities[userID] = identity
	return identity, nil
}

func (r *fakeIdentityRepo) FindByUser(userID string) (*model.AssistantIdentity, error) {
	return r.identities[userID], nil
}

func (r *fakeIdentityRepo) DeleteByUser(userID string) error {
	delete(r.identities, userID)
	return nil
}

type fakeVectorService struct {
	searchResults  []model.SearchResult
	searchErr      error
	searchCalls    int
	lastSearchOpts SearchOptions
	indexErr       error
	indexedChunks  map[string]int // fileID -> chunk count
	deleteErr      error
	deletedFolders []string
}

func newFakeVectorService() *fakeVectorService {
	return &fakeVectorService{indexedChunks: map[string]int{}}
}

func (s *fakeVectorService) IndexChunks(ctx context.Context, meta ChunkFileMeta, chunks []chunker.TextChunk) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	s.indexedChunks[meta.FileID] = len(chunks)
	return nil
}

func (s *fakeVectorService) SearchSimilar(ctx context.Context, query, userID string, opts SearchOptions) ([]model.SearchResult, error) {
	s.searchCalls++
	s.lastSearchOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchResults, nil
}

func (s *fakeVectorService) DeleteFileVectors(ctx context.Context, userID, fileID string) error {
	return s.deleteErr
}

func (s *fakeVectorService) DeleteFolderVectors(ctx context.Context, userID, folderID string) error {
	s.deletedFolders = append(s.deletedFolders, folderID)
	return s.deleteErr
}

func (s *fakeVectorService) DeleteUserVectors(ctx context.Context, userID string) error {
	return s.deleteErr
}

type fakeLocker struct {
	held map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) Acquire(ctx context.Context, folderID string) (func(), error) {
	if l.held[folderID] {
		return nil, ErrIndexInProgress
	}
	l.held[folderID] = true
	return func() { l.held[folderID] = false }, nil
}

type fakeAssistantService struct {
	chatResp      *assistant.ChatResponse
	chatErr       error
	chatCalls     int
	lastHistory   []model.ChatMessage
	batchResults  []BatchUploadResult
	batchErr      error
	deletedCount  int
	deleteErr     error
	deleteCalls   int
	ensureErr     error
	uploadedNames []string
}

func (s *fakeAssistantService) CreateOrGetAssistant(ctx context.Context, userID string) (*EnsureResult, error) {
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	return &EnsureResult{AssistantName: "docs-assistant-" + userID, Existed: true}, nil
}

func (s *fakeAssistantService) UploadFileContent(ctx context.Context, userID, folderID, fileName, content string) error {
	s.uploadedNames = append(s.uploadedNames, fileName)
	return nil
}

func (s *fakeAssistantService) UploadBatchedContent(ctx context.Context, userID, folderID string, files []assistant.FileContent) ([]BatchUploadResult, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	if s.batchResults != nil {
		return s.batchResults, nil
	}
	// 默认：全部文件合成一个成功批次
	result := BatchUploadResult{BatchName: fmt.Sprintf("folder_%s_batch_1.txt", folderID), Status: "success"}
	for _, f := range files {
		result.Files = append(result.Files, f.FileName)
		result.FileIDs = append(result.FileIDs, f.FileID)
	}
	return []BatchUploadResult{result}, nil
}

func (s *fakeAssistantService) DeleteFilesForFolder(ctx context.Context, userID, folderID string) (int, error) {
	s.deleteCalls++
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.deletedCount, nil
}

func (s *fakeAssistantService) ChatWithAssistant(ctx context.Context, userID, message string, history []model.ChatMessage) (*assistant.ChatResponse, error) {
	s.chatCalls++
	s.lastHistory = history
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return s.chatResp, nil
}

type fakeLLM struct {
	response   string
	err        error
	calls      int
	lastPrompt string
}

func (c *fakeLLM) ChatCompletion(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func (c *fakeLLM) Complete(ctx context.Context, systemPrompt, userMessage string, gen *llm.GenerationParams) (string, error) {
	c.calls++
	c.lastPrompt = systemPrompt
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

type fakeExtractService struct {
	contents map[string]string // fileID -> content
	errs     map[string]error
}

func newFakeExtractService() *fakeExtractService {
	return &fakeExtractService{contents: map[string]string{}, errs: map[string]error{}}
}

func (s *fakeExtractService) ExtractText(ctx context.Context, user *model.User, file *model.File) (string, error) {
	if err := s.errs[file.ID]; err != nil {
		return "", err
	}
	return s.contents[file.ID], nil
}

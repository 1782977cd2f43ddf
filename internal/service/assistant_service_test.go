package service

import (
	"context"
	"os"
	"testing"

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/assistant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistantClient struct {
	assistants map[string]bool
	created    []string
	uploads    []fakeUpload
	uploadErr  map[string]error // batch name -> error
	files      []assistant.FileInfo
	deletedIDs []string
	deleteErr  map[string]error
	chatResp   *assistant.ChatResponse
	lastChat   []assistant.Message
}

type fakeUpload struct {
	assistantName string
	fileName      string
	size          int
	metadata      map[string]string
}

func newFakeAssistantClient() *fakeAssistantClient {
	return &fakeAssistantClient{
		assistants: map[string]bool{},
		uploadErr:  map[string]error{},
		deleteErr:  map[string]error{},
	}
}

func (c *fakeAssistantClient) CreateAssistant(ctx context.Context, name, instructions string) error {
	c.assistants[name] = true
	c.created = append(c.created, name)
	return nil
}

func (c *fakeAssistantClient) DescribeAssistant(ctx context.Context, name string) (*assistant.Info, error) {
	if !c.assistants[name] {
		return nil, &assistant.APIError{StatusCode: 404, Code: "NOT_FOUND"}
	}
	return &assistant.Info{Name: name, Status: "Ready"}, nil
}

func (c *fakeAssistantClient) Chat(ctx context.Context, name string, messages []assistant.Message) (*assistant.ChatResponse, error) {
	c.lastChat = messages
	return c.chatResp, nil
}

func (c *fakeAssistantClient) UploadFile(ctx context.Context, name, filePath string, metadata map[string]string) (*assistant.FileInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	uploadName := metadata["batchFileName"]
	if uploadName == "" {
		uploadName = metadata["fileName"]
	}
	if err := c.uploadErr[uploadName]; err != nil {
		return nil, err
	}
	c.uploads = append(c.uploads, fakeUpload{assistantName: name, fileName: uploadName, size: len(data), metadata: metadata})
	return &assistant.FileInfo{ID: uploadName, Name: uploadName, Metadata: metadata}, nil
}

func (c *fakeAssistantClient) ListFiles(ctx context.Context, name string) ([]assistant.FileInfo, error) {
	return c.files, nil
}

func (c *fakeAssistantClient) DeleteFile(ctx context.Context, name, fileID string) error {
	if err := c.deleteErr[fileID]; err != nil {
		return err
	}
	c.deletedIDs = append(c.deletedIDs, fileID)
	return nil
}

func newAssistantFixture() (*fakeAssistantClient, *fakeIdentityRepo, AssistantService) {
	client := newFakeAssistantClient()
	repo := newFakeIdentityRepo()
	svc := NewAssistantService(client, repo, config.AssistantConfig{ReadyWaitSeconds: 0}, 100)
	return client, repo, svc
}

func TestCreateOrGetAssistantIdempotent(t *testing.T) {
	client, repo, svc := newAssistantFixture()

	first, err := svc.CreateOrGetAssistant(context.Background(), "user1")
	require.NoError(t, err)
	assert.False(t, first.Existed)
	assert.Len(t, client.created, 1)

	second, err := svc.CreateOrGetAssistant(context.Background(), "user1")
	require.NoError(t, err)
	assert.True(t, second.Existed)
	assert.Equal(t, first.AssistantName, second.AssistantName)
	// 重复调用不会创建第二个远端助手
	assert.Len(t, client.created, 1)
	assert.Len(t, repo.identities, 1)
}

func TestAssistantNameDeterministic(t *testing.T) {
	assert.Equal(t, assistantNameFor("user1"), assistantNameFor("user1"))
	assert.NotEqual(t, assistantNameFor("user1"), assistantNameFor("user2"))
	// 非法字符被替换
	assert.Equal(t, "docs-assistant-a-b-c", assistantNameFor("A/B C"))
}

func TestUploadBatchedContentPartialFailure(t *testing.T) {
	client, _, svc := newAssistantFixture()
	client.uploadErr["folder_folder1_batch_2.txt"] = &assistant.APIError{StatusCode: 500, Message: "storage error"}

	// 每块约 45 字节，上限 100：两个一批，共三批
	var files []assistant.FileContent
	for _, n := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		files = append(files, assistant.FileContent{FileID: n, FileName: n, Content: "0123456789012345678" + "9"})
	}

	results, err := svc.UploadBatchedContent(context.Background(), "user1", "folder1", files)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "error", results[1].Status)
	assert.NotEmpty(t, results[1].Error)
	// 单批失败不阻塞后续批次
	assert.Equal(t, "success", results[2].Status)

	// 上传内容与批次大小一致，临时文件已写盘
	require.Len(t, client.uploads, 2)
	for _, up := range client.uploads {
		assert.Greater(t, up.size, 0)
		assert.Equal(t, "user1", up.metadata["userId"])
		assert.Equal(t, "folder1", up.metadata["folderId"])
		assert.NotEmpty(t, up.metadata["includedFiles"])
		assert.NotEmpty(t, up.metadata["uploadedAt"])
	}
}

func TestUploadFileContentWritesTempFile(t *testing.T) {
	client, _, svc := newAssistantFixture()

	err := svc.UploadFileContent(context.Background(), "user1", "folder1", "report.pdf", "extracted text")
	require.NoError(t, err)

	require.Len(t, client.uploads, 1)
	up := client.uploads[0]
	assert.Equal(t, "docs-assistant-user1", up.assistantName)
	assert.Equal(t, "report.pdf", up.fileName)
	assert.Equal(t, len("extracted text"), up.size)
	assert.Equal(t, "folder1", up.metadata["folderId"])
	assert.NotEmpty(t, up.metadata["uploadedAt"])
}

func TestDeleteFilesForFolderFiltersAndContinues(t *testing.T) {
	client, repo, svc := newAssistantFixture()
	repo.Ensure("user1", "docs-assistant-user1")
	client.assistants["docs-assistant-user1"] = true
	client.files = []assistant.FileInfo{
		{ID: "keep", Metadata: map[string]string{"folderId": "other"}},
		{ID: "del1", Metadata: map[string]string{"folderId": "folder1"}},
		{ID: "del2", Metadata: map[string]string{"folderId": "folder1"}},
		{ID: "del3", Metadata: map[string]string{"folderId": "folder1"}},
	}
	client.deleteErr["del2"] = &assistant.APIError{StatusCode: 500, Message: "flaky"}

	count, err := svc.DeleteFilesForFolder(context.Background(), "user1", "folder1")
	require.NoError(t, err)

	// 单个删除失败继续删除其余文件，只统计成功数
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"del1", "del3"}, client.deletedIDs)
}

func TestDeleteFilesForFolderWithoutIdentity(t *testing.T) {
	_, _, svc := newAssistantFixture()
	count, err := svc.DeleteFilesForFolder(context.Background(), "user1", "folder1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChatWithAssistantForwardsHistory(t *testing.T) {
	client, _, svc := newAssistantFixture()
	client.chatResp = &assistant.ChatResponse{Message: assistant.Message{Role: "assistant", Content: "answer"}}

	history := []model.ChatMessage{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
	}
	resp, err := svc.ChatWithAssistant(context.Background(), "user1", "q2", history)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Message.Content)

	require.Len(t, client.lastChat, 3)
	assert.Equal(t, "q1", client.lastChat[0].Content)
	assert.Equal(t, "a1", client.lastChat[1].Content)
	assert.Equal(t, "q2", client.lastChat[2].Content)
	assert.Equal(t, "user", client.lastChat[2].Role)
}

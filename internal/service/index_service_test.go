package service

import (
	"context"
	"errors"
	"testing"

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexFixture struct {
	folderRepo   *fakeFolderRepo
	fileRepo     *fakeFileRepo
	chunkRepo    *fakeChunkRepo
	extractSvc   *fakeExtractService
	vectorSvc    *fakeVectorService
	assistantSvc *fakeAssistantService
	locker       *fakeLocker
	svc          IndexService
	user         *model.User
}

func newIndexFixture() *indexFixture {
	f := &indexFixture{
		folderRepo:   newFakeFolderRepo(),
		fileRepo:     newFakeFileRepo(),
		chunkRepo:    newFakeChunkRepo(),
		extractSvc:   newFakeExtractService(),
		vectorSvc:    newFakeVectorService(),
		assistantSvc: &fakeAssistantService{},
		locker:       newFakeLocker(),
		user:         &model.User{ID: "user1"},
	}
	f.folderRepo.Create(&model.Folder{ID: "folder1", UserID: "user1", Name: "Docs", IndexStatus: model.IndexStatusPending})
	cfg := config.IndexingConfig{ChunkSize: 100, ChunkOverlap: 20, RatePerSecond: 1000, RateBurst: 100}
	f.svc = NewIndexService(f.folderRepo, f.fileRepo, f.chunkRepo, f.extractSvc, f.vectorSvc, f.assistantSvc, f.locker, cfg)
	return f
}

func (f *indexFixture) addFile(id, name string) {
	f.fileRepo.Upsert(&model.File{ID: id, FolderID: "folder1", Name: name, MimeType: "text/plain"})
}

func TestIndexFolderVectorsPartial(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "good1.txt")
	f.addFile("f2", "bad.txt")
	f.addFile("f3", "good2.txt")
	f.extractSvc.contents["f1"] = "some document content"
	f.extractSvc.errs["f2"] = errors.New("extract failed")
	f.extractSvc.contents["f3"] = "another document"

	result, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	assert.Equal(t, model.IndexStatusPartial, result.Status)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Files, 3)

	// 单文件失败不中断其余文件
	assert.True(t, f.fileRepo.indexed["f1"])
	assert.True(t, f.fileRepo.indexed["f3"])
	assert.False(t, f.fileRepo.indexed["f2"])

	// 状态机: processing -> partial
	assert.Equal(t, []string{model.IndexStatusProcessing, model.IndexStatusPartial}, f.folderRepo.statusUpdates)
	assert.NotNil(t, f.folderRepo.folders["folder1"].LastIndexed)
}

func TestIndexFolderVectorsAllFail(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "a.txt")
	f.addFile("f2", "b.txt")
	f.extractSvc.errs["f1"] = errors.New("boom")
	f.extractSvc.errs["f2"] = errors.New("boom")

	result, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	assert.Equal(t, model.IndexStatusFailed, result.Status)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)
}

func TestIndexFolderVectorsAllSucceed(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "a.txt")
	f.extractSvc.contents["f1"] = "content"

	result, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	assert.Equal(t, model.IndexStatusCompleted, result.Status)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
}

func TestIndexFolderVectorsSkipsEmptyContent(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "empty.txt")
	f.extractSvc.contents["f1"] = "   \n "

	result, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, FileSkipped, result.Files[0].Status)
	assert.Equal(t, "No content extracted", result.Files[0].Reason)
	// 跳过不算失败
	assert.Equal(t, model.IndexStatusCompleted, result.Status)
	assert.False(t, f.fileRepo.indexed["f1"])
}

func TestIndexFolderVectorsSkipsAlreadyIndexed(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "done.txt")
	f.fileRepo.files["f1"].Indexed = true

	result, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	require.NoError(t, err)
	assert.Empty(t, result.Files)
}

func TestIndexFolderLockContention(t *testing.T) {
	f := newIndexFixture()
	f.locker.held["folder1"] = true

	_, err := f.svc.IndexFolderVectors(context.Background(), f.user, "folder1")
	assert.ErrorIs(t, err, ErrIndexInProgress)
}

func TestIndexFolderUnknownFolder(t *testing.T) {
	f := newIndexFixture()
	_, err := f.svc.IndexFolderVectors(context.Background(), f.user, "missing")
	assert.Error(t, err)

	// 归属校验
	_, err = f.svc.IndexFolderVectors(context.Background(), &model.User{ID: "intruder"}, "folder1")
	assert.Error(t, err)
}

func TestIndexFolderAssistantMapsBatchResults(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "a.txt")
	f.addFile("f2", "b.txt")
	f.extractSvc.contents["f1"] = "content a"
	f.extractSvc.contents["f2"] = "content b"
	f.assistantSvc.batchResults = []BatchUploadResult{
		{BatchName: "folder_folder1_batch_1.txt", Files: []string{"a.txt"}, FileIDs: []string{"f1"}, Status: "success"},
		{BatchName: "folder_folder1_batch_2.txt", Files: []string{"b.txt"}, FileIDs: []string{"f2"}, Status: "error", Error: "upload failed"},
	}

	result, err := f.svc.IndexFolderAssistant(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	// 批次结果映射回来源文件
	assert.Equal(t, model.IndexStatusPartial, result.Status)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.True(t, f.fileRepo.indexed["f1"])
	assert.False(t, f.fileRepo.indexed["f2"])

	// 重建索引前先清理旧的助手文件
	assert.Equal(t, 1, f.assistantSvc.deleteCalls)
}

func TestIndexFolderAssistantUploadFailureMarksFolderFailed(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "a.txt")
	f.extractSvc.contents["f1"] = "content"
	f.assistantSvc.batchErr = errors.New("upload service down")

	_, err := f.svc.IndexFolderAssistant(context.Background(), f.user, "folder1")
	require.Error(t, err)

	// 整体性失败不能把文件夹卡在 processing
	assert.Equal(t, []string{model.IndexStatusProcessing, model.IndexStatusFailed}, f.folderRepo.statusUpdates)
	assert.Equal(t, model.IndexStatusFailed, f.folderRepo.folders["folder1"].IndexStatus)
}

func TestIndexFolderAssistantEnsureFailureMarksFolderFailed(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "a.txt")
	f.assistantSvc.ensureErr = errors.New("assistant unavailable")

	_, err := f.svc.IndexFolderAssistant(context.Background(), f.user, "folder1")
	require.Error(t, err)
	assert.Equal(t, []string{model.IndexStatusProcessing, model.IndexStatusFailed}, f.folderRepo.statusUpdates)
}

func TestIndexFolderAssistantCollectsExtractionErrors(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "ok.txt")
	f.addFile("f2", "broken.txt")
	f.addFile("f3", "blank.txt")
	f.extractSvc.contents["f1"] = "content"
	f.extractSvc.errs["f2"] = errors.New("download failed")
	f.extractSvc.contents["f3"] = ""

	result, err := f.svc.IndexFolderAssistant(context.Background(), f.user, "folder1")
	require.NoError(t, err)

	// 提取失败记为错误，空内容记为跳过（计入成功），上传成功的计入成功
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, model.IndexStatusPartial, result.Status)
}

func TestIndexSingleFile(t *testing.T) {
	f := newIndexFixture()
	f.addFile("f1", "single.txt")
	f.extractSvc.contents["f1"] = "a long enough document body for chunking"

	outcome, err := f.svc.IndexFile(context.Background(), f.user, "f1")
	require.NoError(t, err)

	assert.Equal(t, FileIndexed, outcome.Status)
	assert.Greater(t, outcome.Chunks, 0)
	assert.True(t, f.fileRepo.indexed["f1"])
	assert.Equal(t, outcome.Chunks, f.chunkRepo.replaced["f1"])
	assert.Equal(t, outcome.Chunks, f.vectorSvc.indexedChunks["f1"])
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talktofolder-go/internal/chunker"
	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/internal/repository"
	"talktofolder-go/pkg/assistant"
	"talktofolder-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// ErrIndexInProgress 表示该文件夹已有一次索引在执行中。
var ErrIndexInProgress = errors.New("folder indexing already in progress")

// FolderLocker 提供文件夹级索引互斥锁。
// Acquire 成功时返回释放函数，锁被占用时返回 ErrIndexInProgress。
type FolderLocker interface {
	Acquire(ctx context.Context, folderID string) (func(), error)
}

type redisFolderLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisFolderLocker 创建基于 redis SetNX 的文件夹锁。
func NewRedisFolderLocker(rdb *redis.Client, ttlSeconds int) FolderLocker {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisFolderLocker{rdb: rdb, ttl: ttl}
}

func (l *redisFolderLocker) Acquire(ctx context.Context, folderID string) (func(), error) {
	key := "index:folder:" + folderID
	ok, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !ok {
		return nil, ErrIndexInProgress
	}
	return func() {
		if err := l.rdb.Del(context.Background(), key).Err(); err != nil {
			log.Warnf("[IndexService] 释放索引锁 %s 失败: %v", key, err)
		}
	}, nil
}

// 单文件处理结果的状态值。
const (
	FileIndexed = "indexed"
	FileSkipped = "skipped"
	FileErrored = "error"
)

// skipReasonNoContent 是空文件被跳过时的固定原因。
const skipReasonNoContent = "No content extracted"

// FileIndexOutcome 记录一个文件的索引结果。
type FileIndexOutcome struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
}

// FolderIndexResult 汇总一次文件夹索引。
type FolderIndexResult struct {
	FolderID     string             `json:"folderId"`
	Status       string             `json:"status"`
	SuccessCount int                `json:"successCount"`
	ErrorCount   int                `json:"errorCount"`
	Files        []FileIndexOutcome `json:"files"`
}

// IndexService 是文件夹索引协调器，驱动两种可互换的索引策略
// 并共享同一个文件夹状态机。
type IndexService interface {
	// IndexFolderVectors 逐文件切分、向量化并写入向量库。
	// 单文件失败只记录，不中断其余文件。
	IndexFolderVectors(ctx context.Context, user *model.User, folderID string) (*FolderIndexResult, error)
	// IndexFolderAssistant 清理旧的助手文件后，把全部文件内容打包上传到托管助手。
	IndexFolderAssistant(ctx context.Context, user *model.User, folderID string) (*FolderIndexResult, error)
	// IndexFile 对单个文件执行向量索引。
	IndexFile(ctx context.Context, user *model.User, fileID string) (*FileIndexOutcome, error)
}

type indexService struct {
	folderRepo   repository.FolderRepository
	fileRepo     repository.FileRepository
	chunkRepo    repository.FileChunkRepository
	extractSvc   ExtractService
	vectorSvc    VectorService
	assistantSvc AssistantService
	locker       FolderLocker
	limiter      *rate.Limiter
	cfg          config.IndexingConfig
}

// NewIndexService 创建一个新的 IndexService 实例。
func NewIndexService(
	folderRepo repository.FolderRepository,
	fileRepo repository.FileRepository,
	chunkRepo repository.FileChunkRepository,
	extractSvc ExtractService,
	vectorSvc VectorService,
	assistantSvc AssistantService,
	locker FolderLocker,
	cfg config.IndexingConfig,
) IndexService {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &indexService{
		folderRepo:   folderRepo,
		fileRepo:     fileRepo,
		chunkRepo:    chunkRepo,
		extractSvc:   extractSvc,
		vectorSvc:    vectorSvc,
		assistantSvc: assistantSvc,
		locker:       locker,
		limiter:      rate.NewLimiter(rate.Limit(perSecond), burst),
		cfg:          cfg,
	}
}

func (s *indexService) loadFolder(folderID, userID string) (*model.Folder, error) {
	folder, err := s.folderRepo.FindByIDForUser(folderID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %s not found", folderID)
	}
	return folder, nil
}

// beginIndexing 把文件夹置为 processing 并打上索引时间戳。
func (s *indexService) beginIndexing(folder *model.Folder) error {
	now := time.Now()
	if err := s.folderRepo.UpdateStatus(folder.ID, model.IndexStatusProcessing, &now); err != nil {
		return fmt.Errorf("failed to mark folder processing: %w", err)
	}
	return nil
}

// finishIndexing 根据成功/失败计数持久化最终状态。
func (s *indexService) finishIndexing(folderID string, successCount, errorCount int) string {
	status := model.FinalIndexStatus(successCount, errorCount)
	now := time.Now()
	if err := s.folderRepo.UpdateStatus(folderID, status, &now); err != nil {
		log.Errorf("[IndexService] 更新文件夹 %s 最终状态失败: %v", folderID, err)
	}
	return status
}

// failIndexing 在整体性失败时把文件夹落到 failed，状态机不允许停留在 processing。
func (s *indexService) failIndexing(folderID string) {
	now := time.Now()
	if err := s.folderRepo.UpdateStatus(folderID, model.IndexStatusFailed, &now); err != nil {
		log.Errorf("[IndexService] 标记文件夹 %s 为 failed 失败: %v", folderID, err)
	}
}

func (s *indexService) chunkOptions() chunker.Options {
	opts := chunker.DefaultOptions()
	if s.cfg.ChunkSize > 0 {
		opts.ChunkSize = s.cfg.ChunkSize
	}
	if s.cfg.ChunkOverlap > 0 {
		opts.ChunkOverlap = s.cfg.ChunkOverlap
	}
	return opts
}

// indexFileVectors 对单个文件执行提取、切分、向量化、落库的完整流程。
func (s *indexService) indexFileVectors(ctx context.Context, user *model.User, folder *model.Folder, file *model.File) FileIndexOutcome {
	outcome := FileIndexOutcome{FileID: file.ID, FileName: file.Name}

	content, err := s.extractSvc.ExtractText(ctx, user, file)
	if err != nil {
		outcome.Status = FileErrored
		outcome.Reason = err.Error()
		return outcome
	}
	if strings.TrimSpace(content) == "" {
		outcome.Status = FileSkipped
		outcome.Reason = skipReasonNoContent
		return outcome
	}

	chunks := chunker.Chunk(content, s.chunkOptions())
	meta := ChunkFileMeta{
		FileID:     file.ID,
		FileName:   file.Name,
		FolderID:   folder.ID,
		FolderName: folder.Name,
		UserID:     user.ID,
		MimeType:   file.MimeType,
	}
	if err := s.vectorSvc.IndexChunks(ctx, meta, chunks); err != nil {
		outcome.Status = FileErrored
		outcome.Reason = err.Error()
		return outcome
	}

	// 分块布局落库，重复索引时整体重建
	records := make([]*model.FileChunk, len(chunks))
	for i, c := range chunks {
		records[i] = &model.FileChunk{
			FileID:     file.ID,
			ChunkIndex: c.ChunkIndex,
			StartIndex: c.StartIndex,
			EndIndex:   c.EndIndex,
		}
	}
	if err := s.chunkRepo.ReplaceForFile(file.ID, records); err != nil {
		outcome.Status = FileErrored
		outcome.Reason = err.Error()
		return outcome
	}

	if err := s.fileRepo.SetIndexed(file.ID, true); err != nil {
		outcome.Status = FileErrored
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.Status = FileIndexed
	outcome.Chunks = len(chunks)
	return outcome
}

func (s *indexService) IndexFolderVectors(ctx context.Context, user *model.User, folderID string) (*FolderIndexResult, error) {
	folder, err := s.loadFolder(folderID, user.ID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.beginIndexing(folder); err != nil {
		return nil, err
	}

	files, err := s.fileRepo.FindByFolder(folder.ID)
	if err != nil {
		s.failIndexing(folder.ID)
		return nil, fmt.Errorf("failed to list folder files: %w", err)
	}

	result := &FolderIndexResult{FolderID: folder.ID}
	for _, file := range files {
		if file.Indexed {
			continue
		}
		// 控制对上游提取/向量化服务的节奏
		if err := s.limiter.Wait(ctx); err != nil {
			s.failIndexing(folder.ID)
			return nil, err
		}

		outcome := s.indexFileVectors(ctx, user, folder, file)
		result.Files = append(result.Files, outcome)
		if outcome.Status == FileErrored {
			result.ErrorCount++
			log.Errorf("[IndexService] 文件 %s 索引失败: %s", file.Name, outcome.Reason)
		} else {
			result.SuccessCount++
		}
	}

	result.Status = s.finishIndexing(folder.ID, result.SuccessCount, result.ErrorCount)
	log.Infof("[IndexService] 文件夹 %s 向量索引完成: %s (%d 成功 / %d 失败)",
		folder.ID, result.Status, result.SuccessCount, result.ErrorCount)
	return result, nil
}

func (s *indexService) IndexFolderAssistant(ctx context.Context, user *model.User, folderID string) (*FolderIndexResult, error) {
	folder, err := s.loadFolder(folderID, user.ID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.beginIndexing(folder); err != nil {
		return nil, err
	}

	// 先清掉该文件夹已上传的助手文件，保证重复索引不会累积重复内容
	if _, err := s.assistantSvc.CreateOrGetAssistant(ctx, user.ID); err != nil {
		s.failIndexing(folder.ID)
		return nil, fmt.Errorf("failed to ensure assistant: %w", err)
	}
	if _, err := s.assistantSvc.DeleteFilesForFolder(ctx, user.ID, folder.ID); err != nil {
		log.Warnf("[IndexService] 清理文件夹 %s 的旧助手文件失败: %v", folder.ID, err)
	}

	files, err := s.fileRepo.FindByFolder(folder.ID)
	if err != nil {
		s.failIndexing(folder.ID)
		return nil, fmt.Errorf("failed to list folder files: %w", err)
	}

	result := &FolderIndexResult{FolderID: folder.ID}
	var contents []assistant.FileContent
	for _, file := range files {
		if err := s.limiter.Wait(ctx); err != nil {
			s.failIndexing(folder.ID)
			return nil, err
		}
		content, err := s.extractSvc.ExtractText(ctx, user, file)
		if err != nil {
			result.Files = append(result.Files, FileIndexOutcome{
				FileID: file.ID, FileName: file.Name, Status: FileErrored, Reason: err.Error(),
			})
			result.ErrorCount++
			continue
		}
		if strings.TrimSpace(content) == "" {
			result.Files = append(result.Files, FileIndexOutcome{
				FileID: file.ID, FileName: file.Name, Status: FileSkipped, Reason: skipReasonNoContent,
			})
			result.SuccessCount++
			continue
		}
		contents = append(contents, assistant.FileContent{
			FileID:   file.ID,
			FileName: file.Name,
			Content:  content,
		})
	}

	batchResults, err := s.assistantSvc.UploadBatchedContent(ctx, user.ID, folder.ID, contents)
	if err != nil {
		s.failIndexing(folder.ID)
		return nil, fmt.Errorf("failed to upload batched content: %w", err)
	}

	// 把批次级结果映射回来源文件
	for _, br := range batchResults {
		for i, fileID := range br.FileIDs {
			outcome := FileIndexOutcome{FileID: fileID, Status: FileIndexed}
			if i < len(br.Files) {
				outcome.FileName = br.Files[i]
			}
			if br.Status == "error" {
				outcome.Status = FileErrored
				outcome.Reason = br.Error
				result.ErrorCount++
			} else {
				result.SuccessCount++
				if err := s.fileRepo.SetIndexed(fileID, true); err != nil {
					log.Warnf("[IndexService] 标记文件 %s 已索引失败: %v", fileID, err)
				}
			}
			result.Files = append(result.Files, outcome)
		}
	}

	result.Status = s.finishIndexing(folder.ID, result.SuccessCount, result.ErrorCount)
	log.Infof("[IndexService] 文件夹 %s 助手索引完成: %s (%d 成功 / %d 失败, %d 批次)",
		folder.ID, result.Status, result.SuccessCount, result.ErrorCount, len(batchResults))
	return result, nil
}

func (s *indexService) IndexFile(ctx context.Context, user *model.User, fileID string) (*FileIndexOutcome, error) {
	file, err := s.fileRepo.FindByIDForUser(fileID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	folder, err := s.loadFolder(file.FolderID, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	outcome := s.indexFileVectors(ctx, user, folder, file)
	return &outcome, nil
}

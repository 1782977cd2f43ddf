package service

import (
	"context"
	"fmt"

	"talktofolder-go/internal/chunker"
	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/embedding"
	"talktofolder-go/pkg/es"
	"talktofolder-go/pkg/log"
)

// 相似搜索的默认参数。
const (
	DefaultSearchTopK     = 10
	DefaultSearchMinScore = 0.7
)

// ChunkFileMeta 是写入向量库时随分块携带的文件元数据。
type ChunkFileMeta struct {
	FileID     string
	FileName   string
	FolderID   string
	FolderName string
	UserID     string
	MimeType   string
}

// SearchOptions 控制相似搜索的过滤与截断。
type SearchOptions struct {
	FolderID string  // 可选，限定到单个文件夹
	TopK     int     // <=0 时取默认值
	MinScore float64 // <=0 时取默认值
}

// VectorService 封装了向量索引的写入、检索与删除。
// 所有操作都以 user_id 为命名空间隔离，跨用户互不可见。
type VectorService interface {
	// IndexChunks 批量向量化分块并写入向量库，空切片为 no-op。
	// 文档 ID 为 {fileId}-chunk-{chunkIndex}，重复索引同一文件覆盖而非叠加。
	IndexChunks(ctx context.Context, meta ChunkFileMeta, chunks []chunker.TextChunk) error
	// SearchSimilar 向量化查询文本并检索用户命名空间内的最近邻，
	// 过滤掉低于 MinScore 的结果，保持按分数降序。
	SearchSimilar(ctx context.Context, query, userID string, opts SearchOptions) ([]model.SearchResult, error)
	DeleteFileVectors(ctx context.Context, userID, fileID string) error
	DeleteFolderVectors(ctx context.Context, userID, folderID string) error
	DeleteUserVectors(ctx context.Context, userID string) error
}

type vectorService struct {
	embedder embedding.Client
	store    es.Store
}

// NewVectorService 创建一个新的 VectorService 实例。
func NewVectorService(embedder embedding.Client, store es.Store) VectorService {
	return &vectorService{embedder: embedder, store: store}
}

func (s *vectorService) IndexChunks(ctx context.Context, meta ChunkFileMeta, chunks []chunker.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks for file %s: %w", len(chunks), meta.FileID, err)
	}

	docs := make([]model.EsChunk, len(chunks))
	for i, c := range chunks {
		docs[i] = model.EsChunk{
			ChunkID:    fmt.Sprintf("%s-chunk-%d", meta.FileID, c.ChunkIndex),
			FileID:     meta.FileID,
			FileName:   meta.FileName,
			FolderID:   meta.FolderID,
			FolderName: meta.FolderName,
			UserID:     meta.UserID,
			MimeType:   meta.MimeType,
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.Content,
			StartIndex: c.StartIndex,
			EndIndex:   c.EndIndex,
			Vector:     vectors[i],
		}
	}

	if err := s.store.BulkUpsert(ctx, docs); err != nil {
		return fmt.Errorf("failed to upsert vectors for file %s: %w", meta.FileID, err)
	}
	log.Infof("[VectorService] 文件 %s 写入 %d 个向量分块", meta.FileID, len(docs))
	return nil
}

func (s *vectorService) SearchSimilar(ctx context.Context, query, userID string, opts SearchOptions) ([]model.SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = DefaultSearchMinScore
	}

	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	results, err := s.store.KnnSearch(ctx, vector, userID, opts.FolderID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	// 命中已按分数降序返回，这里只做阈值过滤
	filtered := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (s *vectorService) DeleteFileVectors(ctx context.Context, userID, fileID string) error {
	return s.store.DeleteByTerms(ctx, map[string]string{"user_id": userID, "file_id": fileID})
}

func (s *vectorService) DeleteFolderVectors(ctx context.Context, userID, folderID string) error {
	return s.store.DeleteByTerms(ctx, map[string]string{"user_id": userID, "folder_id": folderID})
}

func (s *vectorService) DeleteUserVectors(ctx context.Context, userID string) error {
	return s.store.DeleteByTerms(ctx, map[string]string{"user_id": userID})
}

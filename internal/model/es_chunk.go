package model

// EsChunk 定义了存储在 Elasticsearch 中的分块文档结构。
// 文档 ID 取 "{fileId}-chunk-{chunkIndex}"，重建索引时同 ID 覆盖写入。
// UserID 字段承担命名空间职责：所有查询与删除都必须带上它的 term 过滤。
type EsChunk struct {
	ChunkID    string    `json:"chunk_id"`
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	FolderID   string    `json:"folder_id"`
	FolderName string    `json:"folder_name"`
	UserID     string    `json:"user_id"`
	MimeType   string    `json:"mime_type"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text"`
	StartIndex int       `json:"start_index"`
	EndIndex   int       `json:"end_index"`
	Vector     []float32 `json:"vector,omitempty"`
}

// SearchResult 是向量检索返回给上层的单条结果。
type SearchResult struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Metadata EsChunk `json:"metadata"`
}

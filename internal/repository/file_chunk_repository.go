package repository

import (
	"talktofolder-go/internal/model"

	"gorm.io/gorm"
)

// FileChunkRepository 定义了对 file_chunks 表的数据操作接口。
// 该表只记录切分布局，向量本体存放在 Elasticsearch。
type FileChunkRepository interface {
	BatchCreate(chunks []*model.FileChunk) error
	DeleteByFileID(fileID string) error
	// ReplaceForFile 以事务方式重建单个文件的全部分块记录。
	ReplaceForFile(fileID string, chunks []*model.FileChunk) error
	CountByFile(fileID string) (int64, error)
}

type fileChunkRepository struct {
	db *gorm.DB
}

// NewFileChunkRepository 创建一个新的 FileChunkRepository 实例。
func NewFileChunkRepository(db *gorm.DB) FileChunkRepository {
	return &fileChunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *fileChunkRepository) BatchCreate(chunks []*model.FileChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

func (r *fileChunkRepository) DeleteByFileID(fileID string) error {
	return r.db.Where("file_id = ?", fileID).Delete(&model.FileChunk{}).Error
}

// ReplaceForFile 先删后插，保证重复索引不会累积旧分块。
func (r *fileChunkRepository) ReplaceForFile(fileID string, chunks []*model.FileChunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&model.FileChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
}

func (r *fileChunkRepository) CountByFile(fileID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.FileChunk{}).Where("file_id = ?", fileID).Count(&count).Error
	return count, err
}

package repository

import (
	"errors"

	"talktofolder-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileRepository 定义了对 files 表的数据操作接口。
type FileRepository interface {
	// Upsert 按 (folder_id, drive_id) 创建或更新文件元数据，保留已有的 indexed 标记。
	Upsert(file *model.File) error
	FindByFolder(folderID string) ([]*model.File, error)
	// FindByIDForUser 通过文件夹归属校验查找单个文件。
	FindByIDForUser(id, userID string) (*model.File, error)
	SetIndexed(id string, indexed bool) error
	// UnmarkFolder 把文件夹下全部文件重置为未索引。
	UnmarkFolder(folderID string) error
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Upsert(file *model.File) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_id"}, {Name: "drive_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "mime_type", "size", "updated_at"}),
	}).Create(file).Error
}

func (r *fileRepository) FindByFolder(folderID string) ([]*model.File, error) {
	var files []*model.File
	err := r.db.Where("folder_id = ?", folderID).Order("name asc").Find(&files).Error
	return files, err
}

// FindByIDForUser 关联 folders 表做归属校验，未找到返回 nil。
func (r *fileRepository) FindByIDForUser(id, userID string) (*model.File, error) {
	var file model.File
	err := r.db.Joins("JOIN folders ON folders.id = files.folder_id").
		Where("files.id = ? AND folders.user_id = ?", id, userID).
		First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) SetIndexed(id string, indexed bool) error {
	return r.db.Model(&model.File{}).Where("id = ?", id).Update("indexed", indexed).Error
}

func (r *fileRepository) UnmarkFolder(folderID string) error {
	return r.db.Model(&model.File{}).Where("folder_id = ?", folderID).Update("indexed", false).Error
}

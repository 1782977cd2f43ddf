package repository

import (
	"errors"
	"time"

	"talktofolder-go/internal/model"

	"gorm.io/gorm"
)

// FolderRepository 定义了对 folders 表的数据操作接口。
type FolderRepository interface {
	Create(folder *model.Folder) error
	FindByIDForUser(id, userID string) (*model.Folder, error)
	FindByDriveIDForUser(driveID, userID string) (*model.Folder, error)
	// UpdateStatus 更新索引状态；lastIndexed 为 nil 时不改动时间戳。
	UpdateStatus(id, status string, lastIndexed *time.Time) error
	// ResetToPending 把文件夹恢复到未索引状态并清空索引时间。
	ResetToPending(id string) error
}

type folderRepository struct {
	db *gorm.DB
}

// NewFolderRepository 创建一个新的 FolderRepository 实例。
func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) Create(folder *model.Folder) error {
	return r.db.Create(folder).Error
}

// FindByIDForUser 在归属校验下查找文件夹，未找到返回 nil。
func (r *folderRepository) FindByIDForUser(id, userID string) (*model.Folder, error) {
	var folder model.Folder
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// FindByDriveIDForUser 按 Drive 原始 ID 查找用户名下的文件夹。
func (r *folderRepository) FindByDriveIDForUser(driveID, userID string) (*model.Folder, error) {
	var folder model.Folder
	err := r.db.Where("drive_id = ? AND user_id = ?", driveID, userID).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *folderRepository) UpdateStatus(id, status string, lastIndexed *time.Time) error {
	updates := map[string]interface{}{"index_status": status}
	if lastIndexed != nil {
		updates["last_indexed"] = *lastIndexed
	}
	return r.db.Model(&model.Folder{}).Where("id = ?", id).Updates(updates).Error
}

func (r *folderRepository) ResetToPending(id string) error {
	return r.db.Model(&model.Folder{}).Where("id = ?", id).Updates(map[string]interface{}{
		"index_status": model.IndexStatusPending,
		"last_indexed": nil,
	}).Error
}

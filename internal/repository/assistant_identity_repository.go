package repository

import (
	"errors"

	"talktofolder-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssistantIdentityRepository 定义了用户与托管助手绑定关系的数据操作接口。
type AssistantIdentityRepository interface {
	// Ensure 为用户持久化助手名，并发时只有一条记录生效，
	// 返回最终落库的绑定记录。
	Ensure(userID, assistantName string) (*model.AssistantIdentity, error)
	FindByUser(userID string) (*model.AssistantIdentity, error)
	DeleteByUser(userID string) error
}

type assistantIdentityRepository struct {
	db *gorm.DB
}

// NewAssistantIdentityRepository 创建一个新的 AssistantIdentityRepository 实例。
func NewAssistantIdentityRepository(db *gorm.DB) AssistantIdentityRepository {
	return &assistantIdentityRepository{db: db}
}

// Ensure 条件插入（冲突时放弃）后回读，保证并发下各调用方拿到同一条记录。
func (r *assistantIdentityRepository) Ensure(userID, assistantName string) (*model.AssistantIdentity, error) {
	identity := &model.AssistantIdentity{
		UserID:        userID,
		AssistantName: assistantName,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(identity).Error
	if err != nil {
		return nil, err
	}

	var stored model.AssistantIdentity
	if err := r.db.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *assistantIdentityRepository) FindByUser(userID string) (*model.AssistantIdentity, error) {
	var identity model.AssistantIdentity
	err := r.db.Where("user_id = ?", userID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (r *assistantIdentityRepository) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&model.AssistantIdentity{}).Error
}

package repository

import (
	"errors"
	"time"

	"talktofolder-go/internal/model"

	"gorm.io/gorm"
)

// ChatRepository 定义了对 chats / messages 表的数据操作接口。
// 每个文件夹恰好对应一个会话，消息按创建时间排列。
type ChatRepository interface {
	Create(chat *model.Chat) error
	// FindByIDForUser 经由文件夹归属校验查找会话。
	FindByIDForUser(id, userID string) (*model.Chat, error)
	FindByFolder(folderID string) (*model.Chat, error)
	// RecentForUser 按最近活跃排序返回用户的会话列表。
	RecentForUser(userID string, limit int) ([]*model.Chat, error)
	CreateMessage(msg *model.Message) error
	// Messages 按时间升序返回会话全部消息。
	Messages(chatID string) ([]*model.Message, error)
	// LastMessages 返回会话最近 n 条消息，时间升序。
	LastMessages(chatID string, n int) ([]*model.Message, error)
	// Touch 刷新会话活跃时间，用于 recent 排序。
	Touch(chatID string) error
	// DeleteWithMessages 以事务方式删除会话与其全部消息。
	DeleteWithMessages(chatID string) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(chat *model.Chat) error {
	return r.db.Create(chat).Error
}

func (r *chatRepository) FindByIDForUser(id, userID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Joins("JOIN folders ON folders.id = chats.folder_id").
		Where("chats.id = ? AND folders.user_id = ?", id, userID).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) FindByFolder(folderID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Where("folder_id = ?", folderID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) RecentForUser(userID string, limit int) ([]*model.Chat, error) {
	var chats []*model.Chat
	err := r.db.Joins("JOIN folders ON folders.id = chats.folder_id").
		Where("folders.user_id = ?", userID).
		Order("chats.updated_at desc").
		Limit(limit).
		Find(&chats).Error
	return chats, err
}

func (r *chatRepository) CreateMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

func (r *chatRepository) Messages(chatID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("created_at asc, id asc").Find(&messages).Error
	return messages, err
}

// LastMessages 先取最近 n 条再反转为时间升序。
func (r *chatRepository) LastMessages(chatID string, n int) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("created_at desc, id desc").Limit(n).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatRepository) Touch(chatID string) error {
	return r.db.Model(&model.Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now()).Error
}

func (r *chatRepository) DeleteWithMessages(chatID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&model.Chat{}).Error
	})
}

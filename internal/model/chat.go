package model

import (
	"encoding/json"
	"time"
)

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat 对应于数据库中的 chats 表。一个文件夹恰好拥有一个会话。
type Chat struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FolderID  string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"folderId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chat) TableName() string {
	return "chats"
}

// Citation 是一条消息引用的来源分块。
type Citation struct {
	FileName   string  `json:"fileName"`
	FileID     string  `json:"fileId"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunkIndex"`
}

// Message 对应于数据库中的 messages 表。
// Citations 以 JSON 文本列存储，创建后不再变更。
type Message struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID    string    `gorm:"type:varchar(36);not null;index" json:"chatId"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Citations string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}

// CitationList 反序列化消息上的引用列表，空列返回 nil。
func (m *Message) CitationList() []Citation {
	if m.Citations == "" {
		return nil
	}
	var cites []Citation
	if err := json.Unmarshal([]byte(m.Citations), &cites); err != nil {
		return nil
	}
	return cites
}

// EncodeCitations 将引用列表序列化为存储形式，空列表返回空串。
func EncodeCitations(cites []Citation) string {
	if len(cites) == 0 {
		return ""
	}
	b, err := json.Marshal(cites)
	if err != nil {
		return ""
	}
	return string(b)
}

// ChatMessage 是发往 LLM / 助手服务的角色消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

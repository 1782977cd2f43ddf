package model

import "time"

// AssistantIdentity 对应于数据库中的 assistant_identities 表。
// 每个用户恰好持有一个托管助手，名称由用户 ID 确定性派生。
// user_id 上的唯一索引配合条件插入，保证并发首次调用收敛到同一助手。
type AssistantIdentity struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"userId"`
	AssistantName string    `gorm:"type:varchar(128);not null" json:"assistantName"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AssistantIdentity) TableName() string {
	return "assistant_identities"
}

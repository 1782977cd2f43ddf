// Package model 包含了应用的数据模型定义。
package model

import "time"

// User 对应于数据库中的 users 表。
// 账号由 Google OAuth 绑定产生，调用方通过 JWT 绑定到唯一的一条记录。
type User struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name     string `gorm:"type:varchar(100)" json:"name"`
	GoogleID string `gorm:"type:varchar(64);index" json:"-"`
	// AccessToken / RefreshToken 由外部的 OAuth 回调流程写入，核心只读取。
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文件夹索引状态的生命周期枚举。
const (
	IndexStatusPending    = "pending"
	IndexStatusProcessing = "processing"
	IndexStatusCompleted  = "completed"
	IndexStatusPartial    = "partial"
	IndexStatusFailed     = "failed"
)

// FinalIndexStatus 根据成功与失败的文件数计算文件夹的最终索引状态。
// 规则：有成功且无失败为 completed；有成功有失败为 partial；无成功为 failed。
func FinalIndexStatus(successCount, errorCount int) string {
	switch {
	case successCount > 0 && errorCount == 0:
		return IndexStatusCompleted
	case successCount > 0:
		return IndexStatusPartial
	default:
		return IndexStatusFailed
	}
}

// Folder 对应于数据库中的 folders 表，代表一个已接入的 Google Drive 文件夹。
type Folder struct {
	ID      string `gorm:"type:varchar(36);primaryKey" json:"id"`
	DriveID string `gorm:"type:varchar(128);not null;index" json:"driveId"`
	UserID  string `gorm:"type:varchar(36);not null;index" json:"userId"`
	Name    string `gorm:"type:varchar(255);not null" json:"name"`
	// IndexStatus 取值见 IndexStatus* 常量。
	IndexStatus string     `gorm:"type:varchar(16);not null;default:pending" json:"indexStatus"`
	LastIndexed *time.Time `gorm:"default:null" json:"lastIndexed"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Folder) TableName() string {
	return "folders"
}

// File 对应于数据库中的 files 表，代表文件夹内的一个 Drive 文件。
// (folder_id, drive_id) 上的唯一键让重复同步走更新分支而不是插入重复行。
type File struct {
	ID       string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DriveID  string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_files_folder_drive,priority:2" json:"driveId"`
	FolderID string    `gorm:"type:varchar(36);not null;uniqueIndex:uk_files_folder_drive,priority:1" json:"folderId"`
	Name     string    `gorm:"type:varchar(255);not null" json:"name"`
	MimeType string    `gorm:"type:varchar(128)" json:"mimeType"`
	Size     int64     `json:"size"`
	Indexed  bool      `gorm:"not null;default:false" json:"indexed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (File) TableName() string {
	return "files"
}

// FileChunk 对应于数据库中的 file_chunks 表。
// 它记录每个文件切分出的分块位置，向量本体存于 Elasticsearch。
type FileChunk struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID     string `gorm:"type:varchar(36);not null;index" json:"fileId"`
	ChunkIndex int    `gorm:"not null" json:"chunkIndex"`
	StartIndex int    `gorm:"not null" json:"startIndex"`
	EndIndex   int    `gorm:"not null" json:"endIndex"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileChunk) TableName() string {
	return "file_chunks"
}

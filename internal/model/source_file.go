// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// SourceFile 状态值。
const (
	SourceFileUploaded  = 0 // 已上传，等待文本提取
	SourceFileExtracted = 1 // 文本提取完成
	SourceFileFailed    = 2 // 文本提取失败
)

// SourceFile 对应于数据库中的 'source_files' 表。
// 它记录用户为某个标签页上传的上下文文件（简历、代码、参考资料）。
type SourceFile struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint `gorm:"index;not null" json:"userId"`
	// TabKey 是文件所服务的工具标签页 key，例如 "cv-interview"。
	TabKey   string `gorm:"type:varchar(50);not null" json:"tabKey"`
	FileName string `gorm:"type:varchar(255);not null" json:"fileName"`
	// ObjectName 是 MinIO 中的对象路径。
	ObjectName  string     `gorm:"type:varchar(255);not null" json:"objectName"`
	Size        int64      `gorm:"not null" json:"size"`
	Status      int        `gorm:"type:tinyint;not null;default:0" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	ExtractedAt *time.Time `gorm:"default:null" json:"extractedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SourceFile) TableName() string {
	return "source_files"
}

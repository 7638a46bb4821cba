// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"github.com/sambitcodes/articulate-v2/internal/model"
	"gorm.io/gorm"
)

// UploadRepository 接口定义了上下文文件记录的持久化操作。
type UploadRepository interface {
	Create(record *model.SourceFile) error
	FindByID(fileID uint) (*model.SourceFile, error)
	// FindLatestByUserAndTab 返回某标签页下最近上传的文件记录。
	FindLatestByUserAndTab(userID uint, tabKey string) (*model.SourceFile, error)
	FindByUser(userID uint) ([]model.SourceFile, error)
	// UpdateStatus 更新提取状态；提取完成时一并记录提取时间。
	UpdateStatus(fileID uint, status int) error
	Delete(fileID uint) error
}

// uploadRepository 是 UploadRepository 接口的 GORM 实现。
type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository 创建一个新的 UploadRepository 实例。
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

// Create 在数据库中创建一个新的上下文文件记录。
func (r *uploadRepository) Create(record *model.SourceFile) error {
	return r.db.Create(record).Error
}

// FindByID 根据 ID 检索上下文文件记录。
func (r *uploadRepository) FindByID(fileID uint) (*model.SourceFile, error) {
	var record model.SourceFile
	err := r.db.First(&record, fileID).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLatestByUserAndTab 返回某标签页下最近上传的文件记录。
func (r *uploadRepository) FindLatestByUserAndTab(userID uint, tabKey string) (*model.SourceFile, error) {
	var record model.SourceFile
	err := r.db.Where("user_id = ? AND tab_key = ?", userID, tabKey).
		Order("created_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUser 查找指定用户上传的所有上下文文件。
func (r *uploadRepository) FindByUser(userID uint) ([]model.SourceFile, error) {
	var files []model.SourceFile
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&files).Error
	return files, err
}

// UpdateStatus 更新文件的提取状态。
func (r *uploadRepository) UpdateStatus(fileID uint, status int) error {
	updates := map[string]interface{}{"status": status}
	if status == model.SourceFileExtracted {
		now := time.Now()
		updates["extracted_at"] = &now
	}
	return r.db.Model(&model.SourceFile{}).Where("id = ?", fileID).Updates(updates).Error
}

// Delete 删除一个上下文文件记录。
func (r *uploadRepository) Delete(fileID uint) error {
	return r.db.Delete(&model.SourceFile{}, fileID).Error
}

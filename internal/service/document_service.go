package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/pkg/kafka"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"github.com/sambitcodes/articulate-v2/pkg/storage"
	"github.com/sambitcodes/articulate-v2/pkg/tasks"
	"gorm.io/gorm"
)

var (
	// ErrFileTooLarge 表示上传文件超出大小上限。
	ErrFileTooLarge = errors.New("文件超出大小限制")
	// ErrUnsupportedFileType 表示文件扩展名不在允许列表中。
	ErrUnsupportedFileType = errors.New("不支持的文件类型")
	// ErrFileNotFound 表示目标文件记录不存在。
	ErrFileNotFound = errors.New("文件不存在")
	// ErrNotFileOwner 表示调用者不是文件的属主。
	ErrNotFileOwner = errors.New("无权操作该文件")
)

// DocumentService 处理上下文文件的上传与提取状态查询。
// 上传是单次完整写入，文本提取经由 Kafka 异步完成。
type DocumentService interface {
	// UploadContext 校验并保存上下文文件，然后投递异步提取任务。
	UploadContext(ctx context.Context, userID uint, tool *config.ToolConfig, fileHeader *multipart.FileHeader) (*model.SourceFile, error)
	// GetExtractionStatus 返回某标签页下最近上传文件的提取状态。
	GetExtractionStatus(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.SourceFile, error)
	// GetContextText 返回已提取的上下文文本。
	GetContextText(ctx context.Context, userID uint, tool *config.ToolConfig) (string, error)
	// ListFiles 返回用户上传过的全部上下文文件。
	ListFiles(userID uint) ([]model.SourceFile, error)
	// DeleteFile 删除文件记录及其对象存储内容。
	DeleteFile(ctx context.Context, userID uint, fileID uint) error
}

type documentService struct {
	uploadRepo repository.UploadRepository
	stateRepo  repository.StateRepository
	uploadCfg  config.UploadConfig
	minioCfg   config.MinIOConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(uploadRepo repository.UploadRepository, stateRepo repository.StateRepository, uploadCfg config.UploadConfig, minioCfg config.MinIOConfig) DocumentService {
	return &documentService{
		uploadRepo: uploadRepo,
		stateRepo:  stateRepo,
		uploadCfg:  uploadCfg,
		minioCfg:   minioCfg,
	}
}

// validateFile 校验文件扩展名与大小。
func (s *documentService) validateFile(fileHeader *multipart.FileHeader) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileHeader.Filename)), ".")
	allowed := false
	for _, t := range s.uploadCfg.AllowedTypes {
		if ext == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: .%s", ErrUnsupportedFileType, ext)
	}

	maxSize := s.uploadCfg.MaxSizeMB * 1024 * 1024
	if maxSize > 0 && fileHeader.Size > maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// UploadContext 校验并保存上下文文件，然后投递异步提取任务。
func (s *documentService) UploadContext(ctx context.Context, userID uint, tool *config.ToolConfig, fileHeader *multipart.FileHeader) (*model.SourceFile, error) {
	if err := s.validateFile(fileHeader); err != nil {
		return nil, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	// 对象路径带时间戳，同名文件重复上传不会互相覆盖
	objectName := fmt.Sprintf("context/%d/%s/%d_%s", userID, tool.Key, time.Now().UnixNano(), fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if err := storage.PutObject(ctx, s.minioCfg.BucketName, objectName, file, fileHeader.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	record := &model.SourceFile{
		UserID:     userID,
		TabKey:     tool.Key,
		FileName:   fileHeader.Filename,
		ObjectName: objectName,
		Size:       fileHeader.Size,
		Status:     model.SourceFileUploaded,
	}
	if err := s.uploadRepo.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	task := tasks.TextExtractionTask{
		FileID:     record.ID,
		ObjectName: objectName,
		FileName:   fileHeader.Filename,
		UserID:     userID,
		TabKey:     tool.Key,
	}
	if err := kafka.ProduceExtractionTask(task); err != nil {
		// 投递失败时标记记录，让状态查询能反映出提取不会发生
		log.Errorf("投递文本提取任务失败: fileID=%d, err=%v", record.ID, err)
		if updateErr := s.uploadRepo.UpdateStatus(record.ID, model.SourceFileFailed); updateErr != nil {
			log.Errorf("更新文件状态失败: fileID=%d, err=%v", record.ID, updateErr)
		}
		return nil, fmt.Errorf("failed to enqueue extraction task: %w", err)
	}

	log.Infof("上下文文件已接收并投递提取任务: fileID=%d, user=%d, tab=%s", record.ID, userID, tool.Key)
	return record, nil
}

// GetExtractionStatus 返回某标签页下最近上传文件的提取状态。
func (s *documentService) GetExtractionStatus(ctx context.Context, userID uint, tool *config.ToolConfig) (*model.SourceFile, error) {
	record, err := s.uploadRepo.FindLatestByUserAndTab(userID, tool.Key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// GetContextText 返回已提取的上下文文本，尚未提取时为空串。
func (s *documentService) GetContextText(ctx context.Context, userID uint, tool *config.ToolConfig) (string, error) {
	return s.stateRepo.GetContextText(ctx, userID, tool.Key)
}

// ListFiles 返回用户上传过的全部上下文文件。
func (s *documentService) ListFiles(userID uint) ([]model.SourceFile, error) {
	return s.uploadRepo.FindByUser(userID)
}

// DeleteFile 删除文件记录及其对象存储内容。
// 对象删除失败不阻塞记录删除，由存储端的生命周期策略兜底清理。
func (s *documentService) DeleteFile(ctx context.Context, userID uint, fileID uint) error {
	record, err := s.uploadRepo.FindByID(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	if record.UserID != userID {
		return ErrNotFileOwner
	}

	if err := storage.RemoveObject(ctx, s.minioCfg.BucketName, record.ObjectName); err != nil {
		log.Errorf("删除对象失败: object=%s, err=%v", record.ObjectName, err)
	}

	if err := s.uploadRepo.Delete(fileID); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	log.Infof("上下文文件已删除: fileID=%d, user=%d", fileID, userID)
	return nil
}

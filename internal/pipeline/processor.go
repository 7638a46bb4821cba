// Package pipeline 定义了上下文文件的异步提取流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sambitcodes/articulate-v2/internal/config"
	"github.com/sambitcodes/articulate-v2/internal/model"
	"github.com/sambitcodes/articulate-v2/internal/repository"
	"github.com/sambitcodes/articulate-v2/pkg/log"
	"github.com/sambitcodes/articulate-v2/pkg/storage"
	"github.com/sambitcodes/articulate-v2/pkg/tasks"
	"github.com/sambitcodes/articulate-v2/pkg/tika"
)

// Processor 封装了文本提取的所有依赖和逻辑：
// 从对象存储取回文件，经 Tika 提取纯文本，写入该标签页的上下文状态。
type Processor struct {
	tikaClient *tika.Client
	minioCfg   config.MinIOConfig
	uploadRepo repository.UploadRepository
	stateRepo  repository.StateRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	minioCfg config.MinIOConfig,
	uploadRepo repository.UploadRepository,
	stateRepo repository.StateRepository,
) *Processor {
	return &Processor{
		tikaClient: tikaClient,
		minioCfg:   minioCfg,
		uploadRepo: uploadRepo,
		stateRepo:  stateRepo,
	}
}

// Process 是提取任务的主函数。失败时更新文件状态后返回错误，
// 由消费者的重试计数决定是否再次投递。
func (p *Processor) Process(ctx context.Context, task tasks.TextExtractionTask) error {
	log.Infof("[Processor] 开始处理文件, FileID: %d, FileName: %s, UserID: %d", task.FileID, task.FileName, task.UserID)

	if err := p.extract(ctx, task); err != nil {
		if updateErr := p.uploadRepo.UpdateStatus(task.FileID, model.SourceFileFailed); updateErr != nil {
			log.Errorf("[Processor] 更新文件状态为失败时出错, FileID: %d, Error: %v", task.FileID, updateErr)
		}
		return err
	}

	if err := p.uploadRepo.UpdateStatus(task.FileID, model.SourceFileExtracted); err != nil {
		log.Errorf("[Processor] 更新文件状态为已提取时出错, FileID: %d, Error: %v", task.FileID, err)
		return err
	}

	log.Infof("[Processor] 文件处理成功完成, FileID: %d", task.FileID)
	return nil
}

// extract 执行下载、提取与状态写入。
func (p *Processor) extract(ctx context.Context, task tasks.TextExtractionTask) error {
	// 1. 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	object, err := storage.GetObject(ctx, p.minioCfg.BucketName, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		log.Errorf("[Processor] 从MinIO对象流中读取内容失败, Error: %v", err)
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	log.Info("[Processor] 步骤2: 使用Tika提取文本内容")
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] Tika提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 写入该标签页的上下文状态，后续聊天与生成动作直接读取
	if err := p.stateRepo.SetContextText(ctx, task.UserID, task.TabKey, textContent); err != nil {
		log.Errorf("[Processor] 写入上下文文本失败, UserID: %d, TabKey: %s, Error: %v", task.UserID, task.TabKey, err)
		return fmt.Errorf("写入上下文文本失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 上下文文本已写入状态, UserID: %d, TabKey: %s", task.UserID, task.TabKey)
	return nil
}

package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
	"jurisai-go/internal/config"
	"jurisai-go/internal/model"
	"jurisai-go/pkg/log"
)

// RawFile 是一个等待读取的用户文件。
type RawFile struct {
	Name     string
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

// IngestResult 是一次批量读取的结果。
type IngestResult struct {
	// Attachments 按输入顺序排列，读取失败的文件被跳过。
	Attachments []model.Attachment
	Failures    []*model.IngestionReadError
	Batches     int
}

// IngestService 定义了附件批量读取的接口。
type IngestService interface {
	Ingest(ctx context.Context, files []RawFile) (*IngestResult, error)
}

type ingestService struct {
	batchSize  int
	batchPause time.Duration
}

// NewIngestService 创建一个新的 IngestService 实例。batchSize 小于 1 时使用 20。
func NewIngestService(cfg config.IngestConfig) IngestService {
	size := cfg.BatchSize
	if size < 1 {
		size = 20
	}
	return &ingestService{batchSize: size, batchPause: cfg.BatchPause}
}

type ingestSlot struct {
	att model.Attachment
	err *model.IngestionReadError
}

// Ingest 按固定大小分批读取文件。批内并发读取，批与批之间串行并短暂让出。
// 单个文件的读取失败不会影响其他文件；只有 ctx 被取消时才返回错误。
func (s *ingestService) Ingest(ctx context.Context, files []RawFile) (*IngestResult, error) {
	slots := make([]ingestSlot, len(files))
	result := &IngestResult{}

	for start := 0; start < len(files); start += s.batchSize {
		if start > 0 && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + s.batchSize
		if end > len(files) {
			end = len(files)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				att, err := readFile(files[i])
				if err != nil {
					slots[i].err = &model.IngestionReadError{FileName: files[i].Name, Err: err}
					return nil
				}
				slots[i].att = att
				return nil
			})
		}
		_ = g.Wait()
		result.Batches++
	}

	for _, slot := range slots {
		if slot.err != nil {
			log.Warnw("[IngestService] 跳过无法读取的文件", "file", slot.err.FileName, "error", slot.err.Err)
			result.Failures = append(result.Failures, slot.err)
			continue
		}
		result.Attachments = append(result.Attachments, slot.att)
	}
	log.Infof("[IngestService] 读取完成, 文件数: %d, 成功: %d, 失败: %d, 批次: %d",
		len(files), len(result.Attachments), len(result.Failures), result.Batches)
	return result, nil
}

func readFile(f RawFile) (model.Attachment, error) {
	if f.Open == nil {
		return model.Attachment{}, fmt.Errorf("no reader for %q", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return model.Attachment{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return model.Attachment{}, err
	}
	// 浏览器无法识别的文件按内容嗅探类型
	mimeType := f.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}
	return model.NewInlineAttachment(f.Name, mimeType, data), nil
}

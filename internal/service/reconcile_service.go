package service

import (
	"context"

	"golang.org/x/sync/errgroup"
	"jurisai-go/internal/model"
	"jurisai-go/pkg/log"
)

// Uploader 是持久化上传端点，返回可在后续请求中引用的 URI。
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType, displayName string) (string, error)
}

// ReconcileResult 是一次对账的结果。
type ReconcileResult struct {
	Current []model.Attachment
	// History 仅在 HistoryChanged 为 true 时非空，否则调用方保留原有历史。
	History        []model.Message
	HistoryChanged bool
	Uploaded       int
	Failures       []*model.UploadError
}

// ReconcileService 在每轮发送前把内联附件升级为远程引用。
type ReconcileService interface {
	Reconcile(ctx context.Context, current []model.Attachment, history []model.Message) *ReconcileResult
}

type reconcileService struct {
	uploader Uploader
}

// NewReconcileService 创建一个新的 ReconcileService 实例。
func NewReconcileService(uploader Uploader) ReconcileService {
	return &reconcileService{uploader: uploader}
}

// uploadJob 定位一个待上传的附件：msg 为 -1 表示当前轮次。
type uploadJob struct {
	msg, att int
	src      model.Attachment
	uri      string
	err      error
}

// Reconcile 并发上传当前轮次与全部历史中的内联附件，等待全部完成后再返回。
// 上传失败的附件保持内联，本轮仍以字节发送。
func (s *reconcileService) Reconcile(ctx context.Context, current []model.Attachment, history []model.Message) *ReconcileResult {
	var jobs []*uploadJob
	for i, a := range current {
		if !a.IsRemote() {
			jobs = append(jobs, &uploadJob{msg: -1, att: i, src: a})
		}
	}
	historyJobs := 0
	for mi, m := range history {
		for ai, a := range m.Attachments {
			if !a.IsRemote() {
				jobs = append(jobs, &uploadJob{msg: mi, att: ai, src: a})
				historyJobs++
			}
		}
	}

	var g errgroup.Group
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			job.uri, job.err = s.upload(ctx, job.src)
			return nil
		})
	}
	_ = g.Wait()

	result := &ReconcileResult{
		Current:        append([]model.Attachment(nil), current...),
		HistoryChanged: historyJobs > 0,
	}
	if result.HistoryChanged {
		result.History = model.CloneMessages(history)
	}
	for _, job := range jobs {
		if job.err != nil {
			uerr := &model.UploadError{Name: job.src.Name, Err: job.err}
			log.Warnf("[ReconcileService] %v", uerr)
			result.Failures = append(result.Failures, uerr)
			continue
		}
		result.Uploaded++
		if job.msg < 0 {
			result.Current[job.att] = job.src.Upgrade(job.uri)
		} else {
			result.History[job.msg].Attachments[job.att] = job.src.Upgrade(job.uri)
		}
	}
	if len(jobs) > 0 {
		log.Infof("[ReconcileService] 附件上传完成, 成功: %d, 失败: %d", result.Uploaded, len(result.Failures))
	}
	return result
}

func (s *reconcileService) upload(ctx context.Context, a model.Attachment) (string, error) {
	data, err := a.Bytes()
	if err != nil {
		return "", err
	}
	return s.uploader.Upload(ctx, data, a.MIMEType, a.Name)
}

// Package pipeline 定义了案件索引的核心流程：Kafka 任务 -> 数据库快照 -> Elasticsearch。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"jurisai-go/internal/model"
	"jurisai-go/internal/repository"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/tasks"
)

// DocumentIndex 是案件文档的写入端。
type DocumentIndex interface {
	Index(ctx context.Context, doc model.CaseDocument) error
	Delete(ctx context.Context, caseID string) error
}

// Indexer 封装了案件索引的所有依赖和逻辑。
type Indexer struct {
	caseRepo repository.CaseRepository
	index    DocumentIndex
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(caseRepo repository.CaseRepository, index DocumentIndex) *Indexer {
	return &Indexer{caseRepo: caseRepo, index: index}
}

// Process 处理一个索引任务。upsert 任务总是读取数据库中的最新快照，
// 快照已被删除时转为删除索引文档。
func (p *Indexer) Process(ctx context.Context, task tasks.CaseIndexTask) error {
	log.Infof("[Indexer] 开始处理索引任务, case=%s, user=%s, op=%s", task.CaseID, task.Username, task.Op)

	if task.Op == tasks.CaseIndexDelete {
		if err := p.index.Delete(ctx, task.CaseID); err != nil {
			return fmt.Errorf("删除案件索引失败: %w", err)
		}
		log.Infof("[Indexer] 案件索引已删除, case=%s", task.CaseID)
		return nil
	}

	record, err := p.caseRepo.FindByID(ctx, task.CaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Indexer] 案件 %s 已不存在，删除索引文档", task.CaseID)
			return p.index.Delete(ctx, task.CaseID)
		}
		return fmt.Errorf("读取案件快照失败: %w", err)
	}

	doc := model.NewCaseDocument(record.ToConversation())
	if err := p.index.Index(ctx, doc); err != nil {
		return fmt.Errorf("写入案件索引失败: %w", err)
	}
	log.Infof("[Indexer] 案件索引完成, case=%s, messages=%d", task.CaseID, doc.MessageCount)
	return nil
}

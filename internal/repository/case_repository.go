package repository

import (
	"context"

	"gorm.io/gorm"
	"jurisai-go/internal/model"
)

// CaseRepository 定义了案件快照的持久化操作。
type CaseRepository interface {
	Upsert(ctx context.Context, record *model.CaseRecord) error
	FindByID(ctx context.Context, id string) (*model.CaseRecord, error)
	FindByUsername(ctx context.Context, username string) ([]model.CaseRecord, error)
	Delete(ctx context.Context, username, id string) (bool, error)
}

type caseRepository struct {
	db *gorm.DB
}

// NewCaseRepository 创建一个新的 CaseRepository 实例。
func NewCaseRepository(db *gorm.DB) CaseRepository {
	return &caseRepository{db: db}
}

// Upsert 以案件 ID 为键整体写入快照，后写入者覆盖先写入者。
func (r *caseRepository) Upsert(ctx context.Context, record *model.CaseRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// FindByID 根据案件 ID 查找快照。
func (r *caseRepository) FindByID(ctx context.Context, id string) (*model.CaseRecord, error) {
	var record model.CaseRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUsername 返回用户的全部案件，按最近更新时间倒序。
func (r *caseRepository) FindByUsername(ctx context.Context, username string) ([]model.CaseRecord, error) {
	var records []model.CaseRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("updated_at desc").
		Find(&records).Error
	return records, err
}

// Delete 删除用户名下的指定案件，返回是否确实删除了记录。
func (r *caseRepository) Delete(ctx context.Context, username, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND username = ?", id, username).Delete(&model.CaseRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

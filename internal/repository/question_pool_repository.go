package repository

import (
	"assessment_backend/internal/model"
	"context"

	"gorm.io/gorm"
)

type QuestionPoolRepository struct {
	DB *gorm.DB
}

func NewQuestionPoolRepository(db *gorm.DB) *QuestionPoolRepository {
	return &QuestionPoolRepository{DB: db}
}

// ListByAssessment 按 order、id 排序，保证题目位置稳定
func (r *QuestionPoolRepository) ListByAssessment(ctx context.Context, courseID, assessmentID string) ([]model.QuestionPoolEntry, error) {
	var entries []model.QuestionPoolEntry
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND assessment_id = ?", courseID, assessmentID).
		Order("sort_order ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *QuestionPoolRepository) Create(ctx context.Context, entry *model.QuestionPoolEntry) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

func (r *QuestionPoolRepository) CreateBatch(ctx context.Context, entries []model.QuestionPoolEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&entries).Error
}

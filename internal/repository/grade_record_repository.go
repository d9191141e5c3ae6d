package repository

import (
	"assessment_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type GradeRecordRepository struct {
	DB *gorm.DB
}

func NewGradeRecordRepository(db *gorm.DB) *GradeRecordRepository {
	return &GradeRecordRepository{DB: db}
}

// Upsert 每次提交覆盖同一 key 的成绩记录
func (r *GradeRecordRepository) Upsert(ctx context.Context, record *model.GradeRecord) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.GradeRecord
		err := whereKey(tx, model.SessionKey{
			StudentKey:   record.StudentKey,
			CourseID:     record.CourseID,
			AssessmentID: record.AssessmentID,
		}).Select("id", "created_at").First(&existing).Error
		switch {
		case err == nil:
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			return tx.Save(record).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			record.ID = ""
			return tx.Create(record).Error
		default:
			return err
		}
	})
}

func (r *GradeRecordRepository) Find(ctx context.Context, key model.SessionKey) (*model.GradeRecord, error) {
	var record model.GradeRecord
	err := whereKey(r.DB.WithContext(ctx), key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByAssessment pendingOnly 为 true 时只返回待批改记录
func (r *GradeRecordRepository) ListByAssessment(ctx context.Context, courseID, assessmentID string, pendingOnly bool) ([]model.GradeRecord, error) {
	var records []model.GradeRecord
	query := r.DB.WithContext(ctx).Where("course_id = ? AND assessment_id = ?", courseID, assessmentID)
	if pendingOnly {
		query = query.Where("pending_grading = ?", true)
	}
	err := query.Order("submitted_at ASC").Find(&records).Error
	return records, err
}

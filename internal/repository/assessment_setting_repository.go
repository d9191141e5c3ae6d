package repository

import (
	"assessment_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type AssessmentSettingRepository struct {
	DB *gorm.DB
}

func NewAssessmentSettingRepository(db *gorm.DB) *AssessmentSettingRepository {
	return &AssessmentSettingRepository{DB: db}
}

// FindSetting 未配置时返回 nil, nil
func (r *AssessmentSettingRepository) FindSetting(ctx context.Context, courseID, assessmentID string) (*model.AssessmentSetting, error) {
	var setting model.AssessmentSetting
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND assessment_id = ?", courseID, assessmentID).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *AssessmentSettingRepository) Upsert(ctx context.Context, setting *model.AssessmentSetting) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.AssessmentSetting
		err := tx.Where("course_id = ? AND assessment_id = ?", setting.CourseID, setting.AssessmentID).
			Select("id", "created_at").First(&existing).Error
		switch {
		case err == nil:
			setting.ID = existing.ID
			setting.CreatedAt = existing.CreatedAt
			return tx.Save(setting).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			setting.ID = 0
			return tx.Create(setting).Error
		default:
			return err
		}
	})
}

package repository

import (
	"assessment_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type GradebookRepository struct {
	DB *gorm.DB
}

func NewGradebookRepository(db *gorm.DB) *GradebookRepository {
	return &GradebookRepository{DB: db}
}

// UpsertItem 按 key 覆盖成绩册条目，不做汇总
func (r *GradebookRepository) UpsertItem(ctx context.Context, item *model.GradebookItem) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.GradebookItem
		err := whereKey(tx, model.SessionKey{
			StudentKey:   item.StudentKey,
			CourseID:     item.CourseID,
			AssessmentID: item.AssessmentID,
		}).Select("id", "created_at").First(&existing).Error
		switch {
		case err == nil:
			item.ID = existing.ID
			item.CreatedAt = existing.CreatedAt
			return tx.Save(item).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			item.ID = 0
			return tx.Create(item).Error
		default:
			return err
		}
	})
}

func (r *GradebookRepository) FindItem(ctx context.Context, key model.SessionKey) (*model.GradebookItem, error) {
	var item model.GradebookItem
	err := whereKey(r.DB.WithContext(ctx), key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GradebookRepository) CreateDeadLetter(ctx context.Context, letter *model.GradebookDeadLetter) error {
	return r.DB.WithContext(ctx).Create(letter).Error
}

func (r *GradebookRepository) ListDeadLetters(ctx context.Context, courseID string) ([]model.GradebookDeadLetter, error) {
	var letters []model.GradebookDeadLetter
	err := r.DB.WithContext(ctx).Where("course_id = ?", courseID).Order("id ASC").Find(&letters).Error
	return letters, err
}

package repository

import (
	"assessment_backend/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type AttemptStateRepository struct {
	DB *gorm.DB
}

func NewAttemptStateRepository(db *gorm.DB) *AttemptStateRepository {
	return &AttemptStateRepository{DB: db}
}

func whereKey(db *gorm.DB, key model.SessionKey) *gorm.DB {
	return db.Where("student_key = ? AND course_id = ? AND assessment_id = ?", key.StudentKey, key.CourseID, key.AssessmentID)
}

// Find 不存在时返回 nil, nil
func (r *AttemptStateRepository) Find(ctx context.Context, key model.SessionKey) (*model.AttemptState, error) {
	var state model.AttemptState
	err := whereKey(r.DB.WithContext(ctx), key).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save 按 key 整体覆盖
func (r *AttemptStateRepository) Save(ctx context.Context, state *model.AttemptState) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveAttemptState(tx, state)
	})
}

// SaveGenerated 生成题目时同一事务内写入学生状态与答案记录
func (r *AttemptStateRepository) SaveGenerated(ctx context.Context, state *model.AttemptState, key *model.SecureAnswerKey) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveAttemptState(tx, state); err != nil {
			return err
		}
		return saveAnswerKey(tx, key)
	})
}

func saveAttemptState(tx *gorm.DB, state *model.AttemptState) error {
	var existing model.AttemptState
	err := whereKey(tx, state.Key()).Select("id", "created_at").First(&existing).Error
	switch {
	case err == nil:
		state.ID = existing.ID
		state.CreatedAt = existing.CreatedAt
		return tx.Save(state).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		state.ID = 0
		return tx.Create(state).Error
	default:
		return err
	}
}

func saveAnswerKey(tx *gorm.DB, key *model.SecureAnswerKey) error {
	var existing model.SecureAnswerKey
	err := whereKey(tx, model.SessionKey{
		StudentKey:   key.StudentKey,
		CourseID:     key.CourseID,
		AssessmentID: key.AssessmentID,
	}).Select("id", "created_at").First(&existing).Error
	switch {
	case err == nil:
		key.ID = existing.ID
		key.CreatedAt = existing.CreatedAt
		return tx.Save(key).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		key.ID = 0
		return tx.Create(key).Error
	default:
		return err
	}
}

// AnswerKeyRepository 答案记录只读访问，仅教师端使用
type AnswerKeyRepository struct {
	DB *gorm.DB
}

func NewAnswerKeyRepository(db *gorm.DB) *AnswerKeyRepository {
	return &AnswerKeyRepository{DB: db}
}

func (r *AnswerKeyRepository) Find(ctx context.Context, key model.SessionKey) (*model.SecureAnswerKey, error) {
	var answerKey model.SecureAnswerKey
	err := whereKey(r.DB.WithContext(ctx), key).First(&answerKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &answerKey, nil
}

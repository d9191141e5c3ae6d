package service

import (
	"assessment_backend/internal/model"
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSetting  = errors.New("invalid assessment configuration")
	ErrInvalidQuestion = errors.New("invalid question")
)

type AssessmentSettingStore interface {
	AssessmentSettingSource
	Upsert(ctx context.Context, setting *model.AssessmentSetting) error
}

type QuestionPoolStore interface {
	QuestionPoolSource
	CreateBatch(ctx context.Context, entries []model.QuestionPoolEntry) error
}

// AssessmentAdminService 教师维护测评配置与题库
type AssessmentAdminService struct {
	Settings AssessmentSettingStore
	Pool     QuestionPoolStore
}

func NewAssessmentAdminService(settings AssessmentSettingStore, pool QuestionPoolStore) *AssessmentAdminService {
	return &AssessmentAdminService{Settings: settings, Pool: pool}
}

var knownActivityTypes = map[string]bool{
	model.ActivityLesson:     true,
	model.ActivityAssignment: true,
	model.ActivityExam:       true,
	model.ActivityLab:        true,
}

func (s *AssessmentAdminService) UpsertSetting(ctx context.Context, setting *model.AssessmentSetting) error {
	setting.ActivityType = strings.ToLower(strings.TrimSpace(setting.ActivityType))
	if !knownActivityTypes[setting.ActivityType] {
		return fmt.Errorf("%w: unknown activity type %q", ErrInvalidSetting, setting.ActivityType)
	}
	if setting.MaxAttempts != nil && *setting.MaxAttempts <= 0 {
		return fmt.Errorf("%w: maxAttempts must be positive", ErrInvalidSetting)
	}
	if setting.MinWords != nil && setting.MaxWords != nil && *setting.MaxWords > 0 && *setting.MinWords > *setting.MaxWords {
		return fmt.Errorf("%w: minWords exceeds maxWords", ErrInvalidSetting)
	}
	if setting.MaxScore < 0 {
		return fmt.Errorf("%w: maxScore must not be negative", ErrInvalidSetting)
	}
	return s.Settings.Upsert(ctx, setting)
}

func (s *AssessmentAdminService) GetSetting(ctx context.Context, courseID, assessmentID string) (*model.AssessmentSetting, error) {
	return s.Settings.FindSetting(ctx, courseID, assessmentID)
}

func validateQuestion(i int, q *model.QuestionPoolEntry) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question %d has no text", ErrInvalidQuestion, i)
	}
	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuestion, i)
		}
		ids := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			ids[o.ID] = true
		}
		for _, id := range q.CorrectOptionIDs {
			if !ids[id] {
				return fmt.Errorf("%w: question %d marks unknown option %q as correct", ErrInvalidQuestion, i, id)
			}
		}
	case model.QuestionTypeShortAnswer, model.QuestionTypeEssay:
	default:
		return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuestion, i, q.QuestionType)
	}
	if q.MinWords != nil && q.MaxWords != nil && *q.MaxWords > 0 && *q.MinWords > *q.MaxWords {
		return fmt.Errorf("%w: question %d minWords exceeds maxWords", ErrInvalidQuestion, i)
	}
	return nil
}

// AddQuestions 批量追加题目，题库需先有测评配置
func (s *AssessmentAdminService) AddQuestions(ctx context.Context, courseID, assessmentID string, entries []model.QuestionPoolEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no questions supplied", ErrInvalidQuestion)
	}
	for i := range entries {
		entries[i].ID = 0
		entries[i].CourseID = courseID
		entries[i].AssessmentID = assessmentID
		if err := validateQuestion(i, &entries[i]); err != nil {
			return err
		}
	}
	return s.Pool.CreateBatch(ctx, entries)
}

func (s *AssessmentAdminService) ListQuestions(ctx context.Context, courseID, assessmentID string) ([]model.QuestionPoolEntry, error) {
	return s.Pool.ListByAssessment(ctx, courseID, assessmentID)
}

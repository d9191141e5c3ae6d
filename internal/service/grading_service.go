package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
)

type GradeRecordStore interface {
	GradeRecordWriter
	Find(ctx context.Context, key model.SessionKey) (*model.GradeRecord, error)
	ListByAssessment(ctx context.Context, courseID, assessmentID string, pendingOnly bool) ([]model.GradeRecord, error)
}

type AnswerKeyReader interface {
	Find(ctx context.Context, key model.SessionKey) (*model.SecureAnswerKey, error)
}

type SubmissionLister interface {
	List(ctx context.Context, courseID, assessmentID, studentKey string) ([]model.SubmissionRecord, error)
}

type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, courseID string) ([]model.GradebookDeadLetter, error)
}

// GradingService 教师端批改与查询
type GradingService struct {
	Grades      GradeRecordStore
	AnswerKeys  AnswerKeyReader
	Archive     SubmissionLister
	Gradebook   GradebookDispatch
	DeadLetters DeadLetterLister

	now func() time.Time
}

func NewGradingService(grades GradeRecordStore, answerKeys AnswerKeyReader, archive SubmissionLister, gradebook GradebookDispatch, deadLetters DeadLetterLister) *GradingService {
	return &GradingService{
		Grades:      grades,
		AnswerKeys:  answerKeys,
		Archive:     archive,
		Gradebook:   gradebook,
		DeadLetters: deadLetters,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Grade 人工批改，写入分数并通知成绩册
func (s *GradingService) Grade(ctx context.Context, key model.SessionKey, score float64, feedback, grader string) (*model.GradeRecord, error) {
	record, err := s.Grades.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, util.ErrGradeRecordNotFound
	}
	if score < 0 || (record.MaxScore > 0 && score > float64(record.MaxScore)) {
		return nil, util.ErrInvalidScore
	}

	now := s.now()
	record.Score = &score
	record.Feedback = feedback
	record.GradedBy = grader
	record.GradedAt = &now
	record.PendingGrading = false
	if err := s.Grades.Upsert(ctx, record); err != nil {
		return nil, err
	}

	logger.Log.Info("Submission graded",
		zap.String("student_key", key.StudentKey),
		zap.String("course_id", key.CourseID),
		zap.String("assessment_id", key.AssessmentID),
		zap.Int("attempt", record.Attempt),
		zap.Float64("score", score),
		zap.String("grader", grader))

	if s.Gradebook != nil {
		s.Gradebook.Dispatch(GradebookUpdate{
			StudentKey:   key.StudentKey,
			CourseID:     key.CourseID,
			AssessmentID: key.AssessmentID,
			Score:        record.Score,
			ItemConfig: model.GradebookItemConfig{
				MaxScore: record.MaxScore,
				Attempt:  record.Attempt,
			},
		})
	}
	return record, nil
}

func (s *GradingService) ListGrades(ctx context.Context, courseID, assessmentID string, pendingOnly bool) ([]model.GradeRecord, error) {
	return s.Grades.ListByAssessment(ctx, courseID, assessmentID, pendingOnly)
}

// GetAnswerKey 仅教师可调用
func (s *GradingService) GetAnswerKey(ctx context.Context, key model.SessionKey) (*model.SecureAnswerKey, error) {
	answerKey, err := s.AnswerKeys.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if answerKey == nil {
		return nil, util.ErrAnswerKeyNotFound
	}
	return answerKey, nil
}

func (s *GradingService) ListSubmissions(ctx context.Context, courseID, assessmentID, studentKey string) ([]model.SubmissionRecord, error) {
	return s.Archive.List(ctx, courseID, assessmentID, studentKey)
}

// ListDeadLetters 投递失败的成绩册通知，供人工补偿
func (s *GradingService) ListDeadLetters(ctx context.Context, courseID string) ([]model.GradebookDeadLetter, error) {
	if s.DeadLetters == nil {
		return nil, nil
	}
	return s.DeadLetters.ListDeadLetters(ctx, courseID)
}

package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/tracing"
	"context"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	msgMaxAttemptsExceeded = "Maximum attempts exceeded"
	msgAlreadySubmitted    = "Answer already submitted. Generate a new question to start another attempt."
	msgDraftSaved          = "Draft saved."
	msgSubmitted           = "Answer submitted. It will be graded by your instructor."
)

type AttemptStore interface {
	Find(ctx context.Context, key model.SessionKey) (*model.AttemptState, error)
	Save(ctx context.Context, state *model.AttemptState) error
	SaveGenerated(ctx context.Context, state *model.AttemptState, key *model.SecureAnswerKey) error
}

type QuestionPoolSource interface {
	ListByAssessment(ctx context.Context, courseID, assessmentID string) ([]model.QuestionPoolEntry, error)
}

type PolicyResolver interface {
	Resolve(ctx context.Context, courseID, assessmentID string, overrides PolicyOverrides) (PolicySnapshot, error)
	PreviewLength() int
}

type SubmissionArchiver interface {
	Store(ctx context.Context, r *model.SubmissionRecord) (string, error)
}

type GradeRecordWriter interface {
	Upsert(ctx context.Context, record *model.GradeRecord) error
}

type GradebookDispatch interface {
	Dispatch(update GradebookUpdate)
}

type GenerateRequest struct {
	StudentKey   string
	CourseID     string
	AssessmentID string
	Difficulty   string
}

type GenerateResult struct {
	Success           bool                  `json:"success"`
	QuestionGenerated bool                  `json:"questionGenerated"`
	AssessmentID      string                `json:"assessmentId"`
	Question          *model.PublicQuestion `json:"question,omitempty"`
	AttemptsRemaining int                   `json:"attemptsRemaining"`
}

type AnswerRequest struct {
	StudentKey   string
	CourseID     string
	AssessmentID string
	Answer       string
	Operation    string
}

// SessionResult 保存/提交的返回结构，策略类失败通过 Success=false 与 Error 返回
type SessionResult struct {
	Success               bool   `json:"success"`
	Saved                 bool   `json:"saved"`
	Submitted             bool   `json:"submitted"`
	AttemptsRemaining     int    `json:"attemptsRemaining"`
	AttemptsMade          int    `json:"attemptsMade"`
	WordCount             int    `json:"wordCount"`
	RequiresManualGrading bool   `json:"requiresManualGrading"`
	Message               string `json:"message,omitempty"`
	Error                 string `json:"error,omitempty"`
	Archived              bool   `json:"archived"`
	ArchivePath           string `json:"archivePath,omitempty"`
}

// AttemptStateView 学生端读取的状态投影
type AttemptStateView struct {
	CourseID                string               `json:"courseId"`
	AssessmentID            string               `json:"assessmentId"`
	ActivityType            string               `json:"activityType"`
	Question                model.PublicQuestion `json:"question"`
	Status                  model.AttemptStatus  `json:"status"`
	Attempts                int                  `json:"attempts"`
	MaxAttempts             int                  `json:"maxAttempts"`
	AttemptsRemaining       int                  `json:"attemptsRemaining"`
	GeneratedAt             time.Time            `json:"generatedAt"`
	LastSavedAt             *time.Time           `json:"lastSavedAt,omitempty"`
	LastSavedPreview        string               `json:"lastSavedPreview,omitempty"`
	LastSavedWordCount      int                  `json:"lastSavedWordCount,omitempty"`
	LastSubmittedAt         *time.Time           `json:"lastSubmittedAt,omitempty"`
	LastSubmissionPreview   string               `json:"lastSubmissionPreview,omitempty"`
	LastSubmissionWordCount int                  `json:"lastSubmissionWordCount,omitempty"`
}

// SessionService 题目生成与作答保存/提交
type SessionService struct {
	Attempts  AttemptStore
	Pool      QuestionPoolSource
	Policy    PolicyResolver
	Archive   SubmissionArchiver
	Grades    GradeRecordWriter
	Gradebook GradebookDispatch
	Locker    KeyLocker

	now  func() time.Time
	intn func(int) int
}

func NewSessionService(
	attempts AttemptStore,
	pool QuestionPoolSource,
	policy PolicyResolver,
	archive SubmissionArchiver,
	grades GradeRecordWriter,
	gradebook GradebookDispatch,
	locker KeyLocker,
) *SessionService {
	if locker == nil {
		locker = NewLocalKeyLocker()
	}
	return &SessionService{
		Attempts:  attempts,
		Pool:      pool,
		Policy:    policy,
		Archive:   archive,
		Grades:    grades,
		Gradebook: gradebook,
		Locker:    locker,
		now:       func() time.Time { return time.Now().UTC() },
		intn:      rand.Intn,
	}
}

// CountWords 以空白分隔的词数
func CountWords(answer string) int {
	return len(strings.Fields(answer))
}

// Preview 截取前 n 个字符，仅用于可变状态记录
func Preview(answer string, n int) string {
	if n <= 0 || utf8.RuneCountInString(answer) <= n {
		return answer
	}
	runes := []rune(answer)
	return string(runes[:n])
}

func (s *SessionService) lock(ctx context.Context, key model.SessionKey) (func(), error) {
	return s.Locker.Lock(ctx, key.String())
}

func (s *SessionService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "session.generate")
	defer span.End()

	key := model.SessionKey{StudentKey: req.StudentKey, CourseID: req.CourseID, AssessmentID: req.AssessmentID}
	span.SetAttributes(attribute.String("session.key", key.String()))

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	policy, err := s.Policy.Resolve(ctx, req.CourseID, req.AssessmentID, PolicyOverrides{Difficulty: req.Difficulty})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing, err := s.Attempts.Find(ctx, key)
	if err != nil {
		return nil, err
	}

	maxAttempts := policy.MaxAttempts
	var used []string
	if existing != nil {
		// 次数上限在首次生成时确定
		maxAttempts = existing.MaxAttempts
		if existing.Attempts >= maxAttempts {
			return nil, &util.MaxAttemptsError{MaxAttempts: maxAttempts}
		}
		if existing.Status == model.AttemptActive && !policy.AllowRegeneration {
			return nil, util.ErrRegenerationNotAllowed
		}
		used = existing.UsedQuestionIDs
	}

	pool, err := s.Pool.ListByAssessment(ctx, req.CourseID, req.AssessmentID)
	if err != nil {
		return nil, err
	}
	sel, err := SelectQuestion(pool, SelectCriteria{
		Difficulty:      policy.Difficulty,
		Tags:            policy.Tags,
		AvoidRepetition: policy.AvoidRepetition,
		UsedIDs:         used,
	}, s.intn)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now()
	question := sel.Entry.Public(sel.ID, policy.WordLimitsFor(sel.Entry))
	state := &model.AttemptState{
		StudentKey:      key.StudentKey,
		CourseID:        key.CourseID,
		AssessmentID:    key.AssessmentID,
		ActivityType:    policy.ActivityType,
		ActiveQuestion:  datatypes.NewJSONType(question),
		MaxAttempts:     maxAttempts,
		UsedQuestionIDs: datatypes.JSONSlice[string](mergeUsedID(used, sel.ID)),
		Status:          model.AttemptActive,
		GeneratedAt:     now,
	}
	if existing != nil {
		state.Attempts = existing.Attempts
		// 上一次提交的信息保留，草稿属于旧题目，清空
		state.LastSubmittedAt = existing.LastSubmittedAt
		state.LastSubmissionPreview = existing.LastSubmissionPreview
		state.LastSubmissionWordCount = existing.LastSubmissionWordCount
		state.LastSubmissionPath = existing.LastSubmissionPath
	}

	answerKey := &model.SecureAnswerKey{
		StudentKey:          key.StudentKey,
		CourseID:            key.CourseID,
		AssessmentID:        key.AssessmentID,
		QuestionID:          sel.ID,
		PoolEntryID:         sel.Entry.ID,
		SampleAnswer:        sel.Entry.SampleAnswer,
		CorrectOptionIDs:    append(datatypes.JSONSlice[string](nil), sel.Entry.CorrectOptionIDs...),
		Rubric:              sel.Entry.Rubric,
		Explanation:         sel.Entry.Explanation,
		Points:              sel.Entry.Points,
		PoolSize:            len(pool),
		RequestedDifficulty: policy.Difficulty,
		ServedDifficulty:    sel.Entry.Difficulty,
		GeneratedAt:         now,
	}

	if err := s.Attempts.SaveGenerated(ctx, state, answerKey); err != nil {
		span.RecordError(err)
		return nil, err
	}

	activity := policy.ActivityType
	if activity == "" {
		activity = "unknown"
	}
	monitoring.QuestionsGenerated.WithLabelValues(activity).Inc()
	logger.Log.Info("Question generated",
		zap.String("student_key", key.StudentKey),
		zap.String("course_id", key.CourseID),
		zap.String("assessment_id", key.AssessmentID),
		zap.String("question_id", sel.ID),
		zap.Strings("filters", sel.AppliedStages),
		zap.Int("candidates", sel.Candidates))

	return &GenerateResult{
		Success:           true,
		QuestionGenerated: true,
		AssessmentID:      req.AssessmentID,
		Question:          &question,
		AttemptsRemaining: state.AttemptsRemaining(),
	}, nil
}

func (s *SessionService) Answer(ctx context.Context, req AnswerRequest) (*SessionResult, error) {
	var isSubmit bool
	switch req.Operation {
	case util.OperationSave:
	case util.OperationSubmit:
		isSubmit = true
	default:
		return nil, util.ErrInvalidOperation
	}

	ctx, span := tracing.Tracer.Start(ctx, "session.answer")
	defer span.End()

	key := model.SessionKey{StudentKey: req.StudentKey, CourseID: req.CourseID, AssessmentID: req.AssessmentID}
	span.SetAttributes(attribute.String("session.key", key.String()), attribute.String("session.operation", req.Operation))

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := s.Attempts.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, util.ErrAssessmentNotFound
	}

	if isSubmit && state.Attempts >= state.MaxAttempts {
		monitoring.AnswersTotal.WithLabelValues(req.Operation, "exhausted").Inc()
		return &SessionResult{
			Success:           false,
			Error:             msgMaxAttemptsExceeded,
			AttemptsRemaining: 0,
			AttemptsMade:      state.Attempts,
		}, nil
	}
	if state.Status == model.AttemptSubmitted {
		monitoring.AnswersTotal.WithLabelValues(req.Operation, "already_submitted").Inc()
		return &SessionResult{
			Success:           false,
			Error:             msgAlreadySubmitted,
			AttemptsRemaining: state.AttemptsRemaining(),
			AttemptsMade:      state.Attempts,
		}, nil
	}

	question := state.ActiveQuestion.Data()
	wordCount := CountWords(req.Answer)
	if isSubmit {
		if err := checkWordLimits(question.WordLimits, wordCount); err != nil {
			monitoring.AnswersTotal.WithLabelValues(req.Operation, "word_count").Inc()
			return nil, err
		}
	}

	now := s.now()
	status := model.SubmissionDraft
	if isSubmit {
		status = model.SubmissionSubmitted
	}
	record := &model.SubmissionRecord{
		StudentKey:   key.StudentKey,
		CourseID:     key.CourseID,
		AssessmentID: key.AssessmentID,
		ActivityType: state.ActivityType,
		Attempt:      state.Attempts + 1,
		Status:       status,
		Question:     question,
		Answer:       req.Answer,
		WordCount:    wordCount,
		CreatedAt:    now,
	}

	archived := true
	archivePath, err := s.Archive.Store(ctx, record)
	if err != nil {
		archived = false
		monitoring.ArchiveFailures.Inc()
		logger.Log.Error("Failed to archive submission",
			zap.String("student_key", key.StudentKey),
			zap.String("course_id", key.CourseID),
			zap.String("assessment_id", key.AssessmentID),
			zap.Int("attempt", record.Attempt),
			zap.Error(err))
	}

	preview := Preview(req.Answer, s.Policy.PreviewLength())
	if isSubmit {
		state.Attempts++
		state.Status = model.AttemptSubmitted
		state.LastSubmittedAt = &now
		state.LastSubmissionPreview = preview
		state.LastSubmissionWordCount = wordCount
		state.LastSubmissionPath = archivePath
	} else {
		state.LastSavedAt = &now
		state.LastSavedPreview = preview
		state.LastSavedWordCount = wordCount
	}
	if err := s.Attempts.Save(ctx, state); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if isSubmit {
		s.recordSubmission(ctx, state, question, archivePath, now)
	}

	monitoring.AnswersTotal.WithLabelValues(req.Operation, "ok").Inc()

	result := &SessionResult{
		Success:               true,
		Saved:                 true,
		Submitted:             isSubmit,
		AttemptsRemaining:     state.AttemptsRemaining(),
		AttemptsMade:          state.Attempts,
		WordCount:             wordCount,
		RequiresManualGrading: isSubmit,
		Message:               msgDraftSaved,
		Archived:              archived,
		ArchivePath:           archivePath,
	}
	if isSubmit {
		result.Message = msgSubmitted
	}
	return result, nil
}

// 字数上下限均为闭区间，<=0 表示不限制
func checkWordLimits(limits *model.WordLimits, count int) error {
	if limits == nil {
		return nil
	}
	if limits.Min > 0 && count < limits.Min {
		return &util.WordCountError{Min: limits.Min, Max: limits.Max, Got: count, Short: true}
	}
	if limits.Max > 0 && count > limits.Max {
		return &util.WordCountError{Min: limits.Min, Max: limits.Max, Got: count}
	}
	return nil
}

// recordSubmission 写入待批改成绩并通知成绩册，失败只记录日志
func (s *SessionService) recordSubmission(ctx context.Context, state *model.AttemptState, question model.PublicQuestion, archivePath string, now time.Time) {
	title := ""
	maxScore := question.Points
	if policy, err := s.Policy.Resolve(ctx, state.CourseID, state.AssessmentID, PolicyOverrides{}); err == nil {
		title = policy.Title
		if policy.MaxScore > 0 {
			maxScore = policy.MaxScore
		}
	}

	if s.Grades != nil {
		err := s.Grades.Upsert(ctx, &model.GradeRecord{
			StudentKey:     state.StudentKey,
			CourseID:       state.CourseID,
			AssessmentID:   state.AssessmentID,
			Attempt:        state.Attempts,
			SubmissionPath: archivePath,
			PendingGrading: true,
			MaxScore:       maxScore,
			SubmittedAt:    now,
		})
		if err != nil {
			logger.Log.Error("Failed to write grade record",
				zap.String("student_key", state.StudentKey),
				zap.String("course_id", state.CourseID),
				zap.String("assessment_id", state.AssessmentID),
				zap.Int("attempt", state.Attempts),
				zap.Error(err))
		}
	}

	if s.Gradebook != nil {
		s.Gradebook.Dispatch(GradebookUpdate{
			StudentKey:   state.StudentKey,
			CourseID:     state.CourseID,
			AssessmentID: state.AssessmentID,
			ItemConfig: model.GradebookItemConfig{
				Title:          title,
				ActivityType:   state.ActivityType,
				MaxScore:       maxScore,
				Attempt:        state.Attempts,
				PendingGrading: true,
			},
		})
	}
}

func (s *SessionService) GetState(ctx context.Context, key model.SessionKey) (*AttemptStateView, error) {
	state, err := s.Attempts.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, util.ErrAssessmentNotFound
	}
	return &AttemptStateView{
		CourseID:                state.CourseID,
		AssessmentID:            state.AssessmentID,
		ActivityType:            state.ActivityType,
		Question:                state.ActiveQuestion.Data(),
		Status:                  state.Status,
		Attempts:                state.Attempts,
		MaxAttempts:             state.MaxAttempts,
		AttemptsRemaining:       state.AttemptsRemaining(),
		GeneratedAt:             state.GeneratedAt,
		LastSavedAt:             state.LastSavedAt,
		LastSavedPreview:        state.LastSavedPreview,
		LastSavedWordCount:      state.LastSavedWordCount,
		LastSubmittedAt:         state.LastSubmittedAt,
		LastSubmissionPreview:   state.LastSubmissionPreview,
		LastSubmissionWordCount: state.LastSubmissionWordCount,
	}, nil
}

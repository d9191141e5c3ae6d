package model

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptSubmitted AttemptStatus = "submitted"
)

// SessionKey 一个学生在某课程某测评下的唯一标识
type SessionKey struct {
	StudentKey   string `json:"studentKey"`
	CourseID     string `json:"courseId"`
	AssessmentID string `json:"assessmentId"`
}

func (k SessionKey) String() string {
	return k.CourseID + "/" + k.AssessmentID + "/" + k.StudentKey
}

// AttemptState 学生可读的当前题目与作答计数，每次生命周期变更整体覆盖
// swagger:model AttemptState
type AttemptState struct {
	BaseModel
	StudentKey              string                             `gorm:"size:191;uniqueIndex:idx_attempt_state_key;not null" json:"studentKey"`
	CourseID                string                             `gorm:"size:64;uniqueIndex:idx_attempt_state_key;not null" json:"courseId"`
	AssessmentID            string                             `gorm:"size:128;uniqueIndex:idx_attempt_state_key;not null" json:"assessmentId"`
	ActivityType            string                             `gorm:"size:32" json:"activityType"`
	ActiveQuestion          datatypes.JSONType[PublicQuestion] `json:"activeQuestion"`
	Attempts                int                                `gorm:"default:0" json:"attempts"`
	MaxAttempts             int                                `gorm:"default:1" json:"maxAttempts"`
	UsedQuestionIDs         datatypes.JSONSlice[string]        `json:"usedQuestionIds"`
	Status                  AttemptStatus                      `gorm:"size:20;default:'active'" json:"status"`
	GeneratedAt             time.Time                          `json:"generatedAt"`
	LastSavedAt             *time.Time                         `json:"lastSavedAt,omitempty"`
	LastSavedPreview        string                             `gorm:"type:text" json:"lastSavedPreview,omitempty"`
	LastSavedWordCount      int                                `json:"lastSavedWordCount"`
	LastSubmittedAt         *time.Time                         `json:"lastSubmittedAt,omitempty"`
	LastSubmissionPreview   string                             `gorm:"type:text" json:"lastSubmissionPreview,omitempty"`
	LastSubmissionWordCount int                                `json:"lastSubmissionWordCount"`
	LastSubmissionPath      string                             `gorm:"size:512" json:"lastSubmissionPath,omitempty"`
}

func (AttemptState) TableName() string {
	return "attempt_states"
}

func (s *AttemptState) Key() SessionKey {
	return SessionKey{StudentKey: s.StudentKey, CourseID: s.CourseID, AssessmentID: s.AssessmentID}
}

// AttemptsRemaining 剩余可提交次数，不会为负
func (s *AttemptState) AttemptsRemaining() int {
	if s.Attempts >= s.MaxAttempts {
		return 0
	}
	return s.MaxAttempts - s.Attempts
}

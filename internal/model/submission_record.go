package model

import "time"

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
)

// SubmissionRecord 每次保存/提交生成的归档快照，写入后不再修改
type SubmissionRecord struct {
	ID           string           `json:"id"`
	StudentKey   string           `json:"studentKey"`
	CourseID     string           `json:"courseId"`
	AssessmentID string           `json:"assessmentId"`
	ActivityType string           `json:"activityType,omitempty"`
	Attempt      int              `json:"attempt"`
	Status       SubmissionStatus `json:"status"`
	Question     PublicQuestion   `json:"question"`
	Answer       string           `json:"answer"`
	WordCount    int              `json:"wordCount"`
	CreatedAt    time.Time        `json:"createdAt"`
	Path         string           `json:"path,omitempty"`
}

func (r *SubmissionRecord) Key() SessionKey {
	return SessionKey{StudentKey: r.StudentKey, CourseID: r.CourseID, AssessmentID: r.AssessmentID}
}

package model

import (
	"time"

	"gorm.io/datatypes"
)

// GradeRecord 仅在提交时创建/覆盖，分数由人工批改写入
// swagger:model GradeRecord
type GradeRecord struct {
	UUIDBase
	StudentKey     string     `gorm:"size:191;uniqueIndex:idx_grade_record_key;not null" json:"studentKey"`
	CourseID       string     `gorm:"size:64;uniqueIndex:idx_grade_record_key;not null" json:"courseId"`
	AssessmentID   string     `gorm:"size:128;uniqueIndex:idx_grade_record_key;not null" json:"assessmentId"`
	Attempt        int        `json:"attempt"`
	SubmissionPath string     `gorm:"size:512" json:"submissionPath"`
	PendingGrading bool       `gorm:"index" json:"pendingGrading"`
	Score          *float64   `json:"score"`
	MaxScore       int        `json:"maxScore"`
	Feedback       string     `gorm:"type:text" json:"feedback"`
	GradedBy       string     `gorm:"size:191" json:"gradedBy,omitempty"`
	SubmittedAt    time.Time  `json:"submittedAt"`
	GradedAt       *time.Time `json:"gradedAt,omitempty"`
}

func (GradeRecord) TableName() string {
	return "grade_records"
}

// GradebookItemConfig 成绩册条目的附加信息
type GradebookItemConfig struct {
	Title          string `json:"title,omitempty"`
	ActivityType   string `json:"activityType,omitempty"`
	MaxScore       int    `json:"maxScore"`
	Attempt        int    `json:"attempt"`
	PendingGrading bool   `json:"pendingGrading"`
}

// GradebookItem 内置成绩册中的单条记录（不做汇总）
type GradebookItem struct {
	BaseModel
	StudentKey   string                                  `gorm:"size:191;uniqueIndex:idx_gradebook_item_key;not null" json:"studentKey"`
	CourseID     string                                  `gorm:"size:64;uniqueIndex:idx_gradebook_item_key;not null" json:"courseId"`
	AssessmentID string                                  `gorm:"size:128;uniqueIndex:idx_gradebook_item_key;not null" json:"assessmentId"`
	Score        *float64                                `json:"score"`
	ItemConfig   datatypes.JSONType[GradebookItemConfig] `json:"itemConfig"`
}

func (GradebookItem) TableName() string {
	return "gradebook_items"
}

// GradebookDeadLetter 重试耗尽后留存的成绩册通知，供人工补偿
type GradebookDeadLetter struct {
	BaseModel
	StudentKey   string   `gorm:"size:191;index" json:"studentKey"`
	CourseID     string   `gorm:"size:64;index" json:"courseId"`
	AssessmentID string   `gorm:"size:128" json:"assessmentId"`
	Score        *float64 `json:"score"`
	Payload      string   `gorm:"type:text" json:"payload"`
	Attempts     int      `json:"attempts"`
	LastError    string   `gorm:"type:text" json:"lastError"`
}

func (GradebookDeadLetter) TableName() string {
	return "gradebook_dead_letters"
}

package model

import "gorm.io/datatypes"

const (
	ActivityLesson     = "lesson"
	ActivityAssignment = "assignment"
	ActivityExam       = "exam"
	ActivityLab        = "lab"
)

// AssessmentSetting 课程下某个测评的配置，空字段表示沿用活动类型默认值
// swagger:model AssessmentSetting
type AssessmentSetting struct {
	BaseModel
	CourseID          string                      `gorm:"size:64;uniqueIndex:idx_assessment_setting_key;not null" json:"courseId"`
	AssessmentID      string                      `gorm:"size:128;uniqueIndex:idx_assessment_setting_key;not null" json:"assessmentId"`
	Title             string                      `gorm:"size:255" json:"title"`
	ActivityType      string                      `gorm:"size:32;not null" json:"activityType"`
	MaxAttempts       *int                        `json:"maxAttempts,omitempty"`
	MinWords          *int                        `json:"minWords,omitempty"`
	MaxWords          *int                        `json:"maxWords,omitempty"`
	AvoidRepetition   *bool                       `json:"avoidRepetition,omitempty"`
	AllowRegeneration *bool                       `json:"allowRegeneration,omitempty"`
	DefaultDifficulty string                      `gorm:"size:32" json:"defaultDifficulty,omitempty"`
	Tags              datatypes.JSONSlice[string] `json:"tags,omitempty"`
	MaxScore          int                         `gorm:"default:0" json:"maxScore"`
}

func (AssessmentSetting) TableName() string {
	return "assessment_settings"
}

package model

import (
	"time"

	"gorm.io/datatypes"
)

// SecureAnswerKey 与 AttemptState 一一对应的答案记录，独立表存储，学生端接口不读取
type SecureAnswerKey struct {
	BaseModel
	StudentKey          string                      `gorm:"size:191;uniqueIndex:idx_answer_key_key;not null" json:"studentKey"`
	CourseID            string                      `gorm:"size:64;uniqueIndex:idx_answer_key_key;not null" json:"courseId"`
	AssessmentID        string                      `gorm:"size:128;uniqueIndex:idx_answer_key_key;not null" json:"assessmentId"`
	QuestionID          string                      `gorm:"size:128" json:"questionId"`
	PoolEntryID         uint                        `json:"poolEntryId"`
	SampleAnswer        string                      `gorm:"type:text" json:"sampleAnswer"`
	CorrectOptionIDs    datatypes.JSONSlice[string] `json:"correctOptionIds"`
	Rubric              string                      `gorm:"type:text" json:"rubric"`
	Explanation         string                      `gorm:"type:text" json:"explanation"`
	Points              int                         `json:"points"`
	PoolSize            int                         `json:"poolSize"`
	RequestedDifficulty string                      `gorm:"size:32" json:"requestedDifficulty"`
	ServedDifficulty    string                      `gorm:"size:32" json:"servedDifficulty"`
	GeneratedAt         time.Time                   `json:"generatedAt"`
}

func (SecureAnswerKey) TableName() string {
	return "secure_answer_keys"
}

package model

import (
	"fmt"

	"gorm.io/datatypes"
)

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeShortAnswer    = "short_answer"
	QuestionTypeEssay          = "essay"
)

type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type WordLimits struct {
	Min int `json:"min,omitempty"`
	Max int `json:"max,omitempty"`
}

// QuestionPoolEntry 题库中的一道题，由课程内容维护，核心流程只读
// swagger:model QuestionPoolEntry
type QuestionPoolEntry struct {
	BaseModel
	CourseID         string                              `gorm:"size:64;index:idx_pool_assessment;not null" json:"courseId"`
	AssessmentID     string                              `gorm:"size:128;index:idx_pool_assessment;not null" json:"assessmentId"`
	QuestionKey      string                              `gorm:"size:128" json:"questionKey,omitempty"`
	QuestionType     string                              `gorm:"size:32;not null" json:"questionType"`
	Text             string                              `gorm:"type:text;not null" json:"text"`
	Options          datatypes.JSONSlice[QuestionOption] `json:"options,omitempty"`
	CorrectOptionIDs datatypes.JSONSlice[string]         `json:"correctOptionIds,omitempty"`
	Rubric           string                              `gorm:"type:text" json:"rubric,omitempty"`
	Points           int                                 `gorm:"default:0" json:"points"`
	Difficulty       string                              `gorm:"size:32;index" json:"difficulty"`
	Tags             datatypes.JSONSlice[string]         `json:"tags,omitempty"`
	MinWords         *int                                `json:"minWords,omitempty"`
	MaxWords         *int                                `json:"maxWords,omitempty"`
	SampleAnswer     string                              `gorm:"type:text" json:"sampleAnswer,omitempty"`
	Explanation      string                              `gorm:"type:text" json:"explanation,omitempty"`
	Order            int                                 `gorm:"column:sort_order;default:0" json:"order"`
}

func (QuestionPoolEntry) TableName() string {
	return "question_pool_entries"
}

// Identifier 显式 QuestionKey 优先，否则按题库中的位置生成
func (q *QuestionPoolEntry) Identifier(index int) string {
	if q.QuestionKey != "" {
		return q.QuestionKey
	}
	return fmt.Sprintf("q%d", index)
}

// PublicQuestion 学生可见的题目投影，类型上不存在正确答案与参考答案字段
type PublicQuestion struct {
	QuestionID   string           `json:"questionId"`
	QuestionType string           `json:"questionType"`
	Text         string           `json:"text"`
	Options      []QuestionOption `json:"options,omitempty"`
	Points       int              `json:"points"`
	Difficulty   string           `json:"difficulty,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	WordLimits   *WordLimits      `json:"wordLimits,omitempty"`
}

// Public 生成脱敏后的题目，limits 为最终生效的字数限制
func (q *QuestionPoolEntry) Public(id string, limits *WordLimits) PublicQuestion {
	options := make([]QuestionOption, len(q.Options))
	copy(options, q.Options)
	tags := make([]string, len(q.Tags))
	copy(tags, q.Tags)
	return PublicQuestion{
		QuestionID:   id,
		QuestionType: q.QuestionType,
		Text:         q.Text,
		Options:      options,
		Points:       q.Points,
		Difficulty:   q.Difficulty,
		Tags:         tags,
		WordLimits:   limits,
	}
}

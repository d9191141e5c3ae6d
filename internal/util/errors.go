package util

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPool               = errors.New("question pool is empty")
	ErrAssessmentConfigMissing = errors.New("assessment configuration not found")
	ErrAssessmentNotFound      = errors.New("no active question for this assessment; generate a question first")
	ErrMaxAttemptsExceeded     = errors.New("maximum attempts exceeded")
	ErrRegenerationNotAllowed  = errors.New("a question is already active and regeneration is disabled for this assessment")
	ErrWordCount               = errors.New("answer word count out of range")
	ErrInvalidOperation        = errors.New("operation must be save or submit")
	ErrGradeRecordNotFound     = errors.New("grade record not found")
	ErrAnswerKeyNotFound       = errors.New("answer key not found")
	ErrInvalidScore            = errors.New("score must be between 0 and the maximum score")
)

// MaxAttemptsError 生成题目时次数已用尽
type MaxAttemptsError struct {
	MaxAttempts int
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("Maximum attempts (%d) reached for this assessment.", e.MaxAttempts)
}

func (e *MaxAttemptsError) Unwrap() error {
	return ErrMaxAttemptsExceeded
}

// WordCountError 提交时字数不在允许区间
type WordCountError struct {
	Min   int
	Max   int
	Got   int
	Short bool
}

func (e *WordCountError) Error() string {
	if e.Short {
		return fmt.Sprintf("Answer too short. Minimum %d words required, you wrote %d words.", e.Min, e.Got)
	}
	return fmt.Sprintf("Answer too long. Maximum %d words allowed, you wrote %d words.", e.Max, e.Got)
}

func (e *WordCountError) Unwrap() error {
	return ErrWordCount
}

// IsPolicyViolation 客户端可自行修正的错误
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrMaxAttemptsExceeded) ||
		errors.Is(err, ErrWordCount) ||
		errors.Is(err, ErrRegenerationNotAllowed) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrInvalidScore)
}

// IsConfigurationError 配置类错误，不重试
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrEmptyPool) || errors.Is(err, ErrAssessmentConfigMissing)
}

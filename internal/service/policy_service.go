package service

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// AssessmentSettingSource 课程/测评级配置读取
type AssessmentSettingSource interface {
	FindSetting(ctx context.Context, courseID, assessmentID string) (*model.AssessmentSetting, error)
}

// PolicyOverrides 单次调用的覆盖项，优先级最高
type PolicyOverrides struct {
	Difficulty string
}

// PolicySnapshot 单次调用解析出的不可变策略
type PolicySnapshot struct {
	CourseID          string
	AssessmentID      string
	Title             string
	ActivityType      string
	MaxAttempts       int
	MinWords          int
	MaxWords          int
	AvoidRepetition   bool
	AllowRegeneration bool
	Difficulty        string
	Tags              []string
	MaxScore          int
}

// WordLimitsFor 题目自带限制优先于策略默认值
func (p PolicySnapshot) WordLimitsFor(entry *model.QuestionPoolEntry) *model.WordLimits {
	wl := model.WordLimits{Min: p.MinWords, Max: p.MaxWords}
	if entry.MinWords != nil {
		wl.Min = *entry.MinWords
	}
	if entry.MaxWords != nil {
		wl.Max = *entry.MaxWords
	}
	if wl.Min <= 0 && wl.Max <= 0 {
		return nil
	}
	return &wl
}

// PolicyService 按 全局默认 -> 活动类型默认 -> 测评配置 -> 调用覆盖 的顺序合并策略
type PolicyService struct {
	Settings AssessmentSettingSource
	layer    atomic.Pointer[config.AssessmentConfig]
}

func NewPolicyService(settings AssessmentSettingSource, cfg config.AssessmentConfig) *PolicyService {
	s := &PolicyService{Settings: settings}
	s.Update(cfg)
	return s
}

// Update 热更新配置层，已解析出的快照不受影响
func (s *PolicyService) Update(cfg config.AssessmentConfig) {
	c := cfg
	types := make(map[string]config.ActivityPolicy, len(cfg.ActivityTypes))
	for k, v := range cfg.ActivityTypes {
		types[strings.ToLower(k)] = v
	}
	c.ActivityTypes = types
	s.layer.Store(&c)
}

func (s *PolicyService) PreviewLength() int {
	if n := s.layer.Load().PreviewLength; n > 0 {
		return n
	}
	return 200
}

func (s *PolicyService) Resolve(ctx context.Context, courseID, assessmentID string, overrides PolicyOverrides) (PolicySnapshot, error) {
	setting, err := s.Settings.FindSetting(ctx, courseID, assessmentID)
	if err != nil {
		return PolicySnapshot{}, err
	}
	if setting == nil {
		return PolicySnapshot{}, fmt.Errorf("%s/%s: %w", courseID, assessmentID, util.ErrAssessmentConfigMissing)
	}

	cfg := s.layer.Load()
	snap := PolicySnapshot{
		CourseID:          courseID,
		AssessmentID:      assessmentID,
		Title:             setting.Title,
		ActivityType:      strings.ToLower(setting.ActivityType),
		AvoidRepetition:   true,
		AllowRegeneration: true,
		MaxScore:          setting.MaxScore,
	}

	applyActivityPolicy(&snap, cfg.Defaults)
	if p, ok := cfg.ActivityTypes[snap.ActivityType]; ok {
		applyActivityPolicy(&snap, p)
	}

	if setting.MaxAttempts != nil {
		snap.MaxAttempts = *setting.MaxAttempts
	}
	if setting.MinWords != nil {
		snap.MinWords = *setting.MinWords
	}
	if setting.MaxWords != nil {
		snap.MaxWords = *setting.MaxWords
	}
	if setting.AvoidRepetition != nil {
		snap.AvoidRepetition = *setting.AvoidRepetition
	}
	if setting.AllowRegeneration != nil {
		snap.AllowRegeneration = *setting.AllowRegeneration
	}
	snap.Difficulty = setting.DefaultDifficulty
	snap.Tags = append([]string(nil), setting.Tags...)

	if overrides.Difficulty != "" {
		snap.Difficulty = overrides.Difficulty
	}

	if snap.MaxAttempts <= 0 {
		return PolicySnapshot{}, fmt.Errorf("%s/%s: max attempts must be positive: %w", courseID, assessmentID, util.ErrAssessmentConfigMissing)
	}
	return snap, nil
}

func applyActivityPolicy(snap *PolicySnapshot, p config.ActivityPolicy) {
	if p.MaxAttempts > 0 {
		snap.MaxAttempts = p.MaxAttempts
	}
	if p.MinWords > 0 {
		snap.MinWords = p.MinWords
	}
	if p.MaxWords > 0 {
		snap.MaxWords = p.MaxWords
	}
	if p.AvoidRepetition != nil {
		snap.AvoidRepetition = *p.AvoidRepetition
	}
	if p.AllowRegeneration != nil {
		snap.AllowRegeneration = *p.AllowRegeneration
	}
}

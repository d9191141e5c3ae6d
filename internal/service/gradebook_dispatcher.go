package service

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var errGradebookQueueFull = errors.New("gradebook queue full")

// GradebookNotifier 成绩册写入接口，外部成绩册系统实现同一接口即可替换
type GradebookNotifier interface {
	UpdateGradebookItem(ctx context.Context, studentKey, courseID, assessmentID string, score *float64, itemConfig model.GradebookItemConfig) error
}

type GradebookStore interface {
	UpsertItem(ctx context.Context, item *model.GradebookItem) error
	FindItem(ctx context.Context, key model.SessionKey) (*model.GradebookItem, error)
	CreateDeadLetter(ctx context.Context, letter *model.GradebookDeadLetter) error
}

// LocalGradebook 内置成绩册，写入 gradebook_items 表
type LocalGradebook struct {
	Store GradebookStore
}

func NewLocalGradebook(store GradebookStore) *LocalGradebook {
	return &LocalGradebook{Store: store}
}

// UpdateGradebookItem 整行覆盖，未携带的标题与活动类型沿用已有条目
func (g *LocalGradebook) UpdateGradebookItem(ctx context.Context, studentKey, courseID, assessmentID string, score *float64, itemConfig model.GradebookItemConfig) error {
	existing, err := g.Store.FindItem(ctx, model.SessionKey{StudentKey: studentKey, CourseID: courseID, AssessmentID: assessmentID})
	if err != nil {
		return err
	}
	if existing != nil {
		prev := existing.ItemConfig.Data()
		if itemConfig.Title == "" {
			itemConfig.Title = prev.Title
		}
		if itemConfig.ActivityType == "" {
			itemConfig.ActivityType = prev.ActivityType
		}
	}

	return g.Store.UpsertItem(ctx, &model.GradebookItem{
		StudentKey:   studentKey,
		CourseID:     courseID,
		AssessmentID: assessmentID,
		Score:        score,
		ItemConfig:   datatypes.NewJSONType(itemConfig),
	})
}

// GradebookUpdate 一次成绩册通知
type GradebookUpdate struct {
	StudentKey   string                    `json:"studentKey"`
	CourseID     string                    `json:"courseId"`
	AssessmentID string                    `json:"assessmentId"`
	Score        *float64                  `json:"score"`
	ItemConfig   model.GradebookItemConfig `json:"itemConfig"`
}

// GradebookDispatcher 异步投递成绩册通知，失败重试，最终失败写入死信表
type GradebookDispatcher struct {
	Notifier    GradebookNotifier
	DeadLetters GradebookStore

	cfg    config.GradebookConfig
	queue  chan GradebookUpdate
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewGradebookDispatcher(notifier GradebookNotifier, deadLetters GradebookStore, cfg config.GradebookConfig) *GradebookDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}

	d := &GradebookDispatcher{
		Notifier:    notifier,
		DeadLetters: deadLetters,
		cfg:         cfg,
		queue:       make(chan GradebookUpdate, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch 不阻塞调用方，队列已满或已关闭时直接进入死信
func (d *GradebookDispatcher) Dispatch(update GradebookUpdate) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.deadLetter(update, 0, errors.New("dispatcher closed"))
		return
	}
	select {
	case d.queue <- update:
	default:
		d.deadLetter(update, 0, errGradebookQueueFull)
	}
}

// Close 停止接收新通知并等待队列中的通知处理完毕
func (d *GradebookDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *GradebookDispatcher) worker() {
	defer d.wg.Done()
	for update := range d.queue {
		d.deliver(update)
	}
}

func (d *GradebookDispatcher) deliver(update GradebookUpdate) {
	timeout := time.Duration(d.cfg.TimeoutSeconds) * time.Second
	backoff := time.Duration(d.cfg.BackoffMillis) * time.Millisecond

	var lastErr error
	attempts := 0
	for attempts <= d.cfg.MaxRetries {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		lastErr = d.Notifier.UpdateGradebookItem(ctx, update.StudentKey, update.CourseID, update.AssessmentID, update.Score, update.ItemConfig)
		cancel()
		if lastErr == nil {
			return
		}
		logger.Log.Warn("Gradebook update failed",
			zap.String("key", model.SessionKey{StudentKey: update.StudentKey, CourseID: update.CourseID, AssessmentID: update.AssessmentID}.String()),
			zap.Int("attempt", attempts),
			zap.Error(lastErr))
		if attempts <= d.cfg.MaxRetries && backoff > 0 {
			time.Sleep(backoff * time.Duration(attempts))
		}
	}
	d.deadLetter(update, attempts, lastErr)
}

func (d *GradebookDispatcher) deadLetter(update GradebookUpdate, attempts int, cause error) {
	monitoring.GradebookDeadLetters.Inc()
	logger.Log.Error("Gradebook update dead-lettered",
		zap.String("studentKey", update.StudentKey),
		zap.String("courseId", update.CourseID),
		zap.String("assessmentId", update.AssessmentID),
		zap.Int("attempts", attempts),
		zap.Error(cause))

	if d.DeadLetters == nil {
		return
	}
	payload, _ := json.Marshal(update)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.DeadLetters.CreateDeadLetter(ctx, &model.GradebookDeadLetter{
		StudentKey:   update.StudentKey,
		CourseID:     update.CourseID,
		AssessmentID: update.AssessmentID,
		Score:        update.Score,
		Payload:      string(payload),
		Attempts:     attempts,
		LastError:    cause.Error(),
	})
	if err != nil {
		logger.Log.Error("Failed to persist gradebook dead letter", zap.Error(err))
	}
}

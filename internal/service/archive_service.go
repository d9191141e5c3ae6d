package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/tracing"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	safeSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._,@+=-]*$`)
	archiveName = regexp.MustCompile(`^attempt_(\d+)_(\d{8}_\d{6})(_draft)?(?:_(\d+))?\.json$`)
)

// 同一秒内同名对象的最大重试序号
const maxArchiveSequence = 50

// ArchiveService 提交归档：每次保存/提交写入一个不可变的 JSON 对象
type ArchiveService struct {
	Storage StorageProvider
}

func NewArchiveService(storage StorageProvider) *ArchiveService {
	return &ArchiveService{Storage: storage}
}

// pathSegment 安全的 id 原样使用；其余转为 slug 并附加原始 id 的哈希，
// "~" 不在安全字符集中，两类结果不会重叠
func pathSegment(s string) string {
	if safeSegment.MatchString(s) {
		return s
	}
	base := slug.Make(s)
	if base == "" {
		base = "_"
	}
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%s~%016x", base, h.Sum64())
}

// SubmissionPrefix submissions/{courseId}/{assessmentId}/[{studentKey}/]
func SubmissionPrefix(courseID, assessmentID, studentKey string) string {
	p := path.Join(util.ArchiveRoot, pathSegment(courseID), pathSegment(assessmentID))
	if studentKey != "" {
		p = path.Join(p, pathSegment(studentKey))
	}
	return p + "/"
}

// SubmissionPath submissions/{courseId}/{assessmentId}/{studentKey}/attempt_{n}_{YYYYMMDD_HHMMSS}.json，草稿带 _draft 后缀
func SubmissionPath(r *model.SubmissionRecord) string {
	return sequencedPath(r, 0)
}

// sequencedPath seq > 0 时追加 _{seq}，用于同一秒内的重复保存
func sequencedPath(r *model.SubmissionRecord, seq int) string {
	name := fmt.Sprintf("attempt_%d_%s", r.Attempt, r.CreatedAt.UTC().Format(util.ArchiveTimeFormat))
	if r.Status == model.SubmissionDraft {
		name += "_draft"
	}
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return SubmissionPrefix(r.CourseID, r.AssessmentID, r.StudentKey) + name + ".json"
}

// Store 写入完整记录（答案不截断），返回存储路径
func (s *ArchiveService) Store(ctx context.Context, r *model.SubmissionRecord) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "archive.store")
	defer span.End()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	span.SetAttributes(attribute.Int("archive.attempt", r.Attempt))

	record := *r
	record.Path = ""
	body, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return "", err
	}

	for seq := 0; seq <= maxArchiveSequence; seq++ {
		key := sequencedPath(r, seq)
		_, err := s.Storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), util.MimeJSON)
		if errors.Is(err, ErrObjectExists) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("archive %s: %w", key, err)
		}
		span.SetAttributes(attribute.String("archive.path", key))
		r.Path = key
		return key, nil
	}
	err = fmt.Errorf("archive %s: %w", SubmissionPath(r), ErrObjectExists)
	span.RecordError(err)
	return "", err
}

type archiveEntry struct {
	key     string
	attempt int
	stamp   string
	draft   bool
	seq     int
}

func parseArchiveKey(key string) (archiveEntry, bool) {
	m := archiveName.FindStringSubmatch(path.Base(key))
	if m == nil {
		return archiveEntry{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return archiveEntry{}, false
	}
	e := archiveEntry{key: key, attempt: n, stamp: m[2], draft: m[3] != ""}
	if m[4] != "" {
		e.seq, _ = strconv.Atoi(m[4])
	}
	return e, true
}

// List 按前缀列出记录，studentKey 为空时列出整个测评，按作答次数、时间排序
func (s *ArchiveService) List(ctx context.Context, courseID, assessmentID, studentKey string) ([]model.SubmissionRecord, error) {
	keys, err := s.Storage.List(ctx, SubmissionPrefix(courseID, assessmentID, studentKey))
	if err != nil {
		return nil, err
	}

	entries := make([]archiveEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := parseArchiveKey(k); ok {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.attempt != b.attempt {
			return a.attempt < b.attempt
		}
		if a.stamp != b.stamp {
			return a.stamp < b.stamp
		}
		if a.draft != b.draft {
			return a.draft
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.key < b.key
	})

	records := make([]model.SubmissionRecord, 0, len(entries))
	for _, e := range entries {
		body, err := s.Storage.Download(ctx, e.key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.key, err)
		}
		var r model.SubmissionRecord
		if err := json.Unmarshal(body, &r); err != nil {
			// 损坏的对象跳过，不影响其余记录
			logger.Log.Warn("Skipping unreadable archive record", zap.String("path", e.key), zap.Error(err))
			continue
		}
		if r.CourseID != courseID || r.AssessmentID != assessmentID || (studentKey != "" && r.StudentKey != studentKey) {
			logger.Log.Warn("Skipping archive record outside prefix owner",
				zap.String("path", e.key),
				zap.String("student_key", r.StudentKey),
				zap.String("course_id", r.CourseID),
				zap.String("assessment_id", r.AssessmentID))
			continue
		}
		r.Path = e.key
		records = append(records, r)
	}
	return records, nil
}

package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"assessment_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret   = "integration-secret-integration-secret"
	secretAnswer = "SECRET-SAMPLE-ANSWER"
	assessPath   = "/courses/phys101/assessments/essay-1"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	app     *App
	student string
	teacher string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.Models()...))

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		JWT:       config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Storage:   config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()},
		RateLimit: config.RateLimitConfig{MaxRequests: 10000, WindowMinutes: 1},
		Assessment: config.AssessmentConfig{
			Defaults: config.ActivityPolicy{MaxAttempts: 1},
			ActivityTypes: map[string]config.ActivityPolicy{
				"assignment": {MaxAttempts: 2, MinWords: 100, MaxWords: 500},
			},
			PreviewLength: 200,
		},
		Gradebook: config.GradebookConfig{Workers: 1, QueueSize: 16},
	}

	a := Build(cfg, db, nil)
	t.Cleanup(a.Close)

	student, err := util.GenerateJWT("stu-1", model.Student, "stu-1@example.edu", testSecret, time.Hour)
	require.NoError(t, err)
	teacher, err := util.GenerateJWT("teacher-1", model.Teacher, "t@example.edu", testSecret, time.Hour)
	require.NoError(t, err)
	return &testServer{t: t, app: a, student: student, teacher: teacher}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope, string) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var env envelope
	raw := w.Body.String()
	if raw != "" && strings.HasPrefix(strings.TrimSpace(raw), "{") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env, raw
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func (s *testServer) seed() {
	s.t.Helper()
	code, _, _ := s.do(http.MethodPut, "/api/teacher"+assessPath+"/config", s.teacher, gin.H{
		"title": "Essay 1", "activityType": "assignment", "maxScore": 10,
	})
	require.Equal(s.t, http.StatusOK, code)

	code, _, _ = s.do(http.MethodPost, "/api/teacher"+assessPath+"/questions", s.teacher, gin.H{
		"questions": []gin.H{
			{"questionType": "essay", "text": "Discuss Newton's first law", "points": 10, "sampleAnswer": secretAnswer},
			{"questionType": "essay", "text": "Discuss momentum", "points": 10, "sampleAnswer": secretAnswer},
		},
	})
	require.Equal(s.t, http.StatusCreated, code)
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	code, env, raw := s.do(http.MethodPost, "/api"+assessPath+"/generate", s.student, nil)
	require.Equal(t, http.StatusOK, code, raw)
	assert.NotContains(t, raw, secretAnswer)
	var gen struct {
		Success           bool `json:"success"`
		QuestionGenerated bool `json:"questionGenerated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &gen))
	assert.True(t, gen.QuestionGenerated)

	code, _, raw = s.do(http.MethodGet, "/api"+assessPath+"/state", s.student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, raw, secretAnswer)
	assert.Contains(t, raw, `"attempts":0`)

	code, _, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(50), "operation": "save"})
	assert.Equal(t, http.StatusOK, code)

	code, env, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(50), "operation": "submit"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Answer too short. Minimum 100 words required, you wrote 50 words.", env.Message)

	code, env, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(120), "operation": "submit"})
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Submitted         bool `json:"submitted"`
		AttemptsRemaining int  `json:"attemptsRemaining"`
		Archived          bool `json:"archived"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Submitted)
	assert.True(t, res.Archived)
	assert.Equal(t, 1, res.AttemptsRemaining)

	code, env, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(120), "operation": "submit"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Answer already submitted. Generate a new question to start another attempt.", env.Message)

	// 教师端
	code, env, _ = s.do(http.MethodGet, "/api/teacher"+assessPath+"/submissions?studentKey=stu-1", s.teacher, nil)
	require.Equal(t, http.StatusOK, code)
	var records []model.SubmissionRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, model.SubmissionDraft, records[0].Status)
	assert.Equal(t, model.SubmissionSubmitted, records[1].Status)
	assert.Equal(t, words(120), records[1].Answer)

	code, env, _ = s.do(http.MethodGet, "/api/teacher"+assessPath+"/grades?pending=true", s.teacher, nil)
	require.Equal(t, http.StatusOK, code)
	var grades []model.GradeRecord
	require.NoError(t, json.Unmarshal(env.Data, &grades))
	require.Len(t, grades, 1)
	assert.Equal(t, 10, grades[0].MaxScore)

	code, _, raw = s.do(http.MethodGet, "/api/teacher"+assessPath+"/students/stu-1/answer-key", s.teacher, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, secretAnswer)

	code, _, _ = s.do(http.MethodPost, "/api/teacher"+assessPath+"/students/stu-1/grade", s.teacher, gin.H{"score": 11})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _, _ = s.do(http.MethodPost, "/api/teacher"+assessPath+"/students/stu-1/grade", s.teacher, gin.H{"score": 8, "feedback": "clear"})
	assert.Equal(t, http.StatusOK, code)

	code, env, _ = s.do(http.MethodGet, "/api/teacher"+assessPath+"/grades?pending=true", s.teacher, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(env.Data))

	// 批改后的成绩册条目保留提交时写入的标题与活动类型
	var item model.GradebookItem
	require.Eventually(t, func() bool {
		var found model.GradebookItem
		err := s.app.DB.Where("student_key = ? AND course_id = ? AND assessment_id = ?", "stu-1", "phys101", "essay-1").First(&found).Error
		if err != nil || found.Score == nil {
			return false
		}
		item = found
		return true
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 8.0, *item.Score)
	assert.Equal(t, "Essay 1", item.ItemConfig.Data().Title)
	assert.Equal(t, "assignment", item.ItemConfig.Data().ActivityType)
}

func TestDeadLetters(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.app.DB.Create(&model.GradebookDeadLetter{
		StudentKey: "stu-1", CourseID: "phys101", AssessmentID: "essay-1", Attempts: 4, LastError: "gradebook unavailable",
	}).Error)
	require.NoError(t, s.app.DB.Create(&model.GradebookDeadLetter{
		StudentKey: "stu-2", CourseID: "chem200", AssessmentID: "lab-1", Attempts: 4, LastError: "timeout",
	}).Error)

	code, env, _ := s.do(http.MethodGet, "/api/teacher/courses/phys101/gradebook/dead-letters", s.teacher, nil)
	require.Equal(t, http.StatusOK, code)
	var letters []model.GradebookDeadLetter
	require.NoError(t, json.Unmarshal(env.Data, &letters))
	require.Len(t, letters, 1)
	assert.Equal(t, "stu-1", letters[0].StudentKey)
	assert.Equal(t, "gradebook unavailable", letters[0].LastError)

	code, _, _ = s.do(http.MethodGet, "/api/teacher/courses/phys101/gradebook/dead-letters", s.student, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSessionErrors(t *testing.T) {
	s := newTestServer(t)

	code, env, _ := s.do(http.MethodPost, "/api/courses/phys101/assessments/unknown/generate", s.student, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.True(t, strings.HasPrefix(env.Message, "Error generating question: "), env.Message)

	code, _, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": "hi", "operation": "save"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": "hi", "operation": "publish"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = s.do(http.MethodGet, "/api"+assessPath+"/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = s.do(http.MethodGet, "/api/teacher"+assessPath+"/grades", s.student, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = s.do(http.MethodPut, "/api/teacher"+assessPath+"/config", s.teacher, gin.H{"activityType": "survey"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExhaustedGenerate(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	for i := 0; i < 2; i++ {
		code, _, raw := s.do(http.MethodPost, "/api"+assessPath+"/generate", s.student, nil)
		require.Equal(t, http.StatusOK, code, raw)
		code, _, raw = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(150), "operation": "submit"})
		require.Equal(t, http.StatusOK, code, raw)
	}

	code, env, _ := s.do(http.MethodPost, "/api"+assessPath+"/generate", s.student, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Maximum attempts (2) reached for this assessment.", env.Message)

	code, env, _ = s.do(http.MethodPost, "/api"+assessPath+"/answer", s.student, gin.H{"answer": words(150), "operation": "submit"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Maximum attempts exceeded", env.Message)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, _, raw := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, `"database":"up"`)
}

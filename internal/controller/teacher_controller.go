package controller

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type TeacherController struct {
	AdminService   *service.AssessmentAdminService
	GradingService *service.GradingService
}

func NewTeacherController(adminService *service.AssessmentAdminService, gradingService *service.GradingService) *TeacherController {
	return &TeacherController{AdminService: adminService, GradingService: gradingService}
}

type settingRequest struct {
	Title             string   `json:"title"`
	ActivityType      string   `json:"activityType" binding:"required"`
	MaxAttempts       *int     `json:"maxAttempts"`
	MinWords          *int     `json:"minWords"`
	MaxWords          *int     `json:"maxWords"`
	AvoidRepetition   *bool    `json:"avoidRepetition"`
	AllowRegeneration *bool    `json:"allowRegeneration"`
	DefaultDifficulty string   `json:"defaultDifficulty"`
	Tags              []string `json:"tags"`
	MaxScore          int      `json:"maxScore"`
}

type addQuestionsRequest struct {
	Questions []model.QuestionPoolEntry `json:"questions" binding:"required"`
}

type gradeRequest struct {
	Score    *float64 `json:"score" binding:"required"`
	Feedback string   `json:"feedback"`
}

// @Summary 设置测评配置
// @Tags 教师-测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param body body settingRequest true "配置"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/config [put]
func (c *TeacherController) PutConfig(ctx *gin.Context) {
	var req settingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	setting := &model.AssessmentSetting{
		CourseID:          ctx.Param("courseId"),
		AssessmentID:      ctx.Param("assessmentId"),
		Title:             req.Title,
		ActivityType:      req.ActivityType,
		MaxAttempts:       req.MaxAttempts,
		MinWords:          req.MinWords,
		MaxWords:          req.MaxWords,
		AvoidRepetition:   req.AvoidRepetition,
		AllowRegeneration: req.AllowRegeneration,
		DefaultDifficulty: req.DefaultDifficulty,
		Tags:              datatypes.JSONSlice[string](req.Tags),
		MaxScore:          req.MaxScore,
	}
	if err := c.AdminService.UpsertSetting(ctx.Request.Context(), setting); err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, setting)
}

// @Summary 添加题库题目
// @Tags 教师-测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param body body addQuestionsRequest true "题目列表"
// @Success 201 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/questions [post]
func (c *TeacherController) AddQuestions(ctx *gin.Context) {
	var req addQuestionsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.AdminService.AddQuestions(ctx.Request.Context(), ctx.Param("courseId"), ctx.Param("assessmentId"), req.Questions); err != nil {
		writeError(ctx, err)
		return
	}
	util.Created(ctx, req.Questions)
}

// @Summary 题库列表（含答案）
// @Tags 教师-测评
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/questions [get]
func (c *TeacherController) ListQuestions(ctx *gin.Context) {
	entries, err := c.AdminService.ListQuestions(ctx.Request.Context(), ctx.Param("courseId"), ctx.Param("assessmentId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}

// @Summary 提交归档列表
// @Tags 教师-批改
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param studentKey query string false "学生标识，为空时列出全部"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/submissions [get]
func (c *TeacherController) ListSubmissions(ctx *gin.Context) {
	records, err := c.GradingService.ListSubmissions(ctx.Request.Context(), ctx.Param("courseId"), ctx.Param("assessmentId"), ctx.Query("studentKey"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, records)
}

// @Summary 成绩记录列表
// @Tags 教师-批改
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param pending query bool false "只看待批改"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/grades [get]
func (c *TeacherController) ListGrades(ctx *gin.Context) {
	pending := ctx.Query("pending") == "true"
	records, err := c.GradingService.ListGrades(ctx.Request.Context(), ctx.Param("courseId"), ctx.Param("assessmentId"), pending)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, records)
}

// @Summary 查看学生当前题目的答案
// @Tags 教师-批改
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param studentKey path string true "学生标识"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/students/{studentKey}/answer-key [get]
func (c *TeacherController) GetAnswerKey(ctx *gin.Context) {
	key, err := c.GradingService.GetAnswerKey(ctx.Request.Context(), studentSessionKey(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, key)
}

// @Summary 人工批改
// @Tags 教师-批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param studentKey path string true "学生标识"
// @Param body body gradeRequest true "分数与评语"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/assessments/{assessmentId}/students/{studentKey}/grade [post]
func (c *TeacherController) Grade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req gradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	record, err := c.GradingService.Grade(ctx.Request.Context(), studentSessionKey(ctx), *req.Score, req.Feedback, user.StudentKey)
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, record)
}

// @Summary 成绩册死信列表
// @Tags 教师-批改
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{courseId}/gradebook/dead-letters [get]
func (c *TeacherController) ListDeadLetters(ctx *gin.Context) {
	letters, err := c.GradingService.ListDeadLetters(ctx.Request.Context(), ctx.Param("courseId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, letters)
}

func studentSessionKey(ctx *gin.Context) model.SessionKey {
	return model.SessionKey{
		StudentKey:   ctx.Param("studentKey"),
		CourseID:     ctx.Param("courseId"),
		AssessmentID: ctx.Param("assessmentId"),
	}
}

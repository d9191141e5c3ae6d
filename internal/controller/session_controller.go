package controller

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
}

func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{SessionService: sessionService}
}

type generateRequest struct {
	Difficulty string `json:"difficulty"`
}

type answerRequest struct {
	Answer    string `json:"answer"`
	Operation string `json:"operation" binding:"required"`
}

// @Summary 生成测评题目
// @Description 从题库中选出一道题，次数不变
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param body body generateRequest false "难度"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/courses/{courseId}/assessments/{assessmentId}/generate [post]
func (c *SessionController) Generate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req generateRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	result, err := c.SessionService.Generate(ctx.Request.Context(), service.GenerateRequest{
		StudentKey:   user.StudentKey,
		CourseID:     ctx.Param("courseId"),
		AssessmentID: ctx.Param("assessmentId"),
		Difficulty:   req.Difficulty,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 保存或提交答案
// @Description operation 为 save 时保存草稿，为 submit 时提交并消耗一次次数
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Param body body answerRequest true "答案"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/courses/{courseId}/assessments/{assessmentId}/answer [post]
func (c *SessionController) Answer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req answerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SessionService.Answer(ctx.Request.Context(), service.AnswerRequest{
		StudentKey:   user.StudentKey,
		CourseID:     ctx.Param("courseId"),
		AssessmentID: ctx.Param("assessmentId"),
		Answer:       req.Answer,
		Operation:    req.Operation,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !result.Success {
		util.ErrorWithData(ctx, http.StatusConflict, result.Error, result)
		return
	}
	util.Success(ctx, result)
}

// @Summary 获取当前作答状态
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "课程ID"
// @Param assessmentId path string true "测评ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/courses/{courseId}/assessments/{assessmentId}/state [get]
func (c *SessionController) GetState(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.GetState(ctx.Request.Context(), model.SessionKey{
		StudentKey:   user.StudentKey,
		CourseID:     ctx.Param("courseId"),
		AssessmentID: ctx.Param("assessmentId"),
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

package controller

import (
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// writeError 将业务错误映射为 HTTP 状态码
func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrMaxAttemptsExceeded),
		errors.Is(err, util.ErrRegenerationNotAllowed):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLockTimeout):
		util.Error(ctx, http.StatusConflict, "Another request for this assessment is in progress")
	case errors.Is(err, util.ErrWordCount),
		errors.Is(err, util.ErrInvalidOperation),
		errors.Is(err, util.ErrInvalidScore),
		errors.Is(err, service.ErrInvalidSetting),
		errors.Is(err, service.ErrInvalidQuestion):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrAssessmentNotFound),
		errors.Is(err, util.ErrGradeRecordNotFound),
		errors.Is(err, util.ErrAnswerKeyNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case util.IsConfigurationError(err):
		util.Error(ctx, http.StatusInternalServerError, "Error generating question: "+err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

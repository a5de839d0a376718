package controller

import (
	"english_exam_backend/internal/engine"
	"english_exam_backend/internal/service"
	"english_exam_backend/internal/util"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionController 学生端作答接口。带 token 按属主会话处理，
// 不带 token 以匿名身份作答（仅限对匿名可见的试卷）。
type SessionController struct {
	SessionService *service.SessionService
	ExamService    *service.ExamService
}

func NewSessionController(sessionService *service.SessionService, examService *service.ExamService) *SessionController {
	return &SessionController{
		SessionService: sessionService,
		ExamService:    examService,
	}
}

func currentUserID(ctx *gin.Context) *uint {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}

// ListExams godoc
// @Summary 可作答的试卷列表
// @Description 只返回已发布试卷
// @Tags 作答
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exams [get]
func (c *SessionController) ListExams(ctx *gin.Context) {
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	rows, total, err := c.ExamService.ListExams(page, limit, true)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// StartSession godoc
// @Summary 开始作答
// @Description 校验试卷可见性后创建 attempt 并进入第一章
// @Tags 作答
// @Produce json
// @Param id path string true "试卷ID"
// @Success 201 {object} util.Response{data=engine.View}
// @Failure 403 {object} util.Response "试卷对当前身份不可见"
// @Failure 404 {object} util.Response "试卷不存在或未发布"
// @Router /api/exams/{id}/sessions [post]
func (c *SessionController) StartSession(ctx *gin.Context) {
	eng, err := c.SessionService.StartSession(ctx.Request.Context(), ctx.Param("id"), currentUserID(ctx))
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Created(ctx, eng.CurrentView())
}

// GetSession godoc
// @Summary 当前会话状态与视图
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=engine.View}
// @Failure 404 {object} util.Response
// @Router /api/sessions/{attemptId} [get]
func (c *SessionController) GetSession(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}
	util.Success(ctx, eng.CurrentView())
}

// swagger:model AnswerRequest
type AnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Value      string `json:"value"`
}

// RecordAnswer godoc
// @Summary 记录答案草稿
// @Description 幂等覆盖，持久化发生在子项/章节边界
// @Tags 作答
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param body body AnswerRequest true "题目与所选选项"
// @Success 200 {object} util.Response{data=engine.Snapshot}
// @Failure 400 {object} util.Response "未知题目"
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/sessions/{attemptId}/answers [post]
func (c *SessionController) RecordAnswer(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := eng.RecordAnswer(req.QuestionID, req.Value); err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, eng.Snapshot())
}

// swagger:model NextRequest
type NextRequest struct {
	// Confirm 在章节边界仍有未答题时明确表示“仍然继续”
	Confirm bool `json:"confirm"`
}

// Next godoc
// @Summary 前进
// @Description 章节边界有未答题时返回 blocked=true，带 confirm 重试可越过
// @Tags 作答
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param body body NextRequest false "确认标志"
// @Success 200 {object} util.Response{data=engine.NextResult}
// @Failure 409 {object} util.Response "音频未播完或会话已结束"
// @Router /api/sessions/{attemptId}/next [post]
func (c *SessionController) Next(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	var req NextRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	res, err := eng.Next(ctx.Request.Context(), req.Confirm)
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// Prev godoc
// @Summary 回退到本章上一子项
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=engine.Snapshot}
// @Failure 409 {object} util.Response "已在本章第一个子项"
// @Router /api/sessions/{attemptId}/prev [post]
func (c *SessionController) Prev(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	snap, err := eng.Prev()
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// Play godoc
// @Summary 开始播放听力音频
// @Description 上锁并标记该 piece 已消耗；自动播放被拦截后也走这里手动触发
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=engine.Snapshot}
// @Failure 409 {object} util.Response "当前不在可播放状态"
// @Router /api/sessions/{attemptId}/audio/play [post]
func (c *SessionController) Play(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	snap, err := eng.Play()
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, snap)
}

// swagger:model AutoplayFailedRequest
type AutoplayFailedRequest struct {
	Reason string `json:"reason"`
}

// AutoplayFailed godoc
// @Summary 上报自动播放失败
// @Description 降级为手动播放，不视为错误
// @Tags 作答
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param body body AutoplayFailedRequest false "失败原因"
// @Success 200 {object} util.Response{data=engine.Snapshot}
// @Router /api/sessions/{attemptId}/audio/autoplay-failed [post]
func (c *SessionController) AutoplayFailed(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	var req AutoplayFailedRequest
	if ctx.Request.ContentLength > 0 {
		ctx.ShouldBindJSON(&req)
	}

	eng.AutoplayFailed(req.Reason)
	util.Success(ctx, eng.Snapshot())
}

// swagger:model AudioPositionRequest
type AudioPositionRequest struct {
	Position float64 `json:"position"`
}

// AudioProgress godoc
// @Summary 上报播放进度
// @Description 进度只进不退，返回服务端认定的最远位置
// @Tags 作答
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param body body AudioPositionRequest true "当前位置（秒）"
// @Success 200 {object} util.Response{data=object}
// @Router /api/sessions/{attemptId}/audio/progress [post]
func (c *SessionController) AudioProgress(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	var req AudioPositionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	pos := eng.AudioProgress(req.Position)
	util.Success(ctx, gin.H{"position": pos})
}

// AudioPause godoc
// @Summary 暂停请求
// @Description 锁定期间一律驳回并返回应恢复播放的位置
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=object}
// @Router /api/sessions/{attemptId}/audio/pause [post]
func (c *SessionController) AudioPause(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	resumeAt, denied := eng.AudioPauseAttempt()
	util.Success(ctx, gin.H{"denied": denied, "resumeAt": resumeAt})
}

// swagger:model AudioSeekRequest
type AudioSeekRequest struct {
	Target float64 `json:"target"`
}

// AudioSeek godoc
// @Summary 拖动请求
// @Description 锁定期间被钳制到已知最远位置
// @Tags 作答
// @Accept json
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Param body body AudioSeekRequest true "目标位置（秒）"
// @Success 200 {object} util.Response{data=object}
// @Router /api/sessions/{attemptId}/audio/seek [post]
func (c *SessionController) AudioSeek(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	var req AudioSeekRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	pos := eng.AudioSeekAttempt(req.Target)
	util.Success(ctx, gin.H{"position": pos})
}

// AudioEnded godoc
// @Summary 播放自然结束
// @Description 释放音频锁并进入作答态
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=engine.View}
// @Failure 409 {object} util.Response "当前不在播放状态"
// @Router /api/sessions/{attemptId}/audio/ended [post]
func (c *SessionController) AudioEnded(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	if _, err := eng.AudioEnded(); err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, eng.CurrentView())
}

// Finalize godoc
// @Summary 结算
// @Description 正常走完全卷会自动结算，这里是自动结算失败后的重试入口
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response{data=engine.ResultUpsert}
// @Failure 409 {object} util.Response "会话尚未走到终态"
// @Router /api/sessions/{attemptId}/finalize [post]
func (c *SessionController) Finalize(ctx *gin.Context) {
	eng, err := c.engine(ctx)
	if err != nil {
		return
	}

	result, err := eng.Finalize(ctx.Request.Context())
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// CloseSession godoc
// @Summary 放弃会话
// @Description 回收内存中的引擎，未结算的 attempt 保持 in_progress
// @Tags 作答
// @Produce json
// @Param attemptId path string true "Attempt ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{attemptId} [delete]
func (c *SessionController) CloseSession(ctx *gin.Context) {
	if err := c.SessionService.CloseSession(ctx.Param("attemptId"), currentUserID(ctx)); err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListAttempts godoc
// @Summary 我的作答记录
// @Tags 作答
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/attempts [get]
func (c *SessionController) ListAttempts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	attempts, total, err := c.SessionService.ListAttempts(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: attempts, Total: total, Page: page, Limit: limit})
}

// ListExamAttempts godoc
// @Summary 试卷作答记录
// @Description 管理端按试卷查看全部作答与成绩
// @Tags 管理-试卷
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Exam ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id}/attempts [get]
func (c *SessionController) ListExamAttempts(ctx *gin.Context) {
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	attempts, total, err := c.SessionService.ListExamAttempts(ctx.Param("id"), page, limit)
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: attempts, Total: total, Page: page, Limit: limit})
}

// GetReview godoc
// @Summary 成绩回看
// @Description 仅已完成的 attempt 可回看，回看视图包含听力原文与双语解析
// @Tags 作答
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} util.Response{data=service.AttemptReview}
// @Failure 403 {object} util.Response "不是本人的作答"
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "作答尚未完成"
// @Router /api/attempts/{id}/review [get]
func (c *SessionController) GetReview(ctx *gin.Context) {
	review, err := c.SessionService.GetReview(ctx.Param("id"), currentUserID(ctx))
	if err != nil {
		c.renderSessionError(ctx, err)
		return
	}
	util.Success(ctx, review)
}

// engine 取会话并校验属主，失败时已写响应。
func (c *SessionController) engine(ctx *gin.Context) (*engine.Engine, error) {
	eng, err := c.SessionService.GetEngine(ctx.Param("attemptId"), currentUserID(ctx))
	if err != nil {
		c.renderSessionError(ctx, err)
		return nil, err
	}
	return eng, nil
}

// renderSessionError 把引擎与服务层错误映射到 HTTP 状态码。
func (c *SessionController) renderSessionError(ctx *gin.Context, err error) {
	var initErr *engine.SessionInitError
	switch {
	case errors.Is(err, util.ErrExamNotFound), errors.Is(err, util.ErrExamNotPublished),
		errors.Is(err, util.ErrSessionNotFound), errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrSessionNotYours), errors.Is(err, util.ErrPermissionDenied),
		errors.Is(err, util.ErrExamNotAccessible), errors.Is(err, util.ErrSubscriptionRequired):
		util.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, engine.ErrUnknownQuestion):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, engine.ErrSessionFinished), errors.Is(err, engine.ErrAudioRequired),
		errors.Is(err, engine.ErrNoPrevSubItem), errors.Is(err, engine.ErrBadTransition),
		errors.Is(err, util.ErrAttemptNotCompleted):
		util.Conflict(ctx, err.Error())
	case errors.As(err, &initErr):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

package controller

import (
	"english_exam_backend/internal/model"
	"english_exam_backend/internal/service"
	"english_exam_backend/internal/util"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
)

// ExamController 管理端试卷编辑接口，全部要求 admin 角色。
type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// swagger:model ExamRequest
type ExamRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=all subscribers non_subscribers"`
}

// CreateExam godoc
// @Summary 创建试卷
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body ExamRequest true "试卷信息"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response
// @Router /api/admin/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	var req ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	exam := &model.Exam{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  model.ExamVisibility(req.Visibility),
		CreatorID:   claims.UserID,
	}
	if err := c.ExamService.CreateExam(exam); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, exam)
}

// ListExams godoc
// @Summary 试卷列表（含未发布）
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/admin/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	page, limit := util.ParsePagination(ctx.Query("page"), ctx.Query("limit"))
	rows, total, err := c.ExamService.ListExams(page, limit, false)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// GetExamTree godoc
// @Summary 完整试卷树（含答案与解析，管理端视图）
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/admin/exams/{id} [get]
func (c *ExamController) GetExamTree(ctx *gin.Context) {
	tree, err := c.ExamService.GetExamTree(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, tree)
}

// UpdateExam godoc
// @Summary 更新试卷基本信息
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Param body body ExamRequest true "试卷信息"
// @Success 200 {object} util.Response{data=model.Exam}
// @Router /api/admin/exams/{id} [put]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	exam, err := c.ExamService.GetExam(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	var req ExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam.Title = req.Title
	exam.Description = req.Description
	if req.Visibility != "" {
		exam.Visibility = model.ExamVisibility(req.Visibility)
	}
	if err := c.ExamService.UpdateExam(exam); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

// DeleteExam godoc
// @Summary 删除试卷及其全部章节
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Success 200 {object} util.Response
// @Router /api/admin/exams/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	if err := c.ExamService.DeleteExam(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// SetPublished godoc
// @Summary 发布或下线试卷
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "试卷ID"
// @Param body body object true "{\"published\": true}"
// @Success 200 {object} util.Response
// @Router /api/admin/exams/{id}/publish [post]
func (c *ExamController) SetPublished(ctx *gin.Context) {
	var req struct {
		Published bool `json:"published"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.ExamService.SetPublished(ctx.Param("id"), req.Published); err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"published": req.Published})
}

// ImportExam godoc
// @Summary 整卷 JSON 导入
// @Description 一次导入全部章节、素材与题目，章节载荷按 type 判别
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.ImportedExam true "整卷载荷"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response "载荷校验失败"
// @Router /api/admin/exams/import [post]
func (c *ExamController) ImportExam(ctx *gin.Context) {
	var payload service.ImportedExam
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	exam, err := c.ExamService.ImportExam(&payload, claims.UserID)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, exam)
}

// swagger:model ChapterRequest
type ChapterRequest struct {
	ExamID          string `json:"examId" binding:"required"`
	Idx             int    `json:"idx"`
	Type            string `json:"type" binding:"required,oneof=listening reading grammar"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"durationSeconds"`
}

// CreateChapter godoc
// @Summary 新建章节
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body ChapterRequest true "章节信息"
// @Success 201 {object} util.Response{data=model.ExamChapter}
// @Router /api/admin/chapters [post]
func (c *ExamController) CreateChapter(ctx *gin.Context) {
	var req ChapterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	chapter := &model.ExamChapter{
		ExamID:          req.ExamID,
		Idx:             req.Idx,
		Type:            model.ChapterType(req.Type),
		Title:           req.Title,
		DurationSeconds: req.DurationSeconds,
	}
	if err := c.ExamService.CreateChapter(chapter); err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Created(ctx, chapter)
}

// UpdateChapter godoc
// @Summary 更新章节
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "章节ID"
// @Param body body ChapterRequest true "章节信息"
// @Success 200 {object} util.Response{data=model.ExamChapter}
// @Router /api/admin/chapters/{id} [put]
func (c *ExamController) UpdateChapter(ctx *gin.Context) {
	chapter, err := c.ExamService.ExamRepo.FindChapterByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}

	var req ChapterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	chapter.Idx = req.Idx
	chapter.Type = model.ChapterType(req.Type)
	chapter.Title = req.Title
	chapter.DurationSeconds = req.DurationSeconds
	if err := c.ExamService.UpdateChapter(chapter); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, chapter)
}

// DeleteChapter godoc
// @Summary 删除章节及其素材与题目
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "章节ID"
// @Success 200 {object} util.Response
// @Router /api/admin/chapters/{id} [delete]
func (c *ExamController) DeleteChapter(ctx *gin.Context) {
	if err := c.ExamService.DeleteChapter(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// swagger:model PieceRequest
type PieceRequest struct {
	ChapterID  string   `json:"chapterId" binding:"required"`
	Idx        int      `json:"idx"`
	Title      string   `json:"title"`
	AudioURL   string   `json:"audioUrl"`
	Transcript string   `json:"transcript"`
	Passage    string   `json:"passage"`
	Paragraphs []string `json:"paragraphs"`
}

// CreatePiece godoc
// @Summary 新建听力/阅读素材
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body PieceRequest true "素材信息"
// @Success 201 {object} util.Response{data=model.ExamPiece}
// @Router /api/admin/pieces [post]
func (c *ExamController) CreatePiece(ctx *gin.Context) {
	var req PieceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	piece := &model.ExamPiece{
		ChapterID:  req.ChapterID,
		Idx:        req.Idx,
		Title:      req.Title,
		AudioURL:   req.AudioURL,
		Transcript: req.Transcript,
		Passage:    req.Passage,
	}
	if len(req.Paragraphs) > 0 {
		piece.Paragraphs, _ = json.Marshal(req.Paragraphs)
	}
	if err := c.ExamService.CreatePiece(piece); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, piece)
}

// UpdatePiece godoc
// @Summary 更新素材
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "素材ID"
// @Param body body PieceRequest true "素材信息"
// @Success 200 {object} util.Response{data=model.ExamPiece}
// @Router /api/admin/pieces/{id} [put]
func (c *ExamController) UpdatePiece(ctx *gin.Context) {
	piece, err := c.ExamService.ExamRepo.FindPieceByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}

	var req PieceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	piece.Idx = req.Idx
	piece.Title = req.Title
	piece.AudioURL = req.AudioURL
	piece.Transcript = req.Transcript
	piece.Passage = req.Passage
	if len(req.Paragraphs) > 0 {
		piece.Paragraphs, _ = json.Marshal(req.Paragraphs)
	}
	if err := c.ExamService.UpdatePiece(piece); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, piece)
}

// DeletePiece godoc
// @Summary 删除素材及其题目
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "素材ID"
// @Success 200 {object} util.Response
// @Router /api/admin/pieces/{id} [delete]
func (c *ExamController) DeletePiece(ctx *gin.Context) {
	if err := c.ExamService.DeletePiece(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// swagger:model QuestionRequest
type QuestionRequest struct {
	ChapterID     string   `json:"chapterId" binding:"required"`
	PieceID       *string  `json:"pieceId"`
	Idx           int      `json:"idx"`
	Content       string   `json:"content" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2"`
	Answer        string   `json:"answer" binding:"required"`
	Hint          string   `json:"hint"`
	Explanation   string   `json:"explanation"`
	ExplanationZh string   `json:"explanationZh"`
	Points        int      `json:"points"`
}

// CreateQuestion godoc
// @Summary 新建题目
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body QuestionRequest true "题目信息"
// @Success 201 {object} util.Response{data=model.ExamQuestion}
// @Router /api/admin/questions [post]
func (c *ExamController) CreateQuestion(ctx *gin.Context) {
	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	options, _ := json.Marshal(req.Options)
	question := &model.ExamQuestion{
		ChapterID:     req.ChapterID,
		PieceID:       req.PieceID,
		Idx:           req.Idx,
		Content:       req.Content,
		Options:       options,
		Answer:        req.Answer,
		Hint:          req.Hint,
		Explanation:   req.Explanation,
		ExplanationZh: req.ExplanationZh,
		Points:        req.Points,
	}
	if err := c.ExamService.CreateQuestion(question); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, question)
}

// UpdateQuestion godoc
// @Summary 更新题目
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "题目ID"
// @Param body body QuestionRequest true "题目信息"
// @Success 200 {object} util.Response{data=model.ExamQuestion}
// @Router /api/admin/questions/{id} [put]
func (c *ExamController) UpdateQuestion(ctx *gin.Context) {
	question, err := c.ExamService.ExamRepo.FindQuestionByID(ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}

	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	question.Idx = req.Idx
	question.Content = req.Content
	question.Options, _ = json.Marshal(req.Options)
	question.Answer = req.Answer
	question.Hint = req.Hint
	question.Explanation = req.Explanation
	question.ExplanationZh = req.ExplanationZh
	question.Points = req.Points
	if err := c.ExamService.UpdateQuestion(question); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, question)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/admin/questions/{id} [delete]
func (c *ExamController) DeleteQuestion(ctx *gin.Context) {
	if err := c.ExamService.DeleteQuestion(ctx.Param("id")); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// UploadAudio godoc
// @Summary 上传听力音频
// @Description 音频入库前会做 ffmpeg 探测，返回时长与格式
// @Tags 试卷管理
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "音频文件"
// @Param pieceId formData string false "直接挂到指定素材"
// @Success 201 {object} util.Response{data=service.AudioUploadResult}
// @Failure 400 {object} util.Response "文件类型不支持"
// @Router /api/admin/audio [post]
func (c *ExamController) UploadAudio(ctx *gin.Context) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	result, err := c.ExamService.UploadAudio(ctx.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if pieceID := ctx.PostForm("pieceId"); pieceID != "" {
		if err := c.ExamService.AttachAudioToPiece(pieceID, result.URL, result.Duration); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	util.Created(ctx, result)
}

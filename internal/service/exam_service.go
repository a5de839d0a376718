package service

import (
	"english_exam_backend/internal/model"
	"english_exam_backend/internal/repository"
	"english_exam_backend/internal/util"
	"english_exam_backend/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	ExamRepo *repository.ExamRepository
	Storage  *StorageService
}

func NewExamService(examRepo *repository.ExamRepository, storage *StorageService) *ExamService {
	return &ExamService{
		ExamRepo: examRepo,
		Storage:  storage,
	}
}

func (s *ExamService) CreateExam(exam *model.Exam) error {
	if exam.Visibility == "" {
		exam.Visibility = model.VisibilityAll
	}
	return s.ExamRepo.CreateExam(exam)
}

func (s *ExamService) GetExam(id string) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindExamByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return exam, err
}

func (s *ExamService) GetExamTree(id string) (*repository.ExamTree, error) {
	tree, err := s.ExamRepo.LoadExamTree(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrExamNotFound
	}
	return tree, err
}

func (s *ExamService) UpdateExam(exam *model.Exam) error {
	return s.ExamRepo.UpdateExam(exam)
}

func (s *ExamService) DeleteExam(id string) error {
	return s.ExamRepo.DeleteExam(id)
}

func (s *ExamService) ListExams(page, limit int, publishedOnly bool) ([]repository.ExamListRow, int64, error) {
	return s.ExamRepo.ListExams(page, limit, publishedOnly)
}

func (s *ExamService) SetPublished(examID string, published bool) error {
	if _, err := s.GetExam(examID); err != nil {
		return err
	}
	return s.ExamRepo.SetPublished(examID, published)
}

func (s *ExamService) CreateChapter(chapter *model.ExamChapter) error {
	if _, err := s.GetExam(chapter.ExamID); err != nil {
		return err
	}
	if err := validateChapterType(chapter.Type); err != nil {
		return err
	}
	return s.ExamRepo.CreateChapter(chapter)
}

func (s *ExamService) UpdateChapter(chapter *model.ExamChapter) error {
	if err := validateChapterType(chapter.Type); err != nil {
		return err
	}
	return s.ExamRepo.UpdateChapter(chapter)
}

func (s *ExamService) DeleteChapter(id string) error {
	chapter, err := s.ExamRepo.FindChapterByID(id)
	if err != nil {
		return err
	}
	return s.ExamRepo.DeleteChapter(chapter)
}

// CreatePiece 素材只允许挂在听力或阅读章下
func (s *ExamService) CreatePiece(piece *model.ExamPiece) error {
	chapter, err := s.ExamRepo.FindChapterByID(piece.ChapterID)
	if err != nil {
		return err
	}
	if chapter.Type == model.ChapterGrammar {
		return errors.New("grammar chapters hold questions directly, not pieces")
	}
	return s.ExamRepo.CreatePiece(chapter.ExamID, piece)
}

func (s *ExamService) UpdatePiece(piece *model.ExamPiece) error {
	chapter, err := s.ExamRepo.FindChapterByID(piece.ChapterID)
	if err != nil {
		return err
	}
	return s.ExamRepo.UpdatePiece(chapter.ExamID, piece)
}

func (s *ExamService) DeletePiece(id string) error {
	piece, err := s.ExamRepo.FindPieceByID(id)
	if err != nil {
		return err
	}
	chapter, err := s.ExamRepo.FindChapterByID(piece.ChapterID)
	if err != nil {
		return err
	}
	return s.ExamRepo.DeletePiece(chapter.ExamID, id)
}

// CreateQuestion 语法题直挂章节，听力/阅读题必须挂在素材下
func (s *ExamService) CreateQuestion(question *model.ExamQuestion) error {
	chapter, err := s.ExamRepo.FindChapterByID(question.ChapterID)
	if err != nil {
		return err
	}
	if chapter.Type == model.ChapterGrammar {
		if question.PieceID != nil && *question.PieceID != "" {
			return errors.New("grammar questions cannot belong to a piece")
		}
	} else {
		if question.PieceID == nil || *question.PieceID == "" {
			return fmt.Errorf("%s questions must belong to a piece", chapter.Type)
		}
		piece, err := s.ExamRepo.FindPieceByID(*question.PieceID)
		if err != nil {
			return err
		}
		if piece.ChapterID != chapter.ID {
			return errors.New("piece belongs to a different chapter")
		}
	}
	if question.Points <= 0 {
		question.Points = 1
	}
	return s.ExamRepo.CreateQuestion(chapter.ExamID, question)
}

func (s *ExamService) UpdateQuestion(question *model.ExamQuestion) error {
	chapter, err := s.ExamRepo.FindChapterByID(question.ChapterID)
	if err != nil {
		return err
	}
	if question.Points <= 0 {
		question.Points = 1
	}
	return s.ExamRepo.UpdateQuestion(chapter.ExamID, question)
}

func (s *ExamService) DeleteQuestion(id string) error {
	question, err := s.ExamRepo.FindQuestionByID(id)
	if err != nil {
		return err
	}
	chapter, err := s.ExamRepo.FindChapterByID(question.ChapterID)
	if err != nil {
		return err
	}
	return s.ExamRepo.DeleteQuestion(chapter.ExamID, id)
}

func validateChapterType(t model.ChapterType) error {
	switch t {
	case model.ChapterListening, model.ChapterReading, model.ChapterGrammar:
		return nil
	}
	return fmt.Errorf("unknown chapter type: %s", t)
}

// ---- 整卷 JSON 导入 ----

// ImportedExam 管理端整卷导入载荷。章节按 type 判别，
// 三个变体字段里只允许与 type 匹配的那个非空。
type ImportedExam struct {
	Title       string               `json:"title" binding:"required"`
	Description string               `json:"description"`
	Visibility  model.ExamVisibility `json:"visibility"`
	Chapters    []ImportedChapter    `json:"chapters" binding:"required"`
}

type ImportedChapter struct {
	Type            model.ChapterType `json:"type"`
	Title           string            `json:"title"`
	DurationSeconds int               `json:"durationSeconds"`

	Listening *ListeningPayload `json:"listening,omitempty"`
	Reading   *ReadingPayload   `json:"reading,omitempty"`
	Grammar   *GrammarPayload   `json:"grammar,omitempty"`
}

type ListeningPayload struct {
	Pieces []ImportedAudioPiece `json:"pieces"`
}

type ImportedAudioPiece struct {
	Title      string             `json:"title"`
	AudioURL   string             `json:"audioUrl"`
	Transcript string             `json:"transcript"`
	Questions  []ImportedQuestion `json:"questions"`
}

type ReadingPayload struct {
	Pieces []ImportedPassage `json:"pieces"`
}

type ImportedPassage struct {
	Title      string             `json:"title"`
	Passage    string             `json:"passage"`
	Paragraphs []string           `json:"paragraphs,omitempty"`
	Questions  []ImportedQuestion `json:"questions"`
}

type GrammarPayload struct {
	Questions []ImportedQuestion `json:"questions"`
}

type ImportedQuestion struct {
	Content       string   `json:"content"`
	Options       []string `json:"options"`
	Answer        string   `json:"answer"`
	Hint          string   `json:"hint,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	ExplanationZh string   `json:"explanationZh,omitempty"`
	Points        int      `json:"points,omitempty"`
}

func (c *ImportedChapter) validate(idx int) error {
	if err := validateChapterType(c.Type); err != nil {
		return fmt.Errorf("chapter %d: %w", idx, err)
	}

	variants := 0
	if c.Listening != nil {
		variants++
	}
	if c.Reading != nil {
		variants++
	}
	if c.Grammar != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("chapter %d: exactly one of listening/reading/grammar must be set, got %d", idx, variants)
	}

	switch c.Type {
	case model.ChapterListening:
		if c.Listening == nil {
			return fmt.Errorf("chapter %d: type is listening but listening payload is missing", idx)
		}
		for i, p := range c.Listening.Pieces {
			if p.AudioURL == "" {
				return fmt.Errorf("chapter %d piece %d: audioUrl is required", idx, i)
			}
			if err := validateQuestions(p.Questions, idx, i); err != nil {
				return err
			}
		}
	case model.ChapterReading:
		if c.Reading == nil {
			return fmt.Errorf("chapter %d: type is reading but reading payload is missing", idx)
		}
		for i, p := range c.Reading.Pieces {
			if p.Passage == "" && len(p.Paragraphs) == 0 {
				return fmt.Errorf("chapter %d piece %d: passage text is required", idx, i)
			}
			if err := validateQuestions(p.Questions, idx, i); err != nil {
				return err
			}
		}
	case model.ChapterGrammar:
		if c.Grammar == nil {
			return fmt.Errorf("chapter %d: type is grammar but grammar payload is missing", idx)
		}
		if err := validateQuestions(c.Grammar.Questions, idx, -1); err != nil {
			return err
		}
	}
	return nil
}

func validateQuestions(qs []ImportedQuestion, chapterIdx, pieceIdx int) error {
	where := fmt.Sprintf("chapter %d", chapterIdx)
	if pieceIdx >= 0 {
		where = fmt.Sprintf("chapter %d piece %d", chapterIdx, pieceIdx)
	}
	if len(qs) == 0 {
		return fmt.Errorf("%s: at least one question is required", where)
	}
	for i, q := range qs {
		if strings.TrimSpace(q.Content) == "" {
			return fmt.Errorf("%s question %d: content is required", where, i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("%s question %d: at least two options are required", where, i)
		}
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("%s question %d: answer is required", where, i)
		}
	}
	return nil
}

// ImportExam 校验后在一个事务里落盘整棵试卷树，返回新试卷。
// 导入的试卷默认未发布，核对后再手动发布。
func (s *ExamService) ImportExam(payload *ImportedExam, creatorID uint) (*model.Exam, error) {
	for i := range payload.Chapters {
		if err := payload.Chapters[i].validate(i); err != nil {
			return nil, err
		}
	}

	visibility := payload.Visibility
	if visibility == "" {
		visibility = model.VisibilityAll
	}

	exam := &model.Exam{
		Title:       payload.Title,
		Description: payload.Description,
		Visibility:  visibility,
		CreatorID:   creatorID,
	}
	exam.ID = uuid.New().String()

	var chapters []model.ExamChapter
	var pieces []model.ExamPiece
	var questions []model.ExamQuestion

	for ci := range payload.Chapters {
		ic := &payload.Chapters[ci]
		chapter := model.ExamChapter{
			ExamID:          exam.ID,
			Idx:             ci,
			Type:            ic.Type,
			Title:           ic.Title,
			DurationSeconds: ic.DurationSeconds,
		}
		chapter.ID = uuid.New().String()
		chapters = append(chapters, chapter)

		appendQuestions := func(qs []ImportedQuestion, pieceID *string) {
			for qi, iq := range qs {
				points := iq.Points
				if points <= 0 {
					points = 1
				}
				options, _ := json.Marshal(iq.Options)
				q := model.ExamQuestion{
					ChapterID:     chapter.ID,
					PieceID:       pieceID,
					Idx:           qi,
					Content:       iq.Content,
					Options:       options,
					Answer:        iq.Answer,
					Hint:          iq.Hint,
					Explanation:   iq.Explanation,
					ExplanationZh: iq.ExplanationZh,
					Points:        points,
				}
				q.ID = uuid.New().String()
				questions = append(questions, q)
			}
		}

		switch ic.Type {
		case model.ChapterListening:
			for pi, ip := range ic.Listening.Pieces {
				piece := model.ExamPiece{
					ChapterID:  chapter.ID,
					Idx:        pi,
					Title:      ip.Title,
					AudioURL:   ip.AudioURL,
					Transcript: ip.Transcript,
				}
				piece.ID = uuid.New().String()
				pieces = append(pieces, piece)
				pieceID := piece.ID
				appendQuestions(ip.Questions, &pieceID)
			}
		case model.ChapterReading:
			for pi, ip := range ic.Reading.Pieces {
				paragraphs, _ := json.Marshal(ip.Paragraphs)
				piece := model.ExamPiece{
					ChapterID:  chapter.ID,
					Idx:        pi,
					Title:      ip.Title,
					Passage:    ip.Passage,
					Paragraphs: paragraphs,
				}
				piece.ID = uuid.New().String()
				pieces = append(pieces, piece)
				pieceID := piece.ID
				appendQuestions(ip.Questions, &pieceID)
			}
		case model.ChapterGrammar:
			appendQuestions(ic.Grammar.Questions, nil)
		}
	}

	if err := s.ExamRepo.CreateExamTree(exam, chapters, pieces, questions); err != nil {
		return nil, err
	}

	logger.Log.Info("Exam imported",
		zap.String("examId", exam.ID),
		zap.Int("chapters", len(chapters)),
		zap.Int("questions", len(questions)))
	return exam, nil
}

// ---- 听力音频上传 ----

type AudioUploadResult struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
}

// UploadAudio 音频先落临时文件做 ffmpeg 探测，拿到时长后再推存储后端。
func (s *ExamService) UploadAudio(ctx context.Context, originalName string, reader io.Reader) (*AudioUploadResult, error) {
	tmp, err := os.CreateTemp("", "audio-upload-*"+filepath.Ext(originalName))
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	mimeFile, err := os.Open(tmp.Name())
	if err != nil {
		return nil, err
	}
	mimeType, err := util.ValidateMimeType(mimeFile, []string{util.MimeAudio, util.MimeOctetStream})
	mimeFile.Close()
	if err != nil {
		return nil, err
	}
	if !util.IsAudio(mimeType, originalName) {
		return nil, fmt.Errorf("unsupported audio type: %s", mimeType)
	}

	info, err := util.GetAudioInfo(tmp.Name())
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return nil, errors.New("could not determine audio duration")
	}

	filename := fmt.Sprintf("audio/%s/%s%s",
		time.Now().Format("200601"), uuid.New().String(), strings.ToLower(filepath.Ext(originalName)))
	url, err := s.Storage.UploadFile(ctx, filename, tmp.Name(), mimeType)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Audio uploaded",
		zap.String("filename", filename),
		zap.Float64("duration", info.Duration),
		zap.String("format", info.Format))

	return &AudioUploadResult{
		URL:      url,
		Duration: info.Duration,
		Format:   info.Format,
		Size:     info.Size,
	}, nil
}

// AttachAudioToPiece 上传后把 URL 与探测出的时长写回听力素材。
func (s *ExamService) AttachAudioToPiece(pieceID, url string, durationSecs float64) error {
	piece, err := s.ExamRepo.FindPieceByID(pieceID)
	if err != nil {
		return err
	}
	chapter, err := s.ExamRepo.FindChapterByID(piece.ChapterID)
	if err != nil {
		return err
	}
	if chapter.Type != model.ChapterListening {
		return errors.New("audio can only be attached to listening pieces")
	}
	piece.AudioURL = url
	piece.AudioSecs = durationSecs
	return s.ExamRepo.UpdatePiece(chapter.ExamID, piece)
}

package repository

import (
	"context"
	"encoding/json"
	"english_exam_backend/internal/model"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ExamTree 一份试卷的完整层级，章节、素材、题目均按 idx 升序。
type ExamTree struct {
	Exam     model.Exam    `json:"exam"`
	Chapters []ChapterNode `json:"chapters"`
}

type ChapterNode struct {
	model.ExamChapter
	Pieces    []PieceNode          `json:"pieces,omitempty"`
	Questions []model.ExamQuestion `json:"questions,omitempty"` // 语法章直挂题
}

type PieceNode struct {
	model.ExamPiece
	Questions []model.ExamQuestion `json:"questions"`
}

type ExamRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewExamRepository(db *gorm.DB, rdb *redis.Client) *ExamRepository {
	return &ExamRepository{
		DB:    db,
		Redis: rdb,
		ctx:   context.Background(),
	}
}

const examTreeCacheTTL = 10 * time.Minute

func examTreeCacheKey(examID string) string {
	return fmt.Sprintf("exam:tree:%s", examID)
}

func (r *ExamRepository) CreateExam(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindExamByID(id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.First(&exam, "id = ?", id).Error
	return &exam, err
}

func (r *ExamRepository) UpdateExam(exam *model.Exam) error {
	err := r.DB.Save(exam).Error
	if err == nil {
		r.invalidateTree(exam.ID)
	}
	return err
}

// DeleteExam 级联删除整棵试卷树。已有 attempt 的历史记录保留。
func (r *ExamRepository) DeleteExam(id string) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var chapterIDs []string
		if err := tx.Model(&model.ExamChapter{}).Where("exam_id = ?", id).Pluck("id", &chapterIDs).Error; err != nil {
			return err
		}
		if len(chapterIDs) > 0 {
			if err := tx.Where("chapter_id IN ?", chapterIDs).Delete(&model.ExamQuestion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("chapter_id IN ?", chapterIDs).Delete(&model.ExamPiece{}).Error; err != nil {
				return err
			}
			if err := tx.Where("exam_id = ?", id).Delete(&model.ExamChapter{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Exam{}, "id = ?", id).Error
	})
	if err == nil {
		r.invalidateTree(id)
	}
	return err
}

type ExamListRow struct {
	model.Exam
	ChapterCount  int `json:"chapterCount"`
	QuestionCount int `json:"questionCount"`
}

// ListExams 分页列出试卷。publishedOnly 为学生端入口，管理端传 false 看全部。
func (r *ExamRepository) ListExams(page, limit int, publishedOnly bool) ([]ExamListRow, int64, error) {
	var total int64
	countQuery := r.DB.Model(&model.Exam{})
	if publishedOnly {
		countQuery = countQuery.Where("is_published = ?", true)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dbQuery := r.DB.Table("exams e").
		Select("e.*, " +
			"(SELECT COUNT(*) FROM exam_chapters c WHERE c.exam_id = e.id AND c.deleted_at IS NULL) as chapter_count, " +
			"(SELECT COUNT(*) FROM exam_questions q JOIN exam_chapters c2 ON q.chapter_id = c2.id WHERE c2.exam_id = e.id AND q.deleted_at IS NULL) as question_count").
		Where("e.deleted_at IS NULL")
	if publishedOnly {
		dbQuery = dbQuery.Where("e.is_published = ?", true)
	}

	var rows []ExamListRow
	offset := (page - 1) * limit
	err := dbQuery.Order("e.created_at desc").Offset(offset).Limit(limit).Scan(&rows).Error
	return rows, total, err
}

// LoadExamTree 加载整棵试卷树，章节、素材、题目各一条有序查询后在内存装配。
// 已发布试卷的树走 Redis 缓存，任何改动都会使缓存失效。
func (r *ExamRepository) LoadExamTree(examID string) (*ExamTree, error) {
	if r.Redis != nil {
		cached, err := r.Redis.Get(r.ctx, examTreeCacheKey(examID)).Result()
		if err == nil && cached != "" {
			var tree ExamTree
			if json.Unmarshal([]byte(cached), &tree) == nil {
				return &tree, nil
			}
		}
	}

	tree, err := r.loadExamTreeFromDB(examID)
	if err != nil {
		return nil, err
	}

	if r.Redis != nil && tree.Exam.IsPublished {
		if data, err := json.Marshal(tree); err == nil {
			r.Redis.Set(r.ctx, examTreeCacheKey(examID), data, examTreeCacheTTL)
		}
	}
	return tree, nil
}

func (r *ExamRepository) loadExamTreeFromDB(examID string) (*ExamTree, error) {
	var exam model.Exam
	if err := r.DB.First(&exam, "id = ?", examID).Error; err != nil {
		return nil, err
	}

	var chapters []model.ExamChapter
	if err := r.DB.Where("exam_id = ?", examID).Order("idx asc").Find(&chapters).Error; err != nil {
		return nil, err
	}

	chapterIDs := make([]string, 0, len(chapters))
	for _, c := range chapters {
		chapterIDs = append(chapterIDs, c.ID)
	}

	var pieces []model.ExamPiece
	var questions []model.ExamQuestion
	if len(chapterIDs) > 0 {
		if err := r.DB.Where("chapter_id IN ?", chapterIDs).Order("idx asc").Find(&pieces).Error; err != nil {
			return nil, err
		}
		if err := r.DB.Where("chapter_id IN ?", chapterIDs).Order("idx asc").Find(&questions).Error; err != nil {
			return nil, err
		}
	}

	piecesByChapter := make(map[string][]PieceNode)
	pieceIndex := make(map[string]int) // pieceID -> piecesByChapter 内下标
	for _, p := range pieces {
		piecesByChapter[p.ChapterID] = append(piecesByChapter[p.ChapterID], PieceNode{ExamPiece: p})
		pieceIndex[p.ID] = len(piecesByChapter[p.ChapterID]) - 1
	}

	chapterQuestions := make(map[string][]model.ExamQuestion)
	for _, q := range questions {
		if q.PieceID != nil && *q.PieceID != "" {
			if idx, ok := pieceIndex[*q.PieceID]; ok {
				nodes := piecesByChapter[q.ChapterID]
				nodes[idx].Questions = append(nodes[idx].Questions, q)
				continue
			}
		}
		chapterQuestions[q.ChapterID] = append(chapterQuestions[q.ChapterID], q)
	}

	tree := &ExamTree{Exam: exam}
	for _, c := range chapters {
		tree.Chapters = append(tree.Chapters, ChapterNode{
			ExamChapter: c,
			Pieces:      piecesByChapter[c.ID],
			Questions:   chapterQuestions[c.ID],
		})
	}
	return tree, nil
}

func (r *ExamRepository) invalidateTree(examID string) {
	if r.Redis != nil {
		r.Redis.Del(r.ctx, examTreeCacheKey(examID))
	}
}

func (r *ExamRepository) CreateChapter(chapter *model.ExamChapter) error {
	err := r.DB.Create(chapter).Error
	if err == nil {
		r.invalidateTree(chapter.ExamID)
	}
	return err
}

func (r *ExamRepository) FindChapterByID(id string) (*model.ExamChapter, error) {
	var c model.ExamChapter
	err := r.DB.First(&c, "id = ?", id).Error
	return &c, err
}

func (r *ExamRepository) UpdateChapter(chapter *model.ExamChapter) error {
	err := r.DB.Save(chapter).Error
	if err == nil {
		r.invalidateTree(chapter.ExamID)
	}
	return err
}

func (r *ExamRepository) DeleteChapter(chapter *model.ExamChapter) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chapter_id = ?", chapter.ID).Delete(&model.ExamQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chapter_id = ?", chapter.ID).Delete(&model.ExamPiece{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ExamChapter{}, "id = ?", chapter.ID).Error
	})
	if err == nil {
		r.invalidateTree(chapter.ExamID)
	}
	return err
}

func (r *ExamRepository) CreatePiece(examID string, piece *model.ExamPiece) error {
	err := r.DB.Create(piece).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

func (r *ExamRepository) FindPieceByID(id string) (*model.ExamPiece, error) {
	var p model.ExamPiece
	err := r.DB.First(&p, "id = ?", id).Error
	return &p, err
}

func (r *ExamRepository) UpdatePiece(examID string, piece *model.ExamPiece) error {
	err := r.DB.Save(piece).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

func (r *ExamRepository) DeletePiece(examID, pieceID string) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("piece_id = ?", pieceID).Delete(&model.ExamQuestion{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ExamPiece{}, "id = ?", pieceID).Error
	})
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

func (r *ExamRepository) CreateQuestion(examID string, question *model.ExamQuestion) error {
	err := r.DB.Create(question).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

func (r *ExamRepository) FindQuestionByID(id string) (*model.ExamQuestion, error) {
	var q model.ExamQuestion
	err := r.DB.First(&q, "id = ?", id).Error
	return &q, err
}

func (r *ExamRepository) UpdateQuestion(examID string, question *model.ExamQuestion) error {
	err := r.DB.Save(question).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

func (r *ExamRepository) DeleteQuestion(examID, questionID string) error {
	err := r.DB.Delete(&model.ExamQuestion{}, "id = ?", questionID).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

// CreateExamTree 导入整卷：一个事务里写入试卷及其全部章节、素材、题目。
func (r *ExamRepository) CreateExamTree(exam *model.Exam, chapters []model.ExamChapter, pieces []model.ExamPiece, questions []model.ExamQuestion) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exam).Error; err != nil {
			return err
		}
		for i := range chapters {
			if err := tx.Create(&chapters[i]).Error; err != nil {
				return err
			}
		}
		for i := range pieces {
			if err := tx.Create(&pieces[i]).Error; err != nil {
				return err
			}
		}
		for i := range questions {
			if err := tx.Create(&questions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ExamRepository) SetPublished(examID string, published bool) error {
	updates := map[string]interface{}{"is_published": published}
	if published {
		updates["published_at"] = time.Now()
	}
	err := r.DB.Model(&model.Exam{}).Where("id = ?", examID).Updates(updates).Error
	if err == nil {
		r.invalidateTree(examID)
	}
	return err
}

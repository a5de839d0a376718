package repository

import (
	"english_exam_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(attempt *model.ExamAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id string) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.First(&attempt, "id = ?", id).Error
	return &attempt, err
}

func (r *AttemptRepository) FindByIDWithResult(id string) (*model.ExamAttempt, error) {
	var attempt model.ExamAttempt
	err := r.DB.Preload("Result").First(&attempt, "id = ?", id).Error
	return &attempt, err
}

func (r *AttemptRepository) ListByUser(userID uint, page, limit int) ([]model.ExamAttempt, int64, error) {
	var total int64
	if err := r.DB.Model(&model.ExamAttempt{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []model.ExamAttempt
	offset := (page - 1) * limit
	err := r.DB.Preload("Result").
		Where("user_id = ?", userID).
		Order("started_at desc").
		Offset(offset).Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

func (r *AttemptRepository) ListByExam(examID string, page, limit int) ([]model.ExamAttempt, int64, error) {
	var total int64
	if err := r.DB.Model(&model.ExamAttempt{}).Where("exam_id = ?", examID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []model.ExamAttempt
	offset := (page - 1) * limit
	err := r.DB.Preload("Result").
		Where("exam_id = ?", examID).
		Order("started_at desc").
		Offset(offset).Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

// UpsertAnswers 按 (attempt_id, question_id) 唯一键批量落盘。
// 章节边界会整章重存，重复行只更新所选项与判分字段。
func (r *AttemptRepository) UpsertAnswers(answers []model.ExamAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"selected_choice", "is_correct", "points_awarded", "updated_at",
		}),
	}).Create(&answers).Error
}

func (r *AttemptRepository) ListAnswers(attemptID string) ([]model.ExamAnswer, error) {
	var answers []model.ExamAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// UpsertResult attempt_id 唯一，结算重试不会产生第二行。
func (r *AttemptRepository) UpsertResult(result *model.ExamResult) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "correct_count", "total_questions", "total_possible", "percentage", "updated_at",
		}),
	}).Create(result).Error
}

func (r *AttemptRepository) FindResultByAttempt(attemptID string) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.Where("attempt_id = ?", attemptID).First(&result).Error
	return &result, err
}

func (r *AttemptRepository) Complete(attemptID string, completedAt time.Time) error {
	return r.DB.Model(&model.ExamAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":       "completed",
			"completed_at": completedAt,
		}).Error
}

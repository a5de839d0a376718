package model

import "time"

// swagger:model ExamAttempt
type ExamAttempt struct {
	UUIDBase
	ExamID      string      `gorm:"index;type:varchar(36)" json:"examId"`
	UserID      *uint       `gorm:"index;type:bigint unsigned" json:"userId,omitempty"` // 匿名作答时为空
	Status      string      `gorm:"size:20;default:'in_progress'" json:"status"`        // in_progress, completed
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Result      *ExamResult `gorm:"foreignKey:AttemptID" json:"result,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// ExamAnswer 答题记录，(attempt, question) 唯一，重复保存走 upsert。
type ExamAnswer struct {
	UUIDBase
	AttemptID      string `gorm:"type:varchar(36);uniqueIndex:idx_attempt_question" json:"attemptId"`
	QuestionID     string `gorm:"type:varchar(36);uniqueIndex:idx_attempt_question" json:"questionId"`
	QuestionType   string `gorm:"size:20" json:"questionType"` // listening, reading, grammar
	SelectedChoice string `gorm:"type:text" json:"selectedChoice"`
	IsCorrect      bool   `gorm:"default:false" json:"isCorrect"`
	PointsAwarded  int    `gorm:"default:0" json:"pointsAwarded"`
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}

// ExamResult 总成绩，每个 attempt 至多一条（AttemptID 唯一，finalize 幂等）。
type ExamResult struct {
	UUIDBase
	AttemptID      string  `gorm:"type:varchar(36);uniqueIndex" json:"attemptId"`
	Score          int     `gorm:"default:0" json:"score"` // 实得分
	CorrectCount   int     `gorm:"default:0" json:"correctCount"`
	TotalQuestions int     `gorm:"default:0" json:"totalQuestions"`
	TotalPossible  int     `gorm:"default:0" json:"totalPossible"`
	Percentage     float64 `gorm:"default:0" json:"percentage"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}

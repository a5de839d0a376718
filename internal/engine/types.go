package engine

import (
	"context"
	"time"
)

type ChapterType string

const (
	Listening ChapterType = "listening"
	Reading   ChapterType = "reading"
	Grammar   ChapterType = "grammar"
)

// Question 单题。Points 由加载器归一化，缺省为 1。
type Question struct {
	ID      string
	Idx     int
	Content string
	Options []string
	Answer  string
	Hint    string
	Points  int
}

// Piece 听力音频或阅读文章，携带其下的有序题目。
type Piece struct {
	ID         string
	Idx        int
	Title      string
	AudioURL   string
	Passage    string
	Paragraphs []string
	Questions  []Question
}

// Chapter 章节。listening/reading 章由 Pieces 组成，grammar 章直接持有 Questions。
// DurationSeconds 为加载器解析后的最终时长。
type Chapter struct {
	ID              string
	Idx             int
	Type            ChapterType
	Title           string
	DurationSeconds int
	Pieces          []Piece
	Questions       []Question
}

// SubItemCount 章内子项数：听力/阅读为 piece 数，语法为题目数。
func (c *Chapter) SubItemCount() int {
	if c.Type == Grammar {
		return len(c.Questions)
	}
	return len(c.Pieces)
}

// AllQuestions 按作答顺序返回整章题目。
func (c *Chapter) AllQuestions() []Question {
	if c.Type == Grammar {
		return c.Questions
	}
	var qs []Question
	for i := range c.Pieces {
		qs = append(qs, c.Pieces[i].Questions...)
	}
	return qs
}

// TestTree 一份试卷的完整章节树，会话期间只读。
type TestTree struct {
	TestID   string
	Title    string
	Chapters []Chapter
}

func (t *TestTree) TotalPossible() int {
	total := 0
	for i := range t.Chapters {
		for _, q := range t.Chapters[i].AllQuestions() {
			total += q.Points
		}
	}
	return total
}

func (t *TestTree) TotalQuestions() int {
	n := 0
	for i := range t.Chapters {
		n += len(t.Chapters[i].AllQuestions())
	}
	return n
}

// AnswerUpsert 一条待持久化的答题记录，(attempt, question) 唯一。
type AnswerUpsert struct {
	QuestionID     string
	QuestionType   ChapterType
	SelectedChoice string
	IsCorrect      bool
	PointsAwarded  int
}

// ResultUpsert 总成绩，按 attempt upsert，至多一条。
type ResultUpsert struct {
	Score          int
	CorrectCount   int
	TotalQuestions int
	TotalPossible  int
	Percentage     float64
}

// Store 外部存储的五个类型化操作。显式注入，引擎内不持有全局客户端。
type Store interface {
	LoadTestTree(ctx context.Context, testID string) (*TestTree, error)
	CreateAttempt(ctx context.Context, testID string, userID *uint) (string, error)
	UpsertAnswers(ctx context.Context, attemptID string, answers []AnswerUpsert) error
	UpsertResult(ctx context.Context, attemptID string, result ResultUpsert) error
	CompleteAttempt(ctx context.Context, attemptID string, completedAt time.Time) error
}

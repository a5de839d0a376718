package model

import (
	"encoding/json"
	"time"
)

type ExamVisibility string

const (
	VisibilityAll            ExamVisibility = "all"
	VisibilitySubscribers    ExamVisibility = "subscribers"
	VisibilityNonSubscribers ExamVisibility = "non_subscribers"
)

type ChapterType string

const (
	ChapterListening ChapterType = "listening"
	ChapterReading   ChapterType = "reading"
	ChapterGrammar   ChapterType = "grammar"
)

// swagger:model Exam
type Exam struct {
	UUIDBase
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Visibility  ExamVisibility `gorm:"size:20;default:'all'" json:"visibility"`
	IsPublished bool           `gorm:"default:false" json:"isPublished"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	CreatorID   uint           `gorm:"index;type:bigint unsigned" json:"creatorId"`
}

func (Exam) TableName() string {
	return "exams"
}

// ExamChapter 试卷章节（听力/阅读/语法），Idx 决定作答顺序。
// DurationSeconds 为 0 表示未显式设置，由引擎按章节序号查缺省时长表。
type ExamChapter struct {
	UUIDBase
	ExamID          string      `gorm:"index;type:varchar(36)" json:"examId"`
	Idx             int         `gorm:"default:0" json:"idx"`
	Type            ChapterType `gorm:"size:20;not null" json:"type"`
	Title           string      `gorm:"size:255" json:"title"`
	DurationSeconds int         `gorm:"default:0" json:"durationSeconds"`
}

func (ExamChapter) TableName() string {
	return "exam_chapters"
}

// ExamPiece 听力音频或阅读文章。Transcript 仅服务端可见，
// 作答中的学生端响应不会携带。
type ExamPiece struct {
	UUIDBase
	ChapterID  string          `gorm:"index;type:varchar(36)" json:"chapterId"`
	Idx        int             `gorm:"default:0" json:"idx"`
	Title      string          `gorm:"size:255" json:"title"`
	AudioURL   string          `gorm:"size:512" json:"audioUrl,omitempty"`
	AudioSecs  float64         `gorm:"default:0" json:"audioSecs,omitempty"`
	Transcript string          `gorm:"type:text" json:"transcript,omitempty"`
	Passage    string          `gorm:"type:text" json:"passage,omitempty"`
	Paragraphs json.RawMessage `gorm:"type:json" json:"paragraphs,omitempty"` // JSON: []string，编号段落
}

func (ExamPiece) TableName() string {
	return "exam_pieces"
}

// ExamQuestion 题目。听力/阅读题挂在 Piece 下（PieceID 非空），
// 语法题直接挂在 Chapter 下。ChapterID 冗余存储便于整章查询。
type ExamQuestion struct {
	UUIDBase
	ChapterID     string          `gorm:"index;type:varchar(36)" json:"chapterId"`
	PieceID       *string         `gorm:"index;type:varchar(36)" json:"pieceId,omitempty"`
	Idx           int             `gorm:"default:0" json:"idx"`
	Content       string          `gorm:"type:text;not null" json:"content"`
	Options       json.RawMessage `gorm:"type:json" json:"options"` // JSON: []string
	Answer        string          `gorm:"type:text" json:"answer"`
	Hint          string          `gorm:"type:text" json:"hint,omitempty"`
	Explanation   string          `gorm:"type:text" json:"explanation,omitempty"`
	ExplanationZh string          `gorm:"type:text" json:"explanationZh,omitempty"`
	Points        int             `gorm:"default:1" json:"points"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

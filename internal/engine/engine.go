package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type Phase string

const (
	PhaseAwaitingIntro   Phase = "awaiting_intro"
	PhasePlayingAudio    Phase = "playing_audio"
	PhaseAnswering       Phase = "answering"
	PhaseChapterComplete Phase = "chapter_complete"
	PhaseSessionComplete Phase = "session_complete"
)

// Options 引擎可选依赖。零值可用：真实时钟、Nop 日志。
type Options struct {
	Clock  Clock
	Logger *zap.Logger
}

// Engine 一次作答会话的全部可变状态。单把互斥锁串行化用户导航、
// 定时器回调与音频事件，保证每章至多一次越界推进。
type Engine struct {
	mu    sync.Mutex
	store Store
	log   *zap.Logger
	clock Clock

	tree      *TestTree
	attemptID string

	chapterIdx int
	subIdx     int
	phase      Phase

	drafts       map[string]string // questionID -> 所选选项草稿
	playedPieces map[string]bool   // 已播放过音频的听力 piece，不可重播
	audio        *AudioLock

	epoch uint64
	timer *chapterTimer

	warnings []int // 待投递的剩余时间预警（分钟），Snapshot 读取后清空

	finalized   bool
	finalResult *ResultUpsert
	lastActive  time.Time
}

// NewEngine 基于已加载的章节树和已创建的 attempt 构造引擎并进入第一章。
// 一般通过 StartSession 间接调用。
func NewEngine(store Store, tree *TestTree, attemptID string, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	e := &Engine{
		store:        store,
		log:          log,
		clock:        clock,
		tree:         tree,
		attemptID:    attemptID,
		drafts:       make(map[string]string),
		playedPieces: make(map[string]bool),
		lastActive:   clock.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(tree.Chapters) == 0 {
		e.phase = PhaseSessionComplete
		return e
	}
	e.enterChapterLocked(0)
	return e
}

func (e *Engine) AttemptID() string { return e.attemptID }

func (e *Engine) Tree() *TestTree { return e.tree }

// LastActive 最近一次用户操作时间，供会话清理用。
func (e *Engine) LastActive() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

func (e *Engine) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

func (e *Engine) touchLocked() {
	e.lastActive = e.clock.Now()
}

// Snapshot 当前会话状态的只读视图，读取的同时取走未投递的预警。
type Snapshot struct {
	AttemptID        string      `json:"attemptId"`
	Phase            Phase       `json:"phase"`
	ChapterIdx       int         `json:"chapterIdx"`
	SubIdx           int         `json:"subIdx"`
	ChapterType      ChapterType `json:"chapterType,omitempty"`
	ChapterTitle     string      `json:"chapterTitle,omitempty"`
	TotalChapters    int         `json:"totalChapters"`
	RemainingSeconds int         `json:"remainingSeconds"`
	Warnings         []int       `json:"warnings,omitempty"` // 剩余分钟预警
	AudioLocked      bool        `json:"audioLocked"`
	AudioPosition    float64     `json:"audioPosition"`
	Finalized        bool        `json:"finalized"`
	Result           *ResultUpsert `json:"result,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		AttemptID:     e.attemptID,
		Phase:         e.phase,
		ChapterIdx:    e.chapterIdx,
		SubIdx:        e.subIdx,
		TotalChapters: len(e.tree.Chapters),
		Finalized:     e.finalized,
		Result:        e.finalResult,
	}
	if c := e.currentChapterLocked(); c != nil {
		s.ChapterType = c.Type
		s.ChapterTitle = c.Title
	}
	if e.timer != nil {
		s.RemainingSeconds = e.timer.remaining
	}
	if e.audio != nil {
		s.AudioLocked = e.audio.Locked()
		s.AudioPosition = e.audio.Position()
	}
	if len(e.warnings) > 0 {
		s.Warnings = e.warnings
		e.warnings = nil
	}
	return s
}

func (e *Engine) currentChapterLocked() *Chapter {
	if e.chapterIdx < 0 || e.chapterIdx >= len(e.tree.Chapters) {
		return nil
	}
	return &e.tree.Chapters[e.chapterIdx]
}

// CurrentView 学生端当前应呈现的内容（题目不含答案，听力不含原文）。
func (e *Engine) CurrentView() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{Snapshot: e.snapshotLocked()}
	c := e.currentChapterLocked()
	if c == nil || e.phase == PhaseSessionComplete || e.phase == PhaseChapterComplete {
		return v
	}

	if c.Type == Grammar {
		if e.subIdx < len(c.Questions) {
			q := sanitizeQuestion(c.Questions[e.subIdx])
			q.Draft = e.drafts[q.ID]
			v.Questions = []ViewQuestion{q}
		}
		return v
	}

	if e.subIdx < len(c.Pieces) {
		p := &c.Pieces[e.subIdx]
		v.Piece = &ViewPiece{
			ID:         p.ID,
			Idx:        p.Idx,
			Title:      p.Title,
			Passage:    p.Passage,
			Paragraphs: p.Paragraphs,
		}
		if c.Type == Listening {
			v.Piece.AudioURL = p.AudioURL
		}
		if e.phase == PhaseAnswering {
			for _, q := range p.Questions {
				vq := sanitizeQuestion(q)
				vq.Draft = e.drafts[q.ID]
				v.Questions = append(v.Questions, vq)
			}
		}
	}
	return v
}

// View 学生端视图载荷。
type View struct {
	Snapshot  Snapshot       `json:"state"`
	Piece     *ViewPiece     `json:"piece,omitempty"`
	Questions []ViewQuestion `json:"questions,omitempty"`
}

type ViewPiece struct {
	ID         string   `json:"id"`
	Idx        int      `json:"idx"`
	Title      string   `json:"title,omitempty"`
	AudioURL   string   `json:"audioUrl,omitempty"`
	Passage    string   `json:"passage,omitempty"`
	Paragraphs []string `json:"paragraphs,omitempty"`
}

// ViewQuestion 作答中的题目视图：不携带正确答案与解析。
type ViewQuestion struct {
	ID      string   `json:"id"`
	Idx     int      `json:"idx"`
	Content string   `json:"content"`
	Options []string `json:"options"`
	Hint    string   `json:"hint,omitempty"`
	Points  int      `json:"points"`
	Draft   string   `json:"draft,omitempty"`
}

func sanitizeQuestion(q Question) ViewQuestion {
	return ViewQuestion{
		ID:      q.ID,
		Idx:     q.Idx,
		Content: q.Content,
		Options: q.Options,
		Hint:    q.Hint,
		Points:  q.Points,
	}
}

// Close 停掉定时器，释放音频锁。服务层淘汰会话时调用。
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.resetAudioLocked()
}

package service

import (
	"english_exam_backend/internal/config"
	"english_exam_backend/internal/engine"
	"english_exam_backend/internal/model"
	"english_exam_backend/internal/repository"
	"english_exam_backend/internal/util"
	"english_exam_backend/pkg/logger"
	"english_exam_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionService 持有所有进行中的作答会话。每个 attempt 对应一个常驻内存的
// 引擎实例，HTTP 层只做参数搬运，所有状态迁移都发生在引擎里。
type SessionService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	SubRepo     *repository.SubscriptionRepository
	Cfg         *config.Config

	mu      sync.RWMutex
	engines map[string]*sessionEntry // attemptID -> 会话

	stopJanitor chan struct{}
}

type sessionEntry struct {
	engine *engine.Engine
	userID *uint // 会话属主，匿名为 nil
}

func NewSessionService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, subRepo *repository.SubscriptionRepository, cfg *config.Config) *SessionService {
	s := &SessionService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		SubRepo:     subRepo,
		Cfg:         cfg,
		engines:     make(map[string]*sessionEntry),
		stopJanitor: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// StartSession 可见性校验通过后创建 attempt 并启动引擎。
func (s *SessionService) StartSession(ctx context.Context, examID string, userID *uint) (*engine.Engine, error) {
	exam, err := s.ExamRepo.FindExamByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if !exam.IsPublished {
		return nil, util.ErrExamNotPublished
	}
	if err := s.checkVisibility(exam, userID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defaults := engine.DurationDefaults{
		ByChapterIdx:    s.Cfg.Exam.DefaultChapterMinutes,
		FallbackMinutes: s.Cfg.Exam.FallbackChapterMinutes,
	}
	s.mu.RUnlock()

	store := &engineStore{exams: s.ExamRepo, attempts: s.AttemptRepo}
	eng, err := engine.StartSession(ctx, store, examID, userID, defaults,
		engine.Options{Logger: logger.Log})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.engines[eng.AttemptID()] = &sessionEntry{engine: eng, userID: userID}
	monitoring.ActiveSessions.Set(float64(len(s.engines)))
	s.mu.Unlock()
	monitoring.SessionsStarted.Inc()

	logger.Log.Info("Exam session started",
		zap.String("examId", examID),
		zap.String("attemptId", eng.AttemptID()))
	return eng, nil
}

func (s *SessionService) checkVisibility(exam *model.Exam, userID *uint) error {
	switch exam.Visibility {
	case model.VisibilitySubscribers:
		if userID == nil {
			return util.ErrExamNotAccessible
		}
		active, err := s.SubRepo.HasActive(*userID, time.Now())
		if err != nil {
			return err
		}
		if !active {
			return util.ErrSubscriptionRequired
		}
	case model.VisibilityNonSubscribers:
		// 匿名访客视作非订阅用户
		if userID != nil {
			active, err := s.SubRepo.HasActive(*userID, time.Now())
			if err != nil {
				return err
			}
			if active {
				return util.ErrExamNotAccessible
			}
		}
	}
	return nil
}

// GetEngine 按 attempt 取会话并校验属主。匿名会话任何人持 attemptID 皆可操作。
func (s *SessionService) GetEngine(attemptID string, userID *uint) (*engine.Engine, error) {
	s.mu.RLock()
	entry, ok := s.engines[attemptID]
	s.mu.RUnlock()
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	if entry.userID != nil {
		if userID == nil || *userID != *entry.userID {
			return nil, util.ErrSessionNotYours
		}
	}
	return entry.engine, nil
}

// CloseSession 显式放弃会话。未结算的 attempt 保持 in_progress。
func (s *SessionService) CloseSession(attemptID string, userID *uint) error {
	eng, err := s.GetEngine(attemptID, userID)
	if err != nil {
		return err
	}
	s.evict(attemptID, eng, "closed")
	return nil
}

func (s *SessionService) evict(attemptID string, eng *engine.Engine, reason string) {
	eng.Close()
	s.mu.Lock()
	delete(s.engines, attemptID)
	monitoring.ActiveSessions.Set(float64(len(s.engines)))
	s.mu.Unlock()
	logger.Log.Info("Exam session evicted",
		zap.String("attemptId", attemptID),
		zap.String("reason", reason))
}

// ReloadConfig 配置热更新时替换运行参数，下一轮清理即生效。
func (s *SessionService) ReloadConfig(cfg *config.Config) {
	s.mu.Lock()
	s.Cfg = cfg
	s.mu.Unlock()
	logger.Log.Info("Session service config reloaded",
		zap.Int("sessionIdleMinutes", cfg.Exam.SessionIdleMinutes))
}

func (s *SessionService) idleTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.Cfg.Exam.SessionIdleMinutes) * time.Minute
}

// janitor 定期清理：已结算的会话立即回收，空闲超时的会话淘汰。
func (s *SessionService) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopJanitor:
			return
		case <-ticker.C:
			s.sweep(s.idleTimeout())
		}
	}
}

func (s *SessionService) sweep(idle time.Duration) {
	type victim struct {
		attemptID string
		eng       *engine.Engine
		reason    string
	}
	var victims []victim

	s.mu.RLock()
	now := time.Now()
	for id, entry := range s.engines {
		if entry.engine.Finalized() {
			victims = append(victims, victim{id, entry.engine, "finalized"})
			continue
		}
		if now.Sub(entry.engine.LastActive()) > idle {
			victims = append(victims, victim{id, entry.engine, "idle"})
		}
	}
	s.mu.RUnlock()

	for _, v := range victims {
		if v.reason == "finalized" {
			monitoring.SessionsFinalized.WithLabelValues("completed").Inc()
		} else {
			monitoring.SessionsFinalized.WithLabelValues("evicted").Inc()
		}
		s.evict(v.attemptID, v.eng, v.reason)
	}
}

// Shutdown 停止后台清理并关闭全部会话。
func (s *SessionService) Shutdown() {
	close(s.stopJanitor)
	s.mu.Lock()
	for id, entry := range s.engines {
		entry.engine.Close()
		delete(s.engines, id)
	}
	monitoring.ActiveSessions.Set(0)
	s.mu.Unlock()
}

// ---- 成绩回看 ----

type AttemptReview struct {
	Attempt *model.ExamAttempt   `json:"attempt"`
	Result  *model.ExamResult    `json:"result"`
	Answers []model.ExamAnswer   `json:"answers"`
	Exam    *repository.ExamTree `json:"exam"`
}

// GetReview 仅已完成的 attempt 可回看。回看视图携带完整树，
// 包含作答期间从不下发的听力原文与双语解析。
func (s *SessionService) GetReview(attemptID string, userID *uint) (*AttemptReview, error) {
	attempt, err := s.AttemptRepo.FindByIDWithResult(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.UserID != nil {
		if userID == nil || *userID != *attempt.UserID {
			return nil, util.ErrPermissionDenied
		}
	}
	if attempt.Status != "completed" {
		return nil, util.ErrAttemptNotCompleted
	}

	answers, err := s.AttemptRepo.ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}

	tree, err := s.ExamRepo.LoadExamTree(attempt.ExamID)
	if err != nil {
		return nil, err
	}

	return &AttemptReview{
		Attempt: attempt,
		Result:  attempt.Result,
		Answers: answers,
		Exam:    tree,
	}, nil
}

func (s *SessionService) ListAttempts(userID uint, page, limit int) ([]model.ExamAttempt, int64, error) {
	return s.AttemptRepo.ListByUser(userID, page, limit)
}

// ListExamAttempts 管理端按试卷查看全部作答记录。
func (s *SessionService) ListExamAttempts(examID string, page, limit int) ([]model.ExamAttempt, int64, error) {
	if _, err := s.ExamRepo.FindExamByID(examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, util.ErrExamNotFound
		}
		return nil, 0, err
	}
	return s.AttemptRepo.ListByExam(examID, page, limit)
}

// ---- 引擎存储适配 ----

// engineStore 把仓储层适配成引擎的五个存储操作。
type engineStore struct {
	exams    *repository.ExamRepository
	attempts *repository.AttemptRepository
}

func (es *engineStore) LoadTestTree(ctx context.Context, testID string) (*engine.TestTree, error) {
	tree, err := es.exams.LoadExamTree(testID)
	if err != nil {
		return nil, err
	}
	return buildEngineTree(tree), nil
}

func buildEngineTree(tree *repository.ExamTree) *engine.TestTree {
	out := &engine.TestTree{
		TestID: tree.Exam.ID,
		Title:  tree.Exam.Title,
	}
	for _, c := range tree.Chapters {
		chapter := engine.Chapter{
			ID:              c.ID,
			Idx:             c.Idx,
			Type:            engine.ChapterType(c.Type),
			Title:           c.Title,
			DurationSeconds: c.DurationSeconds,
		}
		for _, p := range c.Pieces {
			piece := engine.Piece{
				ID:       p.ID,
				Idx:      p.Idx,
				Title:    p.Title,
				AudioURL: p.AudioURL,
				Passage:  p.Passage,
			}
			if len(p.Paragraphs) > 0 {
				json.Unmarshal(p.Paragraphs, &piece.Paragraphs)
			}
			for _, q := range p.Questions {
				piece.Questions = append(piece.Questions, buildEngineQuestion(q))
			}
			chapter.Pieces = append(chapter.Pieces, piece)
		}
		for _, q := range c.Questions {
			chapter.Questions = append(chapter.Questions, buildEngineQuestion(q))
		}
		out.Chapters = append(out.Chapters, chapter)
	}
	return out
}

func buildEngineQuestion(q model.ExamQuestion) engine.Question {
	eq := engine.Question{
		ID:      q.ID,
		Idx:     q.Idx,
		Content: q.Content,
		Answer:  q.Answer,
		Hint:    q.Hint,
		Points:  q.Points,
	}
	if len(q.Options) > 0 {
		json.Unmarshal(q.Options, &eq.Options)
	}
	return eq
}

func (es *engineStore) CreateAttempt(ctx context.Context, testID string, userID *uint) (string, error) {
	attempt := &model.ExamAttempt{
		ExamID:    testID,
		UserID:    userID,
		Status:    "in_progress",
		StartedAt: time.Now(),
	}
	if err := es.attempts.Create(attempt); err != nil {
		return "", err
	}
	return attempt.ID, nil
}

func (es *engineStore) UpsertAnswers(ctx context.Context, attemptID string, answers []engine.AnswerUpsert) error {
	rows := make([]model.ExamAnswer, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, model.ExamAnswer{
			AttemptID:      attemptID,
			QuestionID:     a.QuestionID,
			QuestionType:   string(a.QuestionType),
			SelectedChoice: a.SelectedChoice,
			IsCorrect:      a.IsCorrect,
			PointsAwarded:  a.PointsAwarded,
		})
	}
	return es.attempts.UpsertAnswers(rows)
}

func (es *engineStore) UpsertResult(ctx context.Context, attemptID string, result engine.ResultUpsert) error {
	return es.attempts.UpsertResult(&model.ExamResult{
		AttemptID:      attemptID,
		Score:          result.Score,
		CorrectCount:   result.CorrectCount,
		TotalQuestions: result.TotalQuestions,
		TotalPossible:  result.TotalPossible,
		Percentage:     result.Percentage,
	})
}

func (es *engineStore) CompleteAttempt(ctx context.Context, attemptID string, completedAt time.Time) error {
	return es.attempts.Complete(attemptID, completedAt)
}

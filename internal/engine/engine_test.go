package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore 内存实现，记录调用并可注入错误。
type fakeStore struct {
	mu sync.Mutex

	tree *TestTree

	loadErr     error
	createErr   error
	answersErr  error
	resultErr   error
	completeErr error

	attemptSeq       int
	answerBatches    [][]AnswerUpsert
	answers          map[string]AnswerUpsert // questionID -> 最新记录
	results          map[string]ResultUpsert // attemptID -> 唯一成绩行
	resultUpserts    int
	completedAt      map[string]time.Time
	completeAttempts int
}

func newFakeStore(tree *TestTree) *fakeStore {
	return &fakeStore{
		tree:        tree,
		answers:     make(map[string]AnswerUpsert),
		results:     make(map[string]ResultUpsert),
		completedAt: make(map[string]time.Time),
	}
}

func (s *fakeStore) LoadTestTree(ctx context.Context, testID string) (*TestTree, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.tree == nil || s.tree.TestID != testID {
		return nil, errors.New("test not found")
	}
	return s.tree, nil
}

func (s *fakeStore) CreateAttempt(ctx context.Context, testID string, userID *uint) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptSeq++
	return "attempt-1", nil
}

func (s *fakeStore) UpsertAnswers(ctx context.Context, attemptID string, ups []AnswerUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answersErr != nil {
		return s.answersErr
	}
	s.answerBatches = append(s.answerBatches, ups)
	for _, u := range ups {
		s.answers[u.QuestionID] = u
	}
	return nil
}

func (s *fakeStore) UpsertResult(ctx context.Context, attemptID string, r ResultUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultErr != nil {
		return s.resultErr
	}
	s.resultUpserts++
	s.results[attemptID] = r // upsert：同一 attempt 永远只有一行
	return nil
}

func (s *fakeStore) CompleteAttempt(ctx context.Context, attemptID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completeAttempts++
	s.completedAt[attemptID] = at
	return nil
}

// fakeClock 固定时间，ticker 永不走动；倒计时通过直接调用 timerTick 驱动。
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(d time.Duration) Ticker { return &fakeTicker{ch: make(chan time.Time)} }

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

// 构树辅助

func grammarQ(id string, idx, points int, answer string) Question {
	return Question{ID: id, Idx: idx, Content: "Q " + id, Options: []string{"A", "B", "C", "D"}, Answer: answer, Points: points}
}

func listeningChapter(id string, idx, durationSecs int, pieces ...Piece) Chapter {
	return Chapter{ID: id, Idx: idx, Type: Listening, Title: "Listening", DurationSeconds: durationSecs, Pieces: pieces}
}

func readingChapter(id string, idx, durationSecs int, pieces ...Piece) Chapter {
	return Chapter{ID: id, Idx: idx, Type: Reading, Title: "Reading", DurationSeconds: durationSecs, Pieces: pieces}
}

func grammarChapter(id string, idx, durationSecs int, qs ...Question) Chapter {
	return Chapter{ID: id, Idx: idx, Type: Grammar, Title: "Grammar", DurationSeconds: durationSecs, Questions: qs}
}

func startTestSession(tree *TestTree, store *fakeStore, clock Clock) (*Engine, error) {
	if clock == nil {
		clock = &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	}
	return StartSession(context.Background(), store, tree.TestID, nil,
		DurationDefaults{ByChapterIdx: []int{13, 25, 10}, FallbackMinutes: 20},
		Options{Clock: clock})
}

// drainTimer 直接驱动当前定时器 n 个心跳。
func drainTimer(e *Engine, n int) {
	e.mu.Lock()
	t := e.timer
	e.mu.Unlock()
	if t == nil {
		return
	}
	for i := 0; i < n; i++ {
		if e.timerTick(t) {
			return
		}
	}
}

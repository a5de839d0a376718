package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningThresholds(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		want     []int
	}{
		{"13 minutes gets single warning", 780, []int{300}},
		{"10 minutes gets single warning", 600, []int{300}},
		{"20 minutes gets both warnings", 1200, []int{600, 300}},
		{"25 minutes gets both warnings", 1500, []int{600, 300}},
		{"short chapter gets none", 500, nil},
		{"14 minutes falls in the gap", 840, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, warningThresholds(tc.duration))
		})
	}
}

func TestStaleTimerCannotFire(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	// 抓住第一章的定时器，然后整章走完进入第二章
	e.mu.Lock()
	staleTimer := e.timer
	e.mu.Unlock()
	require.NotNil(t, staleTimer)

	finishListeningPiece(t, e)
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	finishListeningPiece(t, e)
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	_, err = e.Next(ctx, false) // ChapterComplete -> reading
	require.NoError(t, err)

	require.Equal(t, 1, e.Snapshot().ChapterIdx)
	remainingBefore := e.RemainingSeconds()

	// 残留 tick：代际不符，立即作废，不得触碰任何状态
	staleTimer.remaining = 1
	assert.True(t, e.timerTick(staleTimer))
	assert.Equal(t, 1, e.Snapshot().ChapterIdx)
	assert.Equal(t, remainingBefore, e.RemainingSeconds())
}

func TestTimerExpiryForcesAdvance(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c1", 0, 5, grammarQ("q1", 0, 1, "A"), grammarQ("q2", 1, 1, "B")),
			grammarChapter("c2", 1, 600, grammarQ("q3", 0, 1, "C")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	// 只答一题，到时后无校验地强制越章
	require.NoError(t, e.RecordAnswer("q1", "A"))
	drainTimer(e, 5)

	s := e.Snapshot()
	assert.Equal(t, 1, s.ChapterIdx)
	assert.Equal(t, PhaseAnswering, s.Phase)
	assert.Equal(t, 600, e.RemainingSeconds())

	// 超时保存带出了已有答案
	store.mu.Lock()
	_, saved := store.answers["q1"]
	store.mu.Unlock()
	assert.True(t, saved)
}

func TestWarningFiresAtMostOnce(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c1", 0, 600, grammarQ("q1", 0, 1, "A")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	// 走到剩余 300 秒：恰好触发一次 5 分钟预警
	drainTimer(e, 300)
	s := e.Snapshot()
	require.Equal(t, []int{5}, s.Warnings)

	// 预警随快照取走，且不会重复触发
	assert.Empty(t, e.Snapshot().Warnings)
	drainTimer(e, 10)
	assert.Empty(t, e.Snapshot().Warnings)
}

func TestBothWarningsForLongChapter(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c1", 0, 1200, grammarQ("q1", 0, 1, "A")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	drainTimer(e, 600)
	assert.Equal(t, []int{10}, e.Snapshot().Warnings)
	drainTimer(e, 300)
	assert.Equal(t, []int{5}, e.Snapshot().Warnings)
}

func TestManualAdvanceStopsTimer(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c1", 0, 600, grammarQ("q1", 0, 1, "A")),
			grammarChapter("c2", 1, 900, grammarQ("q2", 0, 1, "B")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.RecordAnswer("q1", "A"))
	_, err = e.Next(ctx, false)
	require.NoError(t, err)
	// 章节完成态：旧定时器已停
	assert.Equal(t, 0, e.RemainingSeconds())

	_, err = e.Next(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 900, e.RemainingSeconds())
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 完整走一场：听力章（780 秒，1 个 piece，2 题）正常完成，
// 语法章（600 秒，2 题）只答一题后超时。
// 期望：得 2 / 满 4 / 50.00%，attempt 在语法章超时那一刻被标记完成。
func TestFullSessionWithGrammarTimeout(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Title:  "Practice Test 1",
		Chapters: []Chapter{
			listeningChapter("ch1", 0, 780,
				Piece{ID: "p1", Idx: 0, AudioURL: "clip.mp3", Questions: []Question{
					grammarQ("lq1", 0, 1, "A"),
					grammarQ("lq2", 1, 1, "B"),
				}}),
			grammarChapter("ch2", 1, 600,
				grammarQ("gq1", 0, 1, "C"),
				grammarQ("gq2", 1, 1, "D")),
		},
	}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, clock)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	// 听力：前奏 -> 播放 -> 作答
	require.Equal(t, PhaseAwaitingIntro, e.Snapshot().Phase)
	_, err = e.Play()
	require.NoError(t, err)
	e.AudioProgress(95)
	_, err = e.AudioEnded()
	require.NoError(t, err)

	require.NoError(t, e.RecordAnswer("lq1", "A")) // 对
	require.NoError(t, e.RecordAnswer("lq2", "C")) // 错

	res, err := e.Next(ctx, false)
	require.NoError(t, err)
	require.False(t, res.Blocked) // 全部已答，无需确认
	require.Equal(t, PhaseChapterComplete, res.Snapshot.Phase)

	_, err = e.Next(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, e.Snapshot().ChapterIdx)
	require.Equal(t, 600, e.RemainingSeconds())

	// 语法：只答第一题，等到超时
	require.NoError(t, e.RecordAnswer("gq1", "C"))

	drainTimer(e, 300)
	assert.Equal(t, []int{5}, e.Snapshot().Warnings) // 600 秒章剩 5 分钟预警一次
	drainTimer(e, 300)

	// 超时即终态并自动结算，无需再点任何按钮
	s := e.Snapshot()
	require.Equal(t, PhaseSessionComplete, s.Phase)
	require.True(t, s.Finalized)

	res2 := e.Result()
	require.NotNil(t, res2)
	assert.Equal(t, 2, res2.Score)
	assert.Equal(t, 4, res2.TotalPossible)
	assert.Equal(t, 4, res2.TotalQuestions)
	assert.Equal(t, 2, res2.CorrectCount)
	assert.InDelta(t, 50.00, res2.Percentage, 0.001)

	store.mu.Lock()
	defer store.mu.Unlock()
	// gq2 从未作答，不产生答题记录
	assert.Len(t, store.answers, 3)
	assert.False(t, store.answers["lq2"].IsCorrect)
	assert.True(t, store.answers["gq1"].IsCorrect)
	// 完成时间取超时那一刻的时钟
	assert.Equal(t, clock.now, store.completedAt["attempt-1"])
	assert.Equal(t, 1, store.resultUpserts)
}

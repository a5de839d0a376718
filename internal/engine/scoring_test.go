package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeTrimmedCaseSensitive(t *testing.T) {
	q := grammarQ("q1", 0, 2, "B")

	tests := []struct {
		name     string
		selected string
		correct  bool
		awarded  int
	}{
		{"exact match", "B", true, 2},
		{"surrounding whitespace trimmed", " B ", true, 2},
		{"case sensitive", "b", false, 0},
		{"wrong choice", "A", false, 0},
		{"empty is unanswered", "", false, 0},
		{"whitespace only is unanswered", "   ", false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			correct, awarded := grade(q, tc.selected)
			assert.Equal(t, tc.correct, correct)
			assert.Equal(t, tc.awarded, awarded)
		})
	}
}

// 单章三道语法题，权重 {1,1,2}，答对/答错/答对 -> 3/4 = 75.00%
func TestWeightedScoring(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c1", 0, 600,
				grammarQ("q1", 0, 1, "A"),
				grammarQ("q2", 1, 1, "B"),
				grammarQ("q3", 2, 2, "C")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	require.NoError(t, e.RecordAnswer("q1", "A"))
	require.NoError(t, e.RecordAnswer("q2", "D"))
	require.NoError(t, e.RecordAnswer("q3", "C"))

	for i := 0; i < 4; i++ {
		if e.Snapshot().Phase == PhaseSessionComplete {
			break
		}
		_, err := e.Next(ctx, true)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseSessionComplete, e.Snapshot().Phase)

	res := e.Result()
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 4, res.TotalPossible)
	assert.Equal(t, 2, res.CorrectCount)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.InDelta(t, 75.00, res.Percentage, 0.001)
}

func TestFinalizeIdempotent(t *testing.T) {
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
	ctx := context.Background()

	require.NoError(t, e.RecordAnswer("q1", "A"))
	_, err = e.Next(ctx, false)
	require.NoError(t, err)
	_, err = e.Next(ctx, false) // ChapterComplete -> SessionComplete，自动结算
	require.NoError(t, err)

	first, err := e.Finalize(ctx)
	require.NoError(t, err)
	second, err := e.Finalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 成绩行唯一：自动结算 + 两次显式调用，落库仍只有一行、一次写入
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.resultUpserts)
	assert.Len(t, store.results, 1)
	assert.Equal(t, 1, store.completeAttempts)
}

func TestFinalizeRetryAfterStoreFailure(t *testing.T) {
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
	ctx := context.Background()

	require.NoError(t, e.RecordAnswer("q1", "A"))
	store.resultErr = assert.AnError
	_, err = e.Next(ctx, false)
	require.NoError(t, err)
	_, err = e.Next(ctx, false)
	require.NoError(t, err) // 自动结算失败不影响进入终态

	_, err = e.Finalize(ctx)
	var finErr *FinalizeError
	require.ErrorAs(t, err, &finErr)
	assert.False(t, e.Finalized())

	// 存储恢复后重试成功
	store.resultErr = nil
	res, err := e.Finalize(ctx)
	require.NoError(t, err)
	assert.True(t, e.Finalized())
	assert.Equal(t, 1, res.Score)
}

func TestFinalizeOnlyFromSessionComplete(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestSaveFailureDoesNotBlockNavigation(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	store.answersErr = assert.AnError

	finishListeningPiece(t, e)
	require.NoError(t, e.RecordAnswer("l1", "A"))
	res, err := e.Next(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, 1, res.Snapshot.SubIdx) // 保存失败，导航照常

	// 草稿仍在内存里，后续边界会再次尝试带出
	store.answersErr = nil
	finishListeningPiece(t, e)
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	store.mu.Lock()
	_, saved := store.answers["l1"]
	store.mu.Unlock()
	assert.True(t, saved)
}

func TestBoundarySaveUpsertsNotDuplicates(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	finishListeningPiece(t, e)
	require.NoError(t, e.RecordAnswer("l1", "A"))
	_, err = e.Next(ctx, true)
	require.NoError(t, err)

	// 回到第一个 piece 改答案，再次越过边界：同一 (attempt, question) 被覆盖
	_, err = e.Prev()
	require.NoError(t, err)
	require.NoError(t, e.RecordAnswer("l1", "B"))
	_, err = e.Next(ctx, true)
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "B", store.answers["l1"].SelectedChoice)
	assert.Len(t, store.answers, 1)
}

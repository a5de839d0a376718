package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullTree() *TestTree {
	return &TestTree{
		TestID: "test-1",
		Title:  "Practice Test 1",
		Chapters: []Chapter{
			// 乱序给入，引擎必须按 idx 归一
			grammarChapter("ch-grammar", 2, 600,
				grammarQ("g1", 0, 1, "A"), grammarQ("g2", 1, 1, "B"), grammarQ("g3", 2, 1, "C")),
			listeningChapter("ch-listening", 0, 780,
				Piece{ID: "lp2", Idx: 1, AudioURL: "a2.mp3", Questions: []Question{grammarQ("l3", 0, 1, "C")}},
				Piece{ID: "lp1", Idx: 0, AudioURL: "a1.mp3", Questions: []Question{grammarQ("l1", 0, 1, "A"), grammarQ("l2", 1, 1, "B")}},
			),
			readingChapter("ch-reading", 1, 1500,
				Piece{ID: "rp1", Idx: 0, Passage: "text", Questions: []Question{grammarQ("r1", 0, 1, "A")}},
				Piece{ID: "rp2", Idx: 1, Passage: "text2", Questions: []Question{grammarQ("r2", 0, 1, "B")}},
			),
		},
	}
}

// answerChapter 把一章的所有题目按正确答案填上草稿。
func answerChapter(t *testing.T, e *Engine, c *Chapter) {
	t.Helper()
	for _, q := range c.AllQuestions() {
		require.NoError(t, e.RecordAnswer(q.ID, q.Answer))
	}
}

func finishListeningPiece(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.Play()
	require.NoError(t, err)
	_, err = e.AudioEnded()
	require.NoError(t, err)
}

func TestTraversalOrderFollowsIdx(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	// 归一后的章节顺序：listening, reading, grammar
	require.Equal(t, "ch-listening", e.Tree().Chapters[0].ID)
	require.Equal(t, "ch-reading", e.Tree().Chapters[1].ID)
	require.Equal(t, "ch-grammar", e.Tree().Chapters[2].ID)
	// piece 同样按 idx 排序
	require.Equal(t, "lp1", e.Tree().Chapters[0].Pieces[0].ID)

	type pos struct {
		chapter int
		sub     int
	}
	var visited []pos
	ctx := context.Background()

	for e.Snapshot().Phase != PhaseSessionComplete {
		s := e.Snapshot()
		switch s.Phase {
		case PhaseAwaitingIntro:
			finishListeningPiece(t, e)
		case PhaseAnswering:
			visited = append(visited, pos{s.ChapterIdx, s.SubIdx})
			c := &e.Tree().Chapters[s.ChapterIdx]
			if c.Type == Grammar {
				require.NoError(t, e.RecordAnswer(c.Questions[s.SubIdx].ID, "A"))
			} else {
				for _, q := range c.Pieces[s.SubIdx].Questions {
					require.NoError(t, e.RecordAnswer(q.ID, "A"))
				}
			}
			_, err := e.Next(ctx, true)
			require.NoError(t, err)
		case PhaseChapterComplete:
			_, err := e.Next(ctx, false)
			require.NoError(t, err)
		default:
			t.Fatalf("unexpected phase %s", s.Phase)
		}
	}

	want := []pos{
		{0, 0}, {0, 1}, // listening pieces
		{1, 0}, {1, 1}, // reading pieces
		{2, 0}, {2, 1}, {2, 2}, // grammar questions
	}
	assert.Equal(t, want, visited)
}

func TestChapterBoundaryValidation(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	// 听力章：两个 piece，只答第一个 piece 的第一题
	finishListeningPiece(t, e)
	require.NoError(t, e.RecordAnswer("l1", "A"))
	_, err = e.Next(ctx, false)
	require.NoError(t, err)

	// 第二个 piece 不作答，走到章节边界
	finishListeningPiece(t, e)
	res, err := e.Next(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, 2, res.UnansweredCount) // l2、l3 未答
	assert.Equal(t, 0, res.FirstUnansweredSubIdx)
	assert.Equal(t, PhaseAnswering, e.Snapshot().Phase) // 未推进

	// 显式确认后放行
	res, err = e.Next(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, PhaseChapterComplete, res.Snapshot.Phase)
}

func TestNextDuringAudioRejected(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	// 前奏屏与播放中都不允许前进
	_, err = e.Next(context.Background(), true)
	assert.ErrorIs(t, err, ErrAudioRequired)

	_, err = e.Play()
	require.NoError(t, err)
	_, err = e.Next(context.Background(), true)
	assert.ErrorIs(t, err, ErrAudioRequired)
}

func TestPrevWithinChapterOnly(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	ctx := context.Background()

	// 第一个子项不能再往回
	finishListeningPiece(t, e)
	_, err = e.Prev()
	assert.ErrorIs(t, err, ErrNoPrevSubItem)

	// 到第二个 piece 的前奏屏，回退只会进入作答态，音频不重播
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingIntro, e.Snapshot().Phase)

	snap, err := e.Prev()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.SubIdx)
	assert.Equal(t, PhaseAnswering, snap.Phase)

	// 再前进：第二个 piece 未播过，仍是前奏屏
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingIntro, e.Snapshot().Phase)

	// 播放中离开即视为已消耗，回来直接进入作答态
	_, err = e.Play()
	require.NoError(t, err)
	_, err = e.Prev()
	require.NoError(t, err)
	_, err = e.Next(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, PhaseAnswering, e.Snapshot().Phase)
}

func TestRecordAnswerOverwriteAndValidation(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.RecordAnswer("g1", "B"))
	require.NoError(t, e.RecordAnswer("g1", "A")) // 幂等覆盖
	assert.ErrorIs(t, e.RecordAnswer("nope", "A"), ErrUnknownQuestion)
}

func TestSessionInitErrors(t *testing.T) {
	tree := fullTree()

	store := newFakeStore(tree)
	store.loadErr = assert.AnError
	_, err := startTestSession(tree, store, nil)
	var initErr *SessionInitError
	require.ErrorAs(t, err, &initErr)

	store = newFakeStore(tree)
	store.createErr = assert.AnError
	_, err = startTestSession(tree, store, nil)
	require.ErrorAs(t, err, &initErr)
	// attempt 创建失败时不留下半个会话
	assert.Equal(t, 0, store.attemptSeq)
}

func TestDurationResolution(t *testing.T) {
	defaults := DurationDefaults{ByChapterIdx: []int{13, 25}, FallbackMinutes: 20}

	assert.Equal(t, 780, defaults.Resolve(780, 0))  // 显式时长优先
	assert.Equal(t, 780, defaults.Resolve(0, 0))    // 按位置查表
	assert.Equal(t, 1500, defaults.Resolve(0, 1))   // 表内第二项
	assert.Equal(t, 1200, defaults.Resolve(0, 5))   // 表外兜底
	assert.Equal(t, 1200, DurationDefaults{}.Resolve(0, 0)) // 零值仍有兜底
}

func TestPointsNormalizedToOne(t *testing.T) {
	tree := &TestTree{
		TestID: "test-1",
		Chapters: []Chapter{
			grammarChapter("c", 0, 600, grammarQ("q1", 0, 0, "A")),
		},
	}
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 1, e.Tree().Chapters[0].Questions[0].Points)
}

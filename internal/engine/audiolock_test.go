package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioLockDeniesPauseAndSeek(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Play()
	require.NoError(t, err)
	require.True(t, e.Snapshot().AudioLocked)

	e.AudioProgress(10.5)

	// 暂停被驳回，继续从当前位置播放
	resumeAt, denied := e.AudioPauseAttempt()
	assert.True(t, denied)
	assert.Equal(t, 10.5, resumeAt)

	// 回拖与跳进都被钳制到已知最远位置
	assert.Equal(t, 10.5, e.AudioSeekAttempt(2.0))
	assert.Equal(t, 10.5, e.AudioSeekAttempt(55.0))

	// 进度只进不退
	assert.Equal(t, 10.5, e.AudioProgress(8.0))
	assert.Equal(t, 12.0, e.AudioProgress(12.0))

	s := e.Snapshot()
	assert.True(t, s.AudioLocked)
	assert.Equal(t, 12.0, s.AudioPosition)
}

func TestAudioLockReleasedAtEnd(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Play()
	require.NoError(t, err)
	e.AudioProgress(30)

	snap, err := e.AudioEnded()
	require.NoError(t, err)
	assert.Equal(t, PhaseAnswering, snap.Phase)
	assert.False(t, snap.AudioLocked)

	// 锁释放后暂停不再被驳回
	_, denied := e.AudioPauseAttempt()
	assert.False(t, denied)
}

func TestAutoplayFailureDegradesToManualPlay(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Play()
	require.NoError(t, err)

	// 自动播放被拦截：不致命，停在播放态等手动触发
	e.AutoplayFailed("NotAllowedError")
	assert.Equal(t, PhasePlayingAudio, e.Snapshot().Phase)

	_, err = e.Play()
	require.NoError(t, err)
	_, err = e.AudioEnded()
	require.NoError(t, err)
	assert.Equal(t, PhaseAnswering, e.Snapshot().Phase)
}

func TestAudioHardResetOnPieceSwitch(t *testing.T) {
	tree := fullTree()
	store := newFakeStore(tree)
	e, err := startTestSession(tree, store, nil)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Play()
	require.NoError(t, err)
	e.AudioProgress(20)
	_, err = e.AudioEnded()
	require.NoError(t, err)

	// 进入下一个 piece：音频状态硬复位
	_, err = e.Next(context.Background(), true)
	require.NoError(t, err)
	s := e.Snapshot()
	assert.False(t, s.AudioLocked)
	assert.Equal(t, 0.0, s.AudioPosition)

	// 播放态下 Play 只对当前 piece 有效
	_, err = e.AudioEnded()
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestPlayRejectedOutsideListening(t *testing.T) {
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

	_, err = e.Play()
	assert.ErrorIs(t, err, ErrBadTransition)
}

package engine

import "go.uber.org/zap"

// AudioLock 单个听力 piece 的播放锁：只许播一遍，不许暂停，不许回拖
// 或跳进。锁内只维护“已知最远进度”，一切播放端上报都向它收敛。
// 状态变更全部发生在引擎互斥锁之下，与导航和定时器回调互斥。
type AudioLock struct {
	pieceID  string
	locked   bool
	playing  bool
	position float64 // 已知最远播放位置（秒）
	ended    bool
}

func (a *AudioLock) Locked() bool      { return a != nil && a.locked }
func (a *AudioLock) Position() float64 {
	if a == nil {
		return 0
	}
	return a.position
}

// Play 开始播放并上锁（AwaitingIntro 态），或在自动播放被浏览器拦截后
// 作为手动播放入口再次触发（PlayingAudio 态）。
func (e *Engine) Play() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	c := e.currentChapterLocked()
	switch e.phase {
	case PhaseAwaitingIntro:
		if c == nil || c.Type != Listening || e.subIdx >= len(c.Pieces) {
			return e.snapshotLocked(), ErrBadTransition
		}
		p := &c.Pieces[e.subIdx]
		e.audio = &AudioLock{pieceID: p.ID, locked: true, playing: true}
		// 一经开播即视为已消耗，离开后不可重播
		e.playedPieces[p.ID] = true
		e.phase = PhasePlayingAudio
		return e.snapshotLocked(), nil

	case PhasePlayingAudio:
		if e.audio != nil {
			e.audio.playing = true
		}
		return e.snapshotLocked(), nil
	}
	return e.snapshotLocked(), ErrBadTransition
}

// AutoplayFailed 播放端上报自动播放被拦截或媒体加载失败。降级为手动
// 播放，从不致命：记日志后停在 PlayingAudio 态等待 Play。
func (e *Engine) AutoplayFailed(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audio == nil {
		return
	}
	e.audio.playing = false
	err := &AudioPlaybackError{PieceID: e.audio.pieceID, Reason: reason}
	e.log.Warn("audio playback degraded to manual trigger",
		zap.String("attempt", e.attemptID), zap.Error(err))
}

// AudioProgress 播放端周期性上报位置，进度只进不退。
func (e *Engine) AudioProgress(pos float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audio == nil || !e.audio.locked {
		return 0
	}
	if pos > e.audio.position {
		e.audio.position = pos
	}
	return e.audio.position
}

// AudioPauseAttempt 锁定期间的暂停请求一律被驳回：返回应当立即恢复
// 播放的位置。锁已释放（播放自然结束）时暂停才会被放行。
func (e *Engine) AudioPauseAttempt() (resumeAt float64, denied bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audio == nil || !e.audio.locked {
		return 0, false
	}
	e.audio.playing = true
	return e.audio.position, true
}

// AudioSeekAttempt 锁定期间的拖动请求被钳制到已知最远位置：
// 既不能回拖重听，也不能越过当前进度跳播。
func (e *Engine) AudioSeekAttempt(target float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.audio == nil || !e.audio.locked {
		return target
	}
	return e.audio.position
}

// AudioEnded 播放自然到达媒体末尾：释放锁并进入作答态。
func (e *Engine) AudioEnded() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.phase != PhasePlayingAudio || e.audio == nil {
		return e.snapshotLocked(), ErrBadTransition
	}
	e.audio.locked = false
	e.audio.playing = false
	e.audio.ended = true
	e.phase = PhaseAnswering
	return e.snapshotLocked(), nil
}

// resetAudioLocked 切换子项/章节时硬复位：停止播放、清空源、释放锁。
// 离开后的 piece 不可续播。
func (e *Engine) resetAudioLocked() {
	e.audio = nil
}

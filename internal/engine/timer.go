package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// 预警阈值规则：10–13 分钟的章节剩 5 分钟提示一次；
// 20 分钟及以上的章节在剩 10 分钟、5 分钟各提示一次。
func warningThresholds(durationSeconds int) []int {
	switch {
	case durationSeconds >= 20*60:
		return []int{10 * 60, 5 * 60}
	case durationSeconds >= 10*60 && durationSeconds <= 13*60:
		return []int{5 * 60}
	default:
		return nil
	}
}

// chapterTimer 单章倒计时。epoch 绑定创建时的引擎代际，
// 章节切换后残留的 tick 与当前代际不符，直接作废。
type chapterTimer struct {
	epoch      uint64
	remaining  int
	thresholds map[int]bool // 阈值秒数 -> 是否已触发
	stop       chan struct{}
}

// startChapterTimerLocked 进入新章时调用（持锁）。递增代际让旧定时器
// 全部失效，再起一条新的秒级倒计时 goroutine。
func (e *Engine) startChapterTimerLocked(durationSeconds int) {
	e.stopTimerLocked()
	e.epoch++

	t := &chapterTimer{
		epoch:      e.epoch,
		remaining:  durationSeconds,
		thresholds: make(map[int]bool),
		stop:       make(chan struct{}),
	}
	for _, th := range warningThresholds(durationSeconds) {
		t.thresholds[th] = false
	}
	e.timer = t

	go e.runTimer(t)
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		close(e.timer.stop)
		e.timer = nil
	}
}

func (e *Engine) runTimer(t *chapterTimer) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C():
			if e.timerTick(t) {
				return
			}
		}
	}
}

// timerTick 一次心跳。返回 true 表示该定时器已走完使命（过期或触发了
// 强制推进）。代际检查和状态变更在同一把锁内完成，和用户导航、音频
// 事件天然互斥：同一章不可能出现两次推进。
func (e *Engine) timerTick(t *chapterTimer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.epoch != e.epoch {
		// 章节已切换，残留 tick 作废
		return true
	}

	t.remaining--
	for th, fired := range t.thresholds {
		if !fired && t.remaining == th {
			t.thresholds[th] = true
			e.warnings = append(e.warnings, th/60)
			e.log.Info("chapter time warning",
				zap.String("attempt", e.attemptID),
				zap.Int("chapter", e.chapterIdx),
				zap.Int("remainingMinutes", th/60))
		}
	}

	if t.remaining <= 0 {
		e.log.Info("chapter timed out, forcing advance",
			zap.String("attempt", e.attemptID),
			zap.Int("chapter", e.chapterIdx))
		e.forceAdvanceLocked(context.Background())
		return true
	}
	return false
}

// RemainingSeconds 当前章剩余秒数，无活动定时器时为 0。
func (e *Engine) RemainingSeconds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer == nil {
		return 0
	}
	return e.timer.remaining
}

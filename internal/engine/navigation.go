package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// NextResult 前进一步的结果。Blocked 表示停在章节边界等待确认：
// 当前章还有未作答题目，调用方要么带 confirm 重试，要么引导学生
// 回到第一个未答子项。
type NextResult struct {
	Blocked               bool     `json:"blocked"`
	UnansweredCount       int      `json:"unansweredCount,omitempty"`
	FirstUnansweredSubIdx int      `json:"firstUnansweredSubIdx,omitempty"`
	Snapshot              Snapshot `json:"state"`
}

// RecordAnswer 幂等覆盖当前草稿，不落库。持久化发生在子项/章节边界。
func (e *Engine) RecordAnswer(questionID, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return ErrSessionFinished
	}
	if !e.questionExistsLocked(questionID) {
		return ErrUnknownQuestion
	}
	e.drafts[questionID] = value
	e.touchLocked()
	return nil
}

func (e *Engine) questionExistsLocked(questionID string) bool {
	for ci := range e.tree.Chapters {
		for _, q := range e.tree.Chapters[ci].AllQuestions() {
			if q.ID == questionID {
				return true
			}
		}
	}
	return false
}

// Next 用户驱动的前进。章节边界处做未答校验，confirm 为显式的
// “仍然继续”。超时驱动的推进不走这里，见 forceAdvanceLocked。
func (e *Engine) Next(ctx context.Context, confirm bool) (NextResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	switch e.phase {
	case PhaseSessionComplete:
		return NextResult{Snapshot: e.snapshotLocked()}, ErrSessionFinished

	case PhaseAwaitingIntro, PhasePlayingAudio:
		// 听力音频播完之前不允许跳过
		return NextResult{Snapshot: e.snapshotLocked()}, ErrAudioRequired

	case PhaseAnswering:
		c := e.currentChapterLocked()
		if e.subIdx+1 < c.SubItemCount() {
			// 子项边界：听力/阅读按 piece 批量保存后进入下一子项
			if c.Type != Grammar {
				e.savePieceLocked(ctx, &c.Pieces[e.subIdx])
			}
			e.enterSubItemLocked(e.subIdx + 1)
			return NextResult{Snapshot: e.snapshotLocked()}, nil
		}

		// 章节边界：先校验未答，再整章落库
		if !confirm {
			count, firstIdx := e.unansweredLocked(c)
			if count > 0 {
				return NextResult{
					Blocked:               true,
					UnansweredCount:       count,
					FirstUnansweredSubIdx: firstIdx,
					Snapshot:              e.snapshotLocked(),
				}, nil
			}
		}
		e.saveChapterLocked(ctx, c)
		e.stopTimerLocked()
		e.resetAudioLocked()
		e.phase = PhaseChapterComplete
		return NextResult{Snapshot: e.snapshotLocked()}, nil

	case PhaseChapterComplete:
		if e.chapterIdx+1 < len(e.tree.Chapters) {
			e.enterChapterLocked(e.chapterIdx + 1)
		} else {
			e.completeSessionLocked(ctx)
		}
		return NextResult{Snapshot: e.snapshotLocked()}, nil
	}

	return NextResult{Snapshot: e.snapshotLocked()}, ErrBadTransition
}

// Prev 仅限本章子项内回退，且只会回到作答态：已播放的听力不会重播。
func (e *Engine) Prev() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	switch e.phase {
	case PhaseSessionComplete, PhaseChapterComplete:
		return e.snapshotLocked(), ErrBadTransition
	case PhaseAwaitingIntro, PhasePlayingAudio, PhaseAnswering:
	default:
		return e.snapshotLocked(), ErrBadTransition
	}

	if e.subIdx == 0 {
		return e.snapshotLocked(), ErrNoPrevSubItem
	}

	c := e.currentChapterLocked()
	// 播放中离开即视为已消耗，该 piece 的音频不可恢复
	if e.phase == PhasePlayingAudio && c.Type == Listening && e.subIdx < len(c.Pieces) {
		e.playedPieces[c.Pieces[e.subIdx].ID] = true
	}
	e.resetAudioLocked()

	e.subIdx--
	e.phase = PhaseAnswering
	return e.snapshotLocked(), nil
}

// enterChapterLocked 进入新章：重置子项位置与音频，重启倒计时。
// 旧章定时器在 startChapterTimerLocked 里通过代际递增失效。
func (e *Engine) enterChapterLocked(idx int) {
	e.chapterIdx = idx
	e.resetAudioLocked()
	e.enterSubItemLocked(0)
	c := e.currentChapterLocked()
	e.startChapterTimerLocked(c.DurationSeconds)
}

func (e *Engine) enterSubItemLocked(idx int) {
	e.subIdx = idx
	c := e.currentChapterLocked()
	e.resetAudioLocked()

	if c.Type == Listening && idx < len(c.Pieces) && !e.playedPieces[c.Pieces[idx].ID] {
		e.phase = PhaseAwaitingIntro
		return
	}
	e.phase = PhaseAnswering
}

// completeSessionLocked 终态。自动结算失败不离开终态，调用方可通过
// Finalize 重试。
func (e *Engine) completeSessionLocked(ctx context.Context) {
	e.stopTimerLocked()
	e.resetAudioLocked()
	e.phase = PhaseSessionComplete
	if err := e.finalizeLocked(ctx); err != nil {
		e.log.Error("auto finalize failed, retry via Finalize",
			zap.String("attempt", e.attemptID), zap.Error(err))
	}
}

// forceAdvanceLocked 超时强制推进：保存现有答案后无条件越过本章，
// 不做未答校验。只会由持有当前代际的定时器触发一次。
func (e *Engine) forceAdvanceLocked(ctx context.Context) {
	c := e.currentChapterLocked()
	if c == nil || e.phase == PhaseSessionComplete {
		return
	}
	e.saveChapterLocked(ctx, c)

	if e.chapterIdx+1 < len(e.tree.Chapters) {
		e.enterChapterLocked(e.chapterIdx + 1)
		return
	}
	e.completeSessionLocked(ctx)
}

// unansweredLocked 统计本章空草稿的题目数，并给出第一个未答题所在的子项序号。
func (e *Engine) unansweredLocked(c *Chapter) (count, firstSubIdx int) {
	firstSubIdx = -1

	mark := func(subIdx int, q Question) {
		if strings.TrimSpace(e.drafts[q.ID]) == "" {
			count++
			if firstSubIdx == -1 {
				firstSubIdx = subIdx
			}
		}
	}

	if c.Type == Grammar {
		for i, q := range c.Questions {
			mark(i, q)
		}
		return count, firstSubIdx
	}
	for pi := range c.Pieces {
		for _, q := range c.Pieces[pi].Questions {
			mark(pi, q)
		}
	}
	return count, firstSubIdx
}

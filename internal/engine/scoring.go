package engine

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
)

// grade 判分：去除首尾空格后精确匹配，大小写敏感。
func grade(q Question, selected string) (correct bool, awarded int) {
	if strings.TrimSpace(selected) == "" {
		return false, 0
	}
	if strings.TrimSpace(selected) == strings.TrimSpace(q.Answer) {
		return true, q.Points
	}
	return false, 0
}

// buildUpsertsLocked 为有非空草稿的题目生成待落库记录。
func (e *Engine) buildUpsertsLocked(questions []Question, qtype ChapterType) []AnswerUpsert {
	var ups []AnswerUpsert
	for _, q := range questions {
		draft, ok := e.drafts[q.ID]
		if !ok || strings.TrimSpace(draft) == "" {
			continue
		}
		correct, awarded := grade(q, draft)
		ups = append(ups, AnswerUpsert{
			QuestionID:     q.ID,
			QuestionType:   qtype,
			SelectedChoice: draft,
			IsCorrect:      correct,
			PointsAwarded:  awarded,
		})
	}
	return ups
}

// savePieceLocked 子项边界的按 piece 批量保存。失败只记日志，
// 内存草稿仍是事实来源，导航照常进行，下个边界再带出去。
func (e *Engine) savePieceLocked(ctx context.Context, p *Piece) {
	c := e.currentChapterLocked()
	ups := e.buildUpsertsLocked(p.Questions, c.Type)
	if len(ups) == 0 {
		return
	}
	if err := e.store.UpsertAnswers(ctx, e.attemptID, ups); err != nil {
		saveErr := &AnswerSaveError{AttemptID: e.attemptID, Err: err}
		e.log.Warn("piece boundary save failed, continuing with in-memory drafts",
			zap.String("piece", p.ID), zap.Error(saveErr))
	}
}

// saveChapterLocked 章节边界的整章批量保存，容错策略同上。
func (e *Engine) saveChapterLocked(ctx context.Context, c *Chapter) {
	ups := e.buildUpsertsLocked(c.AllQuestions(), c.Type)
	if len(ups) == 0 {
		return
	}
	if err := e.store.UpsertAnswers(ctx, e.attemptID, ups); err != nil {
		saveErr := &AnswerSaveError{AttemptID: e.attemptID, Err: err}
		e.log.Warn("chapter boundary save failed, continuing with in-memory drafts",
			zap.Int("chapter", c.Idx), zap.Error(saveErr))
	}
}

// Finalize 结算重试入口。仅在 SessionComplete 态有效；幂等，
// 成绩按 attempt upsert，绝不会产生第二条 Result。
func (e *Engine) Finalize(ctx context.Context) (*ResultUpsert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseSessionComplete {
		return nil, ErrBadTransition
	}
	if err := e.finalizeLocked(ctx); err != nil {
		return nil, err
	}
	return e.finalResult, nil
}

// finalizeLocked 汇总全卷：逐题按最终草稿判分，先把所有已答记录
// 兜底落库，再写 Result 并标记 attempt 完成时间。完整成功后才置
// finalized，失败可重试；重复调用直接返回既有结果。
func (e *Engine) finalizeLocked(ctx context.Context) error {
	if e.finalized {
		return nil
	}

	var (
		awarded  int
		possible int
		correct  int
		total    int
		ups      []AnswerUpsert
	)
	for ci := range e.tree.Chapters {
		c := &e.tree.Chapters[ci]
		for _, q := range c.AllQuestions() {
			total++
			possible += q.Points
			draft := e.drafts[q.ID]
			ok, pts := grade(q, draft)
			if ok {
				correct++
				awarded += pts
			}
			if strings.TrimSpace(draft) != "" {
				ups = append(ups, AnswerUpsert{
					QuestionID:     q.ID,
					QuestionType:   c.Type,
					SelectedChoice: draft,
					IsCorrect:      ok,
					PointsAwarded:  pts,
				})
			}
		}
	}

	percentage := 0.0
	if possible > 0 {
		percentage = math.Round(float64(awarded)/float64(possible)*10000) / 100
	}
	result := ResultUpsert{
		Score:          awarded,
		CorrectCount:   correct,
		TotalQuestions: total,
		TotalPossible:  possible,
		Percentage:     percentage,
	}

	if len(ups) > 0 {
		if err := e.store.UpsertAnswers(ctx, e.attemptID, ups); err != nil {
			return &FinalizeError{AttemptID: e.attemptID, Err: err}
		}
	}
	if err := e.store.UpsertResult(ctx, e.attemptID, result); err != nil {
		return &FinalizeError{AttemptID: e.attemptID, Err: err}
	}
	if err := e.store.CompleteAttempt(ctx, e.attemptID, e.clock.Now()); err != nil {
		return &FinalizeError{AttemptID: e.attemptID, Err: err}
	}

	e.finalized = true
	e.finalResult = &result
	e.log.Info("session finalized",
		zap.String("attempt", e.attemptID),
		zap.Int("score", awarded),
		zap.Int("possible", possible),
		zap.Float64("percentage", percentage))
	return nil
}

// Result 结算后的成绩，未结算时为 nil。
func (e *Engine) Result() *ResultUpsert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalResult
}

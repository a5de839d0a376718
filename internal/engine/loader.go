package engine

import (
	"context"
	"errors"
	"sort"
)

// DurationDefaults 章节无显式时长时的查表规则：先按章节序号查表，表外兜底。
type DurationDefaults struct {
	ByChapterIdx    []int // 分钟，按章节位置索引
	FallbackMinutes int
}

func (d DurationDefaults) Resolve(declaredSeconds, position int) int {
	if declaredSeconds > 0 {
		return declaredSeconds
	}
	if position >= 0 && position < len(d.ByChapterIdx) && d.ByChapterIdx[position] > 0 {
		return d.ByChapterIdx[position] * 60
	}
	if d.FallbackMinutes > 0 {
		return d.FallbackMinutes * 60
	}
	return 20 * 60
}

// StartSession 加载章节树、创建 attempt 并返回已进入第一章的引擎。
// 任一步失败都包装为 SessionInitError，不向导航层暴露半成品会话。
func StartSession(ctx context.Context, store Store, testID string, userID *uint, defaults DurationDefaults, opts Options) (*Engine, error) {
	tree, err := store.LoadTestTree(ctx, testID)
	if err != nil {
		return nil, &SessionInitError{TestID: testID, Err: err}
	}
	if tree == nil || len(tree.Chapters) == 0 {
		return nil, &SessionInitError{TestID: testID, Err: errors.New("test has no chapters")}
	}

	normalizeTree(tree, defaults)

	attemptID, err := store.CreateAttempt(ctx, testID, userID)
	if err != nil {
		return nil, &SessionInitError{TestID: testID, Err: err}
	}

	return NewEngine(store, tree, attemptID, opts), nil
}

// normalizeTree 树内排序是状态机唯一的遍历顺序：章节、piece、题目一律按 idx 升序。
// 题目权重缺省归一为 1，章节时长按规则表解析。
func normalizeTree(tree *TestTree, defaults DurationDefaults) {
	sort.SliceStable(tree.Chapters, func(i, j int) bool {
		return tree.Chapters[i].Idx < tree.Chapters[j].Idx
	})

	for ci := range tree.Chapters {
		c := &tree.Chapters[ci]
		c.DurationSeconds = defaults.Resolve(c.DurationSeconds, ci)

		sort.SliceStable(c.Pieces, func(i, j int) bool {
			return c.Pieces[i].Idx < c.Pieces[j].Idx
		})
		sort.SliceStable(c.Questions, func(i, j int) bool {
			return c.Questions[i].Idx < c.Questions[j].Idx
		})

		for qi := range c.Questions {
			if c.Questions[qi].Points <= 0 {
				c.Questions[qi].Points = 1
			}
		}
		for pi := range c.Pieces {
			p := &c.Pieces[pi]
			sort.SliceStable(p.Questions, func(i, j int) bool {
				return p.Questions[i].Idx < p.Questions[j].Idx
			})
			for qi := range p.Questions {
				if p.Questions[qi].Points <= 0 {
					p.Questions[qi].Points = 1
				}
			}
		}
	}
}

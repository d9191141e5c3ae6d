package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"math/rand"
	"strings"
)

type SelectCriteria struct {
	Difficulty      string
	Tags            []string
	AvoidRepetition bool
	UsedIDs         []string
}

type Selection struct {
	Entry         *model.QuestionPoolEntry
	ID            string
	Index         int
	Candidates    int
	AppliedStages []string
}

type poolCandidate struct {
	index int
	id    string
	entry *model.QuestionPoolEntry
}

// filterStage 返回收窄后的非空集合；ok 为 false 时该阶段不生效，沿用输入集合
type filterStage struct {
	name  string
	apply func(in []poolCandidate) (out []poolCandidate, ok bool)
}

func selectionStages(c SelectCriteria) []filterStage {
	var stages []filterStage
	if c.Difficulty != "" {
		stages = append(stages, filterStage{name: "difficulty", apply: func(in []poolCandidate) ([]poolCandidate, bool) {
			return narrow(in, func(pc poolCandidate) bool {
				return strings.EqualFold(pc.entry.Difficulty, c.Difficulty)
			})
		}})
	}
	if len(c.Tags) > 0 {
		wanted := make(map[string]struct{}, len(c.Tags))
		for _, t := range c.Tags {
			wanted[strings.ToLower(t)] = struct{}{}
		}
		stages = append(stages, filterStage{name: "tags", apply: func(in []poolCandidate) ([]poolCandidate, bool) {
			return narrow(in, func(pc poolCandidate) bool {
				for _, t := range pc.entry.Tags {
					if _, ok := wanted[strings.ToLower(t)]; ok {
						return true
					}
				}
				return false
			})
		}})
	}
	if c.AvoidRepetition && len(c.UsedIDs) > 0 {
		used := make(map[string]struct{}, len(c.UsedIDs))
		for _, id := range c.UsedIDs {
			used[id] = struct{}{}
		}
		// 全部用过时不生效，回退到前面阶段的结果（宁可重复也不失败）
		stages = append(stages, filterStage{name: "unused", apply: func(in []poolCandidate) ([]poolCandidate, bool) {
			return narrow(in, func(pc poolCandidate) bool {
				_, seen := used[pc.id]
				return !seen
			})
		}})
	}
	return stages
}

func narrow(in []poolCandidate, keep func(poolCandidate) bool) ([]poolCandidate, bool) {
	out := make([]poolCandidate, 0, len(in))
	for _, pc := range in {
		if keep(pc) {
			out = append(out, pc)
		}
	}
	if len(out) == 0 {
		return in, false
	}
	return out, true
}

// SelectQuestion 按难度、标签、去重依次收窄候选集，再均匀随机选一道。
// intn 为 nil 时使用 math/rand 全局源。
func SelectQuestion(pool []model.QuestionPoolEntry, criteria SelectCriteria, intn func(int) int) (*Selection, error) {
	if len(pool) == 0 {
		return nil, util.ErrEmptyPool
	}
	if intn == nil {
		intn = rand.Intn
	}

	candidates := make([]poolCandidate, len(pool))
	for i := range pool {
		candidates[i] = poolCandidate{index: i, id: pool[i].Identifier(i), entry: &pool[i]}
	}

	var applied []string
	for _, stage := range selectionStages(criteria) {
		if narrowed, ok := stage.apply(candidates); ok {
			candidates = narrowed
			applied = append(applied, stage.name)
		}
	}

	pick := candidates[intn(len(candidates))]
	return &Selection{
		Entry:         pick.entry,
		ID:            pick.id,
		Index:         pick.index,
		Candidates:    len(candidates),
		AppliedStages: applied,
	}, nil
}

// mergeUsedID 追加新题目 id，不重复
func mergeUsedID(used []string, id string) []string {
	for _, u := range used {
		if u == id {
			return append([]string(nil), used...)
		}
	}
	out := make([]string, 0, len(used)+1)
	out = append(out, used...)
	return append(out, id)
}

package narrative

import (
	"context"
	"fmt"
	"time"

	"github.com/chris/questd/internal/flow"
	"github.com/chris/questd/internal/llm"
	"github.com/chris/questd/internal/logger"
)

// Timeouts per call type. Anything slower falls back to canned content.
const (
	batchTimeout = 3 * time.Second
	bossTimeout  = 4 * time.Second
)

// QuestSpec is a generated quest before persistence.
type QuestSpec struct {
	Title       string
	Description string
	Tier        flow.Tier
	XP          int
}

// Envelope carries the generation context handed to the model.
type Envelope struct {
	UserID     string
	TargetTier flow.Tier
	Struggling bool // yesterday's batch was not finished
}

// Service composes prompts and guards every model call with a deterministic
// fallback. It never returns an error: a failed generation degrades, it does
// not abort.
type Service struct {
	llm llm.Client
	log *logger.Logger
}

func New(client llm.Client, log *logger.Logger) *Service {
	return &Service{llm: client, log: log.With("component", "narrative")}
}

// fallbackQuests are used verbatim, in order, whenever the model cannot be
// consulted.
var fallbackQuests = []QuestSpec{
	{Title: "系統重啟", Description: "關機十分鐘，離開螢幕走動一下。"},
	{Title: "資料同步", Description: "把今天的待辦寫進清單，三件就好。"},
	{Title: "硬體維護", Description: "喝一杯水，伸展肩頸三分鐘。"},
}

const batchSystemPrompt = `你是習慣教練。回傳 JSON：{"quests":[{"title":"...","description":"..."}]}。` +
	`標題必須是繁體中文，簡短具體。不要多餘文字。`

// QuestBatch asks the model for n quest ideas. Malformed, short, non-CJK or
// slow output all degrade to the fixed fallback templates.
func (s *Service) QuestBatch(ctx context.Context, env Envelope, n int) []QuestSpec {
	if n <= 0 {
		return nil
	}
	specs := s.questBatchLLM(ctx, env, n)
	if specs == nil {
		specs = fallback(n)
	}
	for i := range specs {
		specs[i].Tier = env.TargetTier
		specs[i].XP = flow.BaseXP[env.TargetTier]
	}
	return specs
}

func (s *Service) questBatchLLM(ctx context.Context, env Envelope, n int) []QuestSpec {
	if s.llm == nil {
		return nil
	}
	userPrompt := fmt.Sprintf("產生 %d 個今日任務，難度 %s。", n, env.TargetTier)
	if env.Struggling {
		userPrompt += " 使用者昨天沒有完成任務，請出更輕鬆、更容易開始的任務。"
	}

	res, err := llm.GenerateJSON(ctx, s.llm, batchSystemPrompt, userPrompt, batchTimeout)
	if err != nil {
		s.log.Warn("quest batch generation failed, using fallback", "err", err)
		return nil
	}

	var specs []QuestSpec
	for _, q := range res.Get("quests").Array() {
		title := q.Get("title").String()
		if len(title) < 2 || !llm.HasCJK(title) {
			continue
		}
		specs = append(specs, QuestSpec{
			Title:       title,
			Description: q.Get("description").String(),
		})
		if len(specs) == n {
			break
		}
	}
	if len(specs) < n {
		s.log.Warn("quest batch came back short, using fallback", "got", len(specs), "want", n)
		return nil
	}
	return specs
}

func fallback(n int) []QuestSpec {
	out := make([]QuestSpec, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fallbackQuests[i%len(fallbackQuests)])
	}
	return out
}

// BossDescription narrates a boss-override quest.
func (s *Service) BossDescription(ctx context.Context, rivalName string, rivalLevel int) string {
	fallbackText := fmt.Sprintf("%s 已經升到 Lv.%d，正在超越你。擊敗他，奪回主導權。", rivalName, rivalLevel)
	if s.llm == nil {
		return fallbackText
	}
	res, err := llm.GenerateJSON(ctx, s.llm,
		`回傳 JSON：{"description":"..."}。用繁體中文寫一段宿敵挑戰敘述，兩句以內。`,
		fmt.Sprintf("宿敵 %s，等級 %d。", rivalName, rivalLevel),
		bossTimeout)
	if err != nil {
		s.log.Warn("boss description failed, using fallback", "err", err)
		return fallbackText
	}
	if d := res.Get("description").String(); llm.HasCJK(d) {
		return d
	}
	return fallbackText
}

// BridgeQuest produces a tiny restart quest for a stagnant goal.
func (s *Service) BridgeQuest(ctx context.Context, goalTitle string) QuestSpec {
	spec := QuestSpec{
		Title:       fmt.Sprintf("重啟：%s", goalTitle),
		Description: "十五分鐘就好，往這個目標踏出最小的一步。",
		Tier:        flow.TierE,
		XP:          20,
	}
	if s.llm == nil {
		return spec
	}
	res, err := llm.GenerateJSON(ctx, s.llm,
		`回傳 JSON：{"title":"...","description":"..."}。為停滯的目標設計一個十五分鐘內能完成的小任務，繁體中文。`,
		fmt.Sprintf("目標：%s", goalTitle),
		batchTimeout)
	if err != nil {
		s.log.Warn("bridge quest generation failed, using fallback", "err", err)
		return spec
	}
	if t := res.Get("title").String(); llm.HasCJK(t) {
		spec.Title = t
		spec.Description = res.Get("description").String()
	}
	return spec
}

// RerollTaunt colors a reroll that threw away unfinished quests.
func (s *Service) RerollTaunt(ctx context.Context, discarded int) string {
	fallbackText := fmt.Sprintf("丟掉 %d 個任務重抽？好吧，這次別再逃了。", discarded)
	if s.llm == nil {
		return fallbackText
	}
	res, err := llm.GenerateJSON(ctx, s.llm,
		`回傳 JSON：{"taunt":"..."}。用繁體中文寫一句嘲諷，對象剛剛付費重抽了今日任務。`,
		fmt.Sprintf("被丟棄的任務數：%d", discarded),
		batchTimeout)
	if err != nil {
		return fallbackText
	}
	if t := res.Get("taunt").String(); llm.HasCJK(t) {
		return t
	}
	return fallbackText
}

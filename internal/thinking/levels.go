package thinking

// Level is a discrete effort tier assigned to a task. Levels are ordered;
// Upgrade and Downgrade step through the order and clamp at both ends.
type Level string

const (
	LevelOff     Level = "off"
	LevelMinimal Level = "minimal"
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelXHigh   Level = "xhigh"
)

// DefaultLevel is the global fallback when no precedence tier resolves.
const DefaultLevel = LevelMedium

// Model slots. A slot names the class of model a level runs on; the
// resolver maps slots to concrete model ids per provider.
const (
	SlotNone            = ""
	SlotLocalSmall      = "local-small"
	SlotLocalMedium     = "local-medium"
	SlotProviderDefault = "provider-default"
	SlotProviderHeavy   = "provider-heavy"
	SlotOpus            = "opus"
)

// profile describes how a level executes.
type profile struct {
	Slot           string
	TokenBudget    int
	LocalPreferred bool
}

var levelOrder = []Level{LevelOff, LevelMinimal, LevelLow, LevelMedium, LevelHigh, LevelXHigh}

var levelProfiles = map[Level]profile{
	LevelOff:     {Slot: SlotNone, TokenBudget: 0},
	LevelMinimal: {Slot: SlotLocalSmall, TokenBudget: 1024, LocalPreferred: true},
	LevelLow:     {Slot: SlotLocalMedium, TokenBudget: 4096, LocalPreferred: true},
	LevelMedium:  {Slot: SlotProviderDefault, TokenBudget: 8192},
	LevelHigh:    {Slot: SlotProviderHeavy, TokenBudget: 16384},
	LevelXHigh:   {Slot: SlotOpus, TokenBudget: 32768},
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelProfiles[l]
	return ok
}

// index returns the position of l in the level order, or -1.
func (l Level) index() int {
	for i, lv := range levelOrder {
		if lv == l {
			return i
		}
	}
	return -1
}

// Above reports whether l is strictly higher effort than other.
func (l Level) Above(other Level) bool {
	return l.index() > other.index()
}

// TokenBudget returns the nominal token budget for a level.
func (l Level) TokenBudget() int {
	return levelProfiles[l].TokenBudget
}

// Slot returns the model slot a level runs on.
func (l Level) Slot() string {
	return levelProfiles[l].Slot
}

// LocalPreferred reports whether a level prefers local execution. Only the
// two lightest working tiers do.
func (l Level) LocalPreferred() bool {
	return levelProfiles[l].LocalPreferred
}

// Upgrade steps one level up, clamped at the top.
func Upgrade(l Level) Level {
	i := l.index()
	if i < 0 {
		return DefaultLevel
	}
	if i == len(levelOrder)-1 {
		return l
	}
	return levelOrder[i+1]
}

// Downgrade steps one level down, clamped at the bottom.
func Downgrade(l Level) Level {
	i := l.index()
	if i < 0 {
		return DefaultLevel
	}
	if i == 0 {
		return l
	}
	return levelOrder[i-1]
}

// Levels returns the ordered level list, lowest first.
func Levels() []Level {
	out := make([]Level, len(levelOrder))
	copy(out, levelOrder)
	return out
}

package models

import "time"

// Categories is the fixed ordered list of life categories rated in every wheel.
var Categories = []string{
    "Семья",
    "Друзья",
    "Здоровье",
    "Хобби",
    "Деньги",
    "Отдых",
    "Личное развитие",
    "Работа/бизнес",
}

const (
    MinScore = 1
    MaxScore = 10
)

// User represents a bot user identified by their Telegram id
type User struct {
    ID         int64     `json:"id"`
    TelegramID int64     `json:"telegram_id"`
    Username   string    `json:"username,omitempty"`
    FirstName  string    `json:"first_name,omitempty"`
    CreatedAt  time.Time `json:"created_at"`
    UpdatedAt  time.Time `json:"updated_at"`
}

// Wheel is one monthly snapshot of category ratings
type Wheel struct {
    ID          int64     `json:"id"`
    UserID      int64     `json:"user_id"`
    Name        string    `json:"name"`
    CreatedAt   time.Time `json:"created_at"`
    LLMAnalysis *string   `json:"llm_analysis,omitempty"`
}

func (w *Wheel) HasAnalysis() bool {
    return w.LLMAnalysis != nil && *w.LLMAnalysis != ""
}

// WheelCategory is a single rated category of a wheel
type WheelCategory struct {
    ID           int64  `json:"id"`
    WheelID      int64  `json:"wheel_id"`
    CategoryName string `json:"category_name"`
    Value        int    `json:"value"`
    Order        int    `json:"order"`
}

// Score is a (category, value) pair in category order
type Score struct {
    Category string `json:"category"`
    Value    int    `json:"value"`
}

func IsCategory(name string) bool {
    for _, c := range Categories {
        if c == name {
            return true
        }
    }
    return false
}

// OrderedScores lays values out in the fixed category order. Missing categories get 0.
func OrderedScores(values map[string]int) []Score {
    scores := make([]Score, len(Categories))
    for i, name := range Categories {
        scores[i] = Score{Category: name, Value: values[name]}
    }
    return scores
}

// AlignScores reorders scores to the fixed category order.
func AlignScores(scores []Score) []Score {
    values := make(map[string]int, len(scores))
    for _, s := range scores {
        values[s.Category] = s.Value
    }
    return OrderedScores(values)
}

// WheelComparison caches the analysis of two compared wheels
type WheelComparison struct {
    ID                 int64     `json:"id"`
    WheelID1           int64     `json:"wheel_id_1"`
    WheelID2           int64     `json:"wheel_id_2"`
    ComparisonAnalysis *string   `json:"comparison_analysis,omitempty"`
    CreatedAt          time.Time `json:"created_at"`
}

type ActionKind string

const (
    ActionStart           ActionKind = "start"
    ActionCreateWheel     ActionKind = "create_wheel"
    ActionOpenWheel       ActionKind = "open_wheel"
    ActionCompareWheels   ActionKind = "compare_wheels"
    ActionDeleteWheel     ActionKind = "delete_wheel"
    ActionDeleteAllWheels ActionKind = "delete_all_wheels"
)

// ActionLog is an append-only audit record of a user action
type ActionLog struct {
    ID        int64      `json:"id"`
    UserID    int64      `json:"user_id"`
    Action    ActionKind `json:"action"`
    Details   string     `json:"details,omitempty"`
    WheelID   *int64     `json:"wheel_id,omitempty"`
    CreatedAt time.Time  `json:"created_at"`
}

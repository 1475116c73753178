package models

import "time"

// UserActivity is a user row enriched with the time of their last logged action.
type UserActivity struct {
    User
    LastActionDate *time.Time `json:"last_action_date"`
}

// UserWheelActivity summarises a user's wheel creation within a window.
type UserWheelActivity struct {
    User
    WheelsCount   int       `json:"wheels_count"`
    LastWheelDate time.Time `json:"last_wheel_date"`
}

// WheelSummary is the dashboard view of a wheel.
type WheelSummary struct {
    ID          int64     `json:"id"`
    Name        string    `json:"name"`
    CreatedAt   time.Time `json:"created_at"`
    HasAnalysis bool      `json:"has_analysis"`
}

type Statistics struct {
    NewUsers      int `json:"new_users"`
    WheelsCreated int `json:"wheels_created"`
    InactiveUsers int `json:"inactive_users"`
}

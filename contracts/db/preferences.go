package db

import "time"

// NotificationPreference 表示 notification_subscriptions 表对外的结构
type NotificationPreference struct {
	NotificationType string    `json:"notification_type"`
	Enabled          bool      `json:"enabled"`
	Channels         []string  `json:"channels"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DNDPreference 表示 dnd_windows 表对外的结构
type DNDPreference struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Day       int       `json:"day"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	AllDay    bool      `json:"all_day"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPreferences 用户偏好读模型
type UserPreferences struct {
	UserID                  string                   `json:"userId"`
	NotificationPreferences []NotificationPreference `json:"notification_preferences"`
	DNDPreferences          []DNDPreference          `json:"dnd_preferences"`
}

package model

import "time"

// User 对应于数据库中的 'users' 表。登录只需要用户名。
type User struct {
	Username    string    `gorm:"type:varchar(100);primaryKey" json:"username"`
	LastLoginAt time.Time `json:"lastLogin"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

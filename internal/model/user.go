// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应于数据库中的 'users' 表。
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName string `gorm:"type:varchar(255);not null" json:"fullName"`
	Username string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	// Password 存储 bcrypt 哈希，永远不应出现在 API 响应中。
	Password    string  `gorm:"type:varchar(255);not null" json:"-"`
	PhoneNumber *string `gorm:"type:varchar(50)" json:"phoneNumber"`
	// ProfilePic 是 MinIO 中头像对象的路径。
	ProfilePic *string   `gorm:"type:varchar(255)" json:"profilePic"`
	Role       string    `gorm:"type:varchar(20);not null;default:'USER'" json:"role"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

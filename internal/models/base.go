package models

import "time"

// BaseModel 基础模型
type BaseModel struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// Tracked 物化行共有的时间字段
type Tracked struct {
	LastUpdatedTime time.Time `gorm:"index" json:"last_updated_time"` // 链上区块时间
	Timestamp       time.Time `json:"timestamp"`                      // 写入时间
}

package models

import "time"

// Workspace is the tenant root. Every job and execution belongs to exactly
// one workspace; cross-workspace reads are never allowed.
type Workspace struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name      string    `gorm:"column:name;size:255;not null" json:"name"`
	Slug      string    `gorm:"column:slug;size:255;uniqueIndex" json:"slug"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

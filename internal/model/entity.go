package model

import (
	"time"

	"gorm.io/datatypes"
)

// User account record. Authentication itself lives with an external
// provider; this row anchors ownership and display identity.
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"not null" json:"nickname"`
	ProfileImg string    `json:"profile_img,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Project is one collaborative canvas.
type Project struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     int64     `gorm:"not null;index" json:"owner_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Owner User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// CanvasDocument is the durable document for a project: the element
// list and canvas settings as jsonb. During an active session the
// room's live state is authoritative; this row is the write-behind
// target flushed on a debounced cadence.
type CanvasDocument struct {
	ProjectID int64          `gorm:"primaryKey" json:"project_id"`
	Elements  datatypes.JSON `gorm:"type:jsonb;not null" json:"elements"`
	Settings  datatypes.JSON `gorm:"type:jsonb;not null" json:"settings"`
	Version   int64          `gorm:"default:0" json:"version"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}

func (CanvasDocument) TableName() string {
	return "canvas_documents"
}

package model

import "time"

// Profile はユーザーごとに1件のプロフィール。
type Profile struct {
	UserID      string
	Handle      *string
	DisplayName string
	FullName    *string
	Bio         *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvatarStatus はアバター生成の状態。
type AvatarStatus string

const (
	AvatarStatusPending AvatarStatus = "pending"
	AvatarStatusReady   AvatarStatus = "ready"
	AvatarStatusFailed  AvatarStatus = "failed"
)

// AvatarModel はユーザーごとのアバターモデルの状態。
type AvatarModel struct {
	ID              string
	UserID          string
	Status          AvatarStatus
	Provider        string
	SampleImagePath *string
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvatarGeneration はアバター生成試行の履歴1件。
type AvatarGeneration struct {
	ID           string
	UserID       string
	Prompt       string
	Status       AvatarStatus
	ImagePath    *string
	ErrorMessage *string
	CreatedAt    time.Time
}

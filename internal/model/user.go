package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type User struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Username       string          `db:"username" json:"username"`
	Email          string          `db:"email" json:"email"`
	FaceDescriptor pq.Float64Array `db:"face_descriptor" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type FaceLoginRequest struct {
	FaceDescriptor []float64 `json:"face_descriptor" validate:"required,min=1"`
}

type UserRequest struct {
	Username       string    `json:"username" validate:"required,max=150"`
	Email          string    `json:"email" validate:"required,email"`
	FaceDescriptor []float64 `json:"face_descriptor"`
}

// ProfileRequest is a partial update of the caller's profile; absent fields
// are left as they are.
type ProfileRequest struct {
	Username       *string   `json:"username" validate:"omitempty,min=1,max=150"`
	Email          *string   `json:"email" validate:"omitempty,email"`
	FaceDescriptor []float64 `json:"face_descriptor" validate:"omitempty,min=1"`
}

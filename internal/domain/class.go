package domain

import "time"

type Class struct {
	ClassID     string    `json:"id" dynamodbav:"class_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	Description string    `json:"description,omitempty" dynamodbav:"description"`
	TeacherID   string    `json:"teacher_id" dynamodbav:"teacher_id"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

// ClassMember records one student's enrollment in one class. The pair is
// unique: enrolling the same student twice is a conflict.
type ClassMember struct {
	ClassID   string    `json:"class_id" dynamodbav:"class_id"`
	StudentID string    `json:"student_id" dynamodbav:"student_id"`
	JoinedAt  time.Time `json:"joined_at" dynamodbav:"joined_at"`
}

type CreateClassRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// Package model holds the entity shapes exchanged with the course platform
// API. Field names mirror the server's serializers; the structs carry no
// behavior and are not validated locally, since the server is authoritative.
package model

import "time"

// User is the authenticated account.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	DateJoined time.Time `json:"date_joined,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Category groups courses.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Course is a published course.
type Course struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CategoryID  int64  `json:"category_id,omitempty"`
}

// Chapter is one unit of a course.
type Chapter struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	CourseID    int64  `json:"course_id"`
	IsCompleted bool   `json:"is_completed,omitempty"`
}

// Content is the material attached to a chapter.
type Content struct {
	ID        int64  `json:"id"`
	Text      string `json:"text,omitempty"`
	Video     string `json:"video,omitempty"`
	Files     string `json:"files,omitempty"`
	ChapterID int64  `json:"chapter_id"`
}

// Answer is one choice for a task.
type Answer struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// Task is a single question within a test.
type Task struct {
	ID               int64    `json:"id"`
	Question         string   `json:"question"`
	IsTextInput      bool     `json:"is_text_input"`
	IsMultipleChoice bool     `json:"is_multiple_choice"`
	IsCompiler       bool     `json:"is_compiler"`
	Point            int      `json:"point"`
	Answers          []Answer `json:"answers,omitempty"`
}

// Test is a chapter's self-check test.
type Test struct {
	ID        int64  `json:"id"`
	ChapterID int64  `json:"chapter_id"`
	Tasks     []Task `json:"tasks,omitempty"`
}

// ControlTest is a standalone graded test.
type ControlTest struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks,omitempty"`
}

// TestResult is the server's grading of a submission.
type TestResult struct {
	Score    int  `json:"score"`
	MaxScore int  `json:"max_score"`
	Passed   bool `json:"passed"`
}

// CourseProgress summarises completion within one course.
type CourseProgress struct {
	CourseID  int64   `json:"course_id"`
	Title     string  `json:"title"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Statistics is the per-user aggregate view.
type Statistics struct {
	CoursesSubscribed int     `json:"courses_subscribed"`
	CoursesCompleted  int     `json:"courses_completed"`
	ChaptersCompleted int     `json:"chapters_completed"`
	TestsPassed       int     `json:"tests_passed"`
	AverageScore      float64 `json:"average_score"`
}

// TokenPair is the body of login and refresh responses.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
	User    *User  `json:"user,omitempty"`
}

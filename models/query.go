package models

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type QueryResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}

// Source is one attribution record produced by a content search. Absent
// links stay null so the frontend always sees the same shape.
type Source struct {
	Text       string  `json:"text"`
	CourseLink *string `json:"course_link"`
	LessonLink *string `json:"lesson_link"`
}

type CourseStats struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

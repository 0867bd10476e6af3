package models

type Course struct {
	Title      string   `json:"title"`
	Link       *string  `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

type Lesson struct {
	Number int     `json:"lesson_number"`
	Title  string  `json:"lesson_title"`
	Link   *string `json:"lesson_link,omitempty"`
}

type CourseOutline struct {
	CourseTitle string   `json:"course_title"`
	CourseLink  *string  `json:"course_link"`
	Lessons     []Lesson `json:"lessons"`
}

// CourseChunk is one embeddable slice of course content.
type CourseChunk struct {
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	Content      string
}

type ChunkMetadata struct {
	CourseTitle  string
	LessonNumber *int
}

// SearchResults carries ranked chunks in the order the index returned
// them. Documents, Metadata, and Distances are parallel slices.
type SearchResults struct {
	Documents []string
	Metadata  []ChunkMetadata
	Distances []float64
}

func (r *SearchResults) IsEmpty() bool {
	return r == nil || len(r.Documents) == 0
}

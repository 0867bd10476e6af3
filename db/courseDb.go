package db

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"courserag/models"

	_ "github.com/lib/pq"
)

type CourseRepository interface {
	UpsertCourse(course *models.Course) error
	GetCourseByTitle(title string) (*models.Course, error)
	GetAllCourseTitles() ([]string, error)
	CountCourses() (int, error)
	Close() error
}

var ErrCourseNotFound = fmt.Errorf("course not found")

type PostgresCourseRepository struct {
	db *sql.DB
}

func NewPostgresCourseRepository(databaseURL string) (*PostgresCourseRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresCourseRepository{db: db}, nil
}

func (r *PostgresCourseRepository) UpsertCourse(course *models.Course) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO courserag.courses (title, link, instructor)
		VALUES ($1, $2, $3)
		ON CONFLICT (title) DO UPDATE
		SET link = EXCLUDED.link, instructor = EXCLUDED.instructor`

	if _, err := tx.Exec(upsert, course.Title, course.Link, course.Instructor); err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM courserag.course_lessons WHERE course_title = $1`, course.Title); err != nil {
		return fmt.Errorf("failed to clear course lessons: %w", err)
	}

	insertLesson := `
		INSERT INTO courserag.course_lessons (course_title, lesson_number, lesson_title, lesson_link)
		VALUES ($1, $2, $3, $4)`

	for _, lesson := range course.Lessons {
		if _, err := tx.Exec(insertLesson, course.Title, lesson.Number, lesson.Title, lesson.Link); err != nil {
			return fmt.Errorf("failed to insert lesson %d: %w", lesson.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit course upsert: %w", err)
	}
	return nil
}

func (r *PostgresCourseRepository) GetCourseByTitle(title string) (*models.Course, error) {
	course := &models.Course{}

	row := r.db.QueryRow(`SELECT title, link, instructor FROM courserag.courses WHERE title = $1`, title)
	var link sql.NullString
	if err := row.Scan(&course.Title, &link, &course.Instructor); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if link.Valid {
		course.Link = &link.String
	}

	rows, err := r.db.Query(`
		SELECT lesson_number, lesson_title, lesson_link
		FROM courserag.course_lessons
		WHERE course_title = $1
		ORDER BY lesson_number ASC`, title)
	if err != nil {
		return nil, fmt.Errorf("failed to get course lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lesson models.Lesson
		var lessonLink sql.NullString
		if err := rows.Scan(&lesson.Number, &lesson.Title, &lessonLink); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		if lessonLink.Valid {
			lesson.Link = &lessonLink.String
		}
		course.Lessons = append(course.Lessons, lesson)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lessons: %w", err)
	}

	return course, nil
}

func (r *PostgresCourseRepository) GetAllCourseTitles() ([]string, error) {
	rows, err := r.db.Query(`SELECT title FROM courserag.courses ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get course titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan course title: %w", err)
		}
		titles = append(titles, title)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course titles: %w", err)
	}

	return titles, nil
}

func (r *PostgresCourseRepository) CountCourses() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM courserag.courses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

func (r *PostgresCourseRepository) Close() error {
	return r.db.Close()
}

// InMemoryCourseRepository backs the catalog when no DB_URL is configured.
type InMemoryCourseRepository struct {
	mu      sync.RWMutex
	courses map[string]*models.Course
}

func NewInMemoryCourseRepository() *InMemoryCourseRepository {
	return &InMemoryCourseRepository{courses: make(map[string]*models.Course)}
}

func (r *InMemoryCourseRepository) UpsertCourse(course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *course
	copied.Lessons = append([]models.Lesson(nil), course.Lessons...)
	r.courses[course.Title] = &copied
	return nil
}

func (r *InMemoryCourseRepository) GetCourseByTitle(title string) (*models.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, ok := r.courses[title]
	if !ok {
		return nil, ErrCourseNotFound
	}

	copied := *course
	copied.Lessons = append([]models.Lesson(nil), course.Lessons...)
	return &copied, nil
}

func (r *InMemoryCourseRepository) GetAllCourseTitles() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	titles := make([]string, 0, len(r.courses))
	for title := range r.courses {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (r *InMemoryCourseRepository) CountCourses() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.courses), nil
}

func (r *InMemoryCourseRepository) Close() error {
	return nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"courserag/db"
	"courserag/models"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// VectorIndex is the similarity-search capability backing content search.
type VectorIndex interface {
	Search(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) (*models.SearchResults, error)
}

// ContentService is the content store consumed by the search tools. It
// resolves fuzzy course names against the catalog and delegates ranking
// to the vector index.
type ContentService struct {
	index      VectorIndex
	repo       db.CourseRepository
	maxResults int
}

func NewContentService(index VectorIndex, repo db.CourseRepository, maxResults int) *ContentService {
	return &ContentService{index: index, repo: repo, maxResults: maxResults}
}

// Search runs a filtered similarity search. A course name that matches no
// catalog entry is an explicit store error so the model learns exactly
// what failed.
func (s *ContentService) Search(ctx context.Context, query, courseName string, lessonNumber *int) (*models.SearchResults, error) {
	courseTitle := ""
	if courseName != "" {
		resolved, err := s.ResolveCourseName(courseName)
		if err != nil {
			return nil, err
		}
		courseTitle = resolved
	}

	results, err := s.index.Search(ctx, query, courseTitle, lessonNumber, s.maxResults)
	if err != nil {
		log.Printf("[ERROR] Content search failed: %v", err)
		return nil, err
	}

	return results, nil
}

// ResolveCourseName maps a partial or misspelled course name to an exact
// catalog title.
func (s *ContentService) ResolveCourseName(courseName string) (string, error) {
	titles, err := s.repo.GetAllCourseTitles()
	if err != nil {
		return "", fmt.Errorf("failed to load course catalog: %w", err)
	}

	// Exact match wins before any fuzzy ranking.
	for _, title := range titles {
		if strings.EqualFold(title, courseName) {
			return title, nil
		}
	}

	// Substring match on the full title, case-insensitive.
	needle := strings.ToLower(courseName)
	for _, title := range titles {
		if strings.Contains(strings.ToLower(title), needle) {
			return title, nil
		}
	}

	matches := fuzzy.RankFindNormalizedFold(courseName, titles)
	if len(matches) > 0 {
		sort.Sort(matches)
		return matches[0].Target, nil
	}

	return "", fmt.Errorf("No course found matching '%s'", courseName)
}

func (s *ContentService) GetCourseLink(courseTitle string) *string {
	course, err := s.repo.GetCourseByTitle(courseTitle)
	if err != nil {
		return nil
	}
	return course.Link
}

func (s *ContentService) GetLessonLink(courseTitle string, lessonNumber int) *string {
	course, err := s.repo.GetCourseByTitle(courseTitle)
	if err != nil {
		return nil
	}
	for _, lesson := range course.Lessons {
		if lesson.Number == lessonNumber {
			return lesson.Link
		}
	}
	return nil
}

// GetCourseOutline returns course structure for a (possibly partial)
// course name.
func (s *ContentService) GetCourseOutline(courseName string) (*models.CourseOutline, error) {
	title, err := s.ResolveCourseName(courseName)
	if err != nil {
		return nil, err
	}

	course, err := s.repo.GetCourseByTitle(title)
	if err != nil {
		return nil, fmt.Errorf("failed to load course '%s': %w", title, err)
	}

	return &models.CourseOutline{
		CourseTitle: course.Title,
		CourseLink:  course.Link,
		Lessons:     course.Lessons,
	}, nil
}

func (s *ContentService) GetCourseAnalytics() (*models.CourseStats, error) {
	titles, err := s.repo.GetAllCourseTitles()
	if err != nil {
		return nil, fmt.Errorf("failed to load course titles: %w", err)
	}

	return &models.CourseStats{
		TotalCourses: len(titles),
		CourseTitles: titles,
	}, nil
}

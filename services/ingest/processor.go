package ingest

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"courserag/models"

	"github.com/tmc/langchaingo/textsplitter"
)

var lessonHeaderRegex = regexp.MustCompile(`^Lesson (\d+):\s*(.+)$`)

// Processor parses course documents and splits their content into
// embeddable chunks.
//
// Expected document format:
//
//	Course Title: <title>
//	Course Link: <url>
//	Course Instructor: <name>
//
//	Lesson 0: Introduction
//	Lesson Link: <url>
//	<lesson content>
type Processor struct {
	splitter textsplitter.RecursiveCharacter
}

func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (p *Processor) ProcessFile(path string) (*models.Course, []models.CourseChunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read course document: %w", err)
	}
	return p.Process(string(content))
}

// Process parses one course document and chunks every lesson. Content
// appearing before the first lesson marker is chunked without a lesson
// number.
func (p *Processor) Process(content string) (*models.Course, []models.CourseChunk, error) {
	course := &models.Course{}

	lines := strings.Split(content, "\n")

	var (
		chunks        []models.CourseChunk
		currentLesson *int
		lessonText    strings.Builder
		chunkIndex    int
	)

	flushLesson := func() error {
		text := strings.TrimSpace(lessonText.String())
		lessonText.Reset()
		if text == "" {
			return nil
		}

		var lessonNumber *int
		if currentLesson != nil {
			n := *currentLesson
			lessonNumber = &n
		}

		pieces, err := p.splitter.SplitText(text)
		if err != nil {
			return fmt.Errorf("failed to split lesson content: %w", err)
		}

		for _, piece := range pieces {
			chunks = append(chunks, models.CourseChunk{
				CourseTitle:  course.Title,
				LessonNumber: lessonNumber,
				ChunkIndex:   chunkIndex,
				Content:      piece,
			})
			chunkIndex++
		}
		return nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "Course Title:"):
			course.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Title:"))
			continue
		case strings.HasPrefix(trimmed, "Course Link:"):
			link := strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Link:"))
			if link != "" {
				course.Link = &link
			}
			continue
		case strings.HasPrefix(trimmed, "Course Instructor:"):
			course.Instructor = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Instructor:"))
			continue
		case strings.HasPrefix(trimmed, "Lesson Link:"):
			link := strings.TrimSpace(strings.TrimPrefix(trimmed, "Lesson Link:"))
			if len(course.Lessons) > 0 && link != "" {
				course.Lessons[len(course.Lessons)-1].Link = &link
			}
			continue
		}

		if match := lessonHeaderRegex.FindStringSubmatch(trimmed); match != nil {
			if err := flushLesson(); err != nil {
				return nil, nil, err
			}

			number, err := strconv.Atoi(match[1])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid lesson number %q: %w", match[1], err)
			}

			course.Lessons = append(course.Lessons, models.Lesson{Number: number, Title: match[2]})
			currentLesson = &number
			continue
		}

		lessonText.WriteString(line)
		lessonText.WriteString("\n")
	}

	if err := flushLesson(); err != nil {
		return nil, nil, err
	}

	if course.Title == "" {
		return nil, nil, fmt.Errorf("course document has no 'Course Title:' header")
	}

	log.Printf("[INFO] Parsed course %q: %d lessons, %d chunks", course.Title, len(course.Lessons), len(chunks))
	return course, chunks, nil
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"courserag/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

// ContentStore is the keyed search capability the tools delegate to.
type ContentStore interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) (*models.SearchResults, error)
	GetCourseLink(courseTitle string) *string
	GetLessonLink(courseTitle string, lessonNumber int) *string
	GetCourseOutline(courseName string) (*models.CourseOutline, error)
}

// Tool is one operation the model may request. Execute returns the result
// text for the model together with any attribution records the call
// produced; sources are an explicit return value, never instance state,
// so concurrent queries cannot observe each other's trails.
type Tool interface {
	Name() string
	Description() string
	InputSchema() anthropic.ToolInputSchemaParam
	Execute(ctx context.Context, input json.RawMessage) (string, []models.Source, error)
}

func generateAnthropicSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
	}
}

type CourseSearchInput struct {
	Query        string `json:"query" jsonschema:"required,description=What to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema:"description=Course title (partial matches work, e.g. 'MCP' or 'Introduction')"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema:"description=Specific lesson number to search within (e.g. 1, 2, 3)"`
}

// CourseSearchTool searches course content with optional course and
// lesson filters.
type CourseSearchTool struct {
	store ContentStore
}

func NewCourseSearchTool(store ContentStore) *CourseSearchTool {
	return &CourseSearchTool{store: store}
}

func (t *CourseSearchTool) Name() string {
	return "search_course_content"
}

func (t *CourseSearchTool) Description() string {
	return "Search course materials with smart course name matching and lesson filtering"
}

func (t *CourseSearchTool) InputSchema() anthropic.ToolInputSchemaParam {
	return generateAnthropicSchema[CourseSearchInput]()
}

func (t *CourseSearchTool) Execute(ctx context.Context, input json.RawMessage) (string, []models.Source, error) {
	var params CourseSearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", nil, fmt.Errorf("failed to parse search tool input: %w", err)
	}
	if params.Query == "" {
		return "", nil, fmt.Errorf("query is required")
	}

	results, err := t.store.Search(ctx, params.Query, params.CourseName, params.LessonNumber)
	if err != nil {
		// Store errors are surfaced to the model verbatim so it can react.
		return err.Error(), nil, nil
	}

	if results.IsEmpty() {
		return emptyResultMessage(params.CourseName, params.LessonNumber), nil, nil
	}

	return t.formatResults(results)
}

func emptyResultMessage(courseName string, lessonNumber *int) string {
	filterInfo := ""
	if courseName != "" {
		filterInfo += fmt.Sprintf(" in course '%s'", courseName)
	}
	if lessonNumber != nil {
		filterInfo += fmt.Sprintf(" in lesson %d", *lessonNumber)
	}
	return fmt.Sprintf("No relevant content found%s.", filterInfo)
}

// formatResults renders chunks in store order, each under a bracketed
// course/lesson header, and builds one source record per chunk.
func (t *CourseSearchTool) formatResults(results *models.SearchResults) (string, []models.Source, error) {
	formatted := make([]string, 0, len(results.Documents))
	sources := make([]models.Source, 0, len(results.Documents))

	for i, doc := range results.Documents {
		meta := results.Metadata[i]

		header := "[" + meta.CourseTitle
		displayText := meta.CourseTitle
		if meta.LessonNumber != nil {
			header += fmt.Sprintf(" - Lesson %d", *meta.LessonNumber)
			displayText += fmt.Sprintf(" - Lesson %d", *meta.LessonNumber)
		}
		header += "]"

		formatted = append(formatted, header+"\n"+doc)

		source := models.Source{
			Text:       displayText,
			CourseLink: t.store.GetCourseLink(meta.CourseTitle),
		}
		if meta.LessonNumber != nil {
			source.LessonLink = t.store.GetLessonLink(meta.CourseTitle, *meta.LessonNumber)
		}
		sources = append(sources, source)
	}

	return strings.Join(formatted, "\n\n"), sources, nil
}

type CourseOutlineInput struct {
	CourseName string `json:"course_name" jsonschema:"required,description=Course title to get the outline for (partial matches work)"`
}

// CourseOutlineTool returns course structure: title, link, and the
// ordered lesson list. It produces no sources; outlines are structural
// lookups, not content excerpts.
type CourseOutlineTool struct {
	store ContentStore
}

func NewCourseOutlineTool(store ContentStore) *CourseOutlineTool {
	return &CourseOutlineTool{store: store}
}

func (t *CourseOutlineTool) Name() string {
	return "get_course_outline"
}

func (t *CourseOutlineTool) Description() string {
	return "Get the complete outline of a course including title, link, and all lessons"
}

func (t *CourseOutlineTool) InputSchema() anthropic.ToolInputSchemaParam {
	return generateAnthropicSchema[CourseOutlineInput]()
}

func (t *CourseOutlineTool) Execute(ctx context.Context, input json.RawMessage) (string, []models.Source, error) {
	var params CourseOutlineInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", nil, fmt.Errorf("failed to parse outline tool input: %w", err)
	}
	if params.CourseName == "" {
		return "", nil, fmt.Errorf("course_name is required")
	}

	outline, err := t.store.GetCourseOutline(params.CourseName)
	if err != nil {
		return err.Error(), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", outline.CourseTitle)
	if outline.CourseLink != nil {
		fmt.Fprintf(&b, "Course Link: %s\n", *outline.CourseLink)
	}
	fmt.Fprintf(&b, "Lessons (%d):\n", len(outline.Lessons))
	for _, lesson := range outline.Lessons {
		fmt.Fprintf(&b, "Lesson %d: %s\n", lesson.Number, lesson.Title)
	}

	return strings.TrimRight(b.String(), "\n"), nil, nil
}

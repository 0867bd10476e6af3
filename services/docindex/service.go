package docindex

import (
	"context"
	"fmt"
	"log"
	"time"

	"courserag/models"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/protobuf/types/known/structpb"
)

const chunkNamespace = "course-chunks"

// Service stores and searches embedded course chunks in Pinecone.
type Service struct {
	client    *pinecone.Client
	embedder  embeddings.Embedder
	indexName string
}

func NewService(pineconeAPIKey, openaiAPIKey, indexName string) (*Service, error) {
	log.Printf("[INFO] Initializing document index service")

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: pineconeAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	llm, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(openaiAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	service := &Service{
		client:    pc,
		embedder:  embedder,
		indexName: indexName,
	}

	log.Printf("[INFO] Document index service initialized successfully")
	return service, nil
}

func (s *Service) EnsureIndex(ctx context.Context) error {
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range indexes {
		if idx.Name == s.indexName {
			log.Printf("[INFO] Index %s already exists", s.indexName)
			return nil
		}
	}

	log.Printf("[INFO] Creating Pinecone index: %s", s.indexName)
	dimension := int32(1536) // OpenAI ada-002 embedding dimension
	deletionProtection := pinecone.DeletionProtectionDisabled
	metric := pinecone.Cosine

	_, err = s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:               s.indexName,
		Dimension:          &dimension,
		Metric:             &metric,
		Cloud:              pinecone.Aws,
		Region:             "us-east-1",
		DeletionProtection: &deletionProtection,
		Tags:               &pinecone.IndexTags{"environment": "development", "project": "courserag-indexing"},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	for {
		idx, err := s.client.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return fmt.Errorf("failed to describe index: %w", err)
		}
		if idx.Status.Ready {
			log.Printf("[INFO] Index %s is ready", s.indexName)
			return nil
		}
		log.Printf("[INFO] Waiting for index %s to be ready...", s.indexName)
		time.Sleep(10 * time.Second)
	}
}

func (s *Service) connect(ctx context.Context) (*pinecone.IndexConnection, error) {
	idxDesc, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", err)
	}

	idxConn, err := s.client.Index(pinecone.NewIndexConnParams{
		Host:      idxDesc.Host,
		Namespace: chunkNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	return idxConn, nil
}

const upsertBatchSize = 100

// UpsertChunks embeds and stores course chunks: one embedding call for
// the whole set, vectors upserted in batches. Lesson-less chunks carry
// no lesson_number metadata key so lesson filters never match them.
func (s *Service) UpsertChunks(ctx context.Context, chunks []models.CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	idxConn, err := s.connect(ctx)
	if err != nil {
		return err
	}

	log.Printf("[INFO] Upserting %d chunks for course %q", len(chunks), chunks[0].CourseTitle)

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	embedded, err := s.embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return fmt.Errorf("failed to generate chunk embeddings: %w", err)
	}

	vectors, err := chunkVectors(chunks, embedded)
	if err != nil {
		return err
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if _, err := idxConn.UpsertVectors(ctx, vectors[start:end]); err != nil {
			return fmt.Errorf("failed to upsert chunks %d-%d: %w", start, end-1, err)
		}
	}

	log.Printf("[INFO] Successfully upserted %d chunks", len(chunks))
	return nil
}

// chunkVectors pairs each chunk with its embedding and builds the
// Pinecone vectors to upsert.
func chunkVectors(chunks []models.CourseChunk, embedded [][]float32) ([]*pinecone.Vector, error) {
	if len(embedded) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: %d embeddings for %d chunks", len(embedded), len(chunks))
	}

	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]any{
			"course_title": chunk.CourseTitle,
			"chunk_index":  chunk.ChunkIndex,
			"content":      chunk.Content,
		}
		if chunk.LessonNumber != nil {
			metadata["lesson_number"] = *chunk.LessonNumber
		}

		metadataStruct, err := structpb.NewStruct(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata struct for chunk %d: %w", i, err)
		}

		vectors = append(vectors, &pinecone.Vector{
			Id:       uuid.NewString(),
			Values:   &embedded[i],
			Metadata: metadataStruct,
		})
	}

	return vectors, nil
}

// Search embeds the query and returns the closest chunks in relevance
// order, optionally filtered by exact course title and lesson number.
func (s *Service) Search(ctx context.Context, query, courseTitle string, lessonNumber *int, limit int) (*models.SearchResults, error) {
	log.Printf("[INFO] Searching index for query %q (course=%q lesson=%v limit=%d)", query, courseTitle, lessonNumber, limit)

	idxConn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	queryVectors, err := s.embedder.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	filter, err := buildMetadataFilter(courseTitle, lessonNumber)
	if err != nil {
		return nil, err
	}

	result, err := idxConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          queryVectors[0],
		TopK:            uint32(limit),
		IncludeValues:   false,
		IncludeMetadata: true,
		MetadataFilter:  filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}

	results := &models.SearchResults{}
	for _, match := range result.Matches {
		if match.Vector.Metadata == nil {
			continue
		}
		metadata := match.Vector.Metadata.AsMap()

		content, ok := metadata["content"].(string)
		if !ok || content == "" {
			continue
		}

		meta := models.ChunkMetadata{}
		if title, ok := metadata["course_title"].(string); ok {
			meta.CourseTitle = title
		}
		if lesson, ok := metadata["lesson_number"].(float64); ok {
			n := int(lesson)
			meta.LessonNumber = &n
		}

		results.Documents = append(results.Documents, content)
		results.Metadata = append(results.Metadata, meta)
		results.Distances = append(results.Distances, float64(match.Score))
	}

	log.Printf("[INFO] Search returned %d chunks", len(results.Documents))
	return results, nil
}

func buildMetadataFilter(courseTitle string, lessonNumber *int) (*structpb.Struct, error) {
	filter := map[string]any{}
	if courseTitle != "" {
		filter["course_title"] = map[string]any{"$eq": courseTitle}
	}
	if lessonNumber != nil {
		filter["lesson_number"] = map[string]any{"$eq": *lessonNumber}
	}
	if len(filter) == 0 {
		return nil, nil
	}

	filterStruct, err := structpb.NewStruct(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata filter: %w", err)
	}
	return filterStruct, nil
}

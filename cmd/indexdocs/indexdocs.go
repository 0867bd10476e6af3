package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"courserag/config"
	"courserag/db"
	"courserag/services/docindex"
	"courserag/services/ingest"

	"github.com/samber/lo"
)

func main() {
	log.Printf("[INFO] Starting course document indexing process")

	cfg := config.Load()

	if cfg.PineconeAPIKey == "" {
		log.Fatal("[ERROR] PINECONE_API_KEY environment variable is required")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("[ERROR] OPENAI_API_KEY environment variable is required")
	}

	var courseRepo db.CourseRepository
	if cfg.DatabaseURL != "" {
		repo, err := db.NewPostgresCourseRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[ERROR] Failed to initialize course database: %v", err)
		}
		defer repo.Close()
		courseRepo = repo
	} else {
		log.Fatal("[ERROR] DB_URL environment variable is required for indexing")
	}

	indexService, err := docindex.NewService(cfg.PineconeAPIKey, cfg.OpenAIAPIKey, cfg.PineconeIndexName)
	if err != nil {
		log.Fatalf("[ERROR] Failed to initialize document index service: %v", err)
	}

	ctx := context.Background()

	if err := indexService.EnsureIndex(ctx); err != nil {
		log.Fatalf("[ERROR] Failed to ensure Pinecone index: %v", err)
	}

	existingTitles, err := courseRepo.GetAllCourseTitles()
	if err != nil {
		log.Fatalf("[ERROR] Failed to load existing course titles: %v", err)
	}

	entries, err := os.ReadDir(cfg.DocsPath)
	if err != nil {
		log.Fatalf("[ERROR] Failed to read docs folder %s: %v", cfg.DocsPath, err)
	}

	processor := ingest.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap)

	totalCourses := 0
	totalChunks := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		path := filepath.Join(cfg.DocsPath, entry.Name())
		log.Printf("[INFO] Processing document %s", path)

		course, chunks, err := processor.ProcessFile(path)
		if err != nil {
			log.Printf("[ERROR] Failed to process document %s: %v", path, err)
			continue
		}

		if lo.Contains(existingTitles, course.Title) {
			log.Printf("[INFO] Course %q already indexed, skipping", course.Title)
			continue
		}

		if err := courseRepo.UpsertCourse(course); err != nil {
			log.Printf("[ERROR] Failed to store course %q: %v", course.Title, err)
			continue
		}

		if err := indexService.UpsertChunks(ctx, chunks); err != nil {
			log.Printf("[ERROR] Failed to index chunks for course %q: %v", course.Title, err)
			continue
		}

		existingTitles = append(existingTitles, course.Title)
		totalCourses++
		totalChunks += len(chunks)

		log.Printf("[INFO] Indexed course %q (%d chunks)", course.Title, len(chunks))
	}

	log.Printf("[INFO] Indexing complete: %d new courses, %d chunks", totalCourses, totalChunks)
}

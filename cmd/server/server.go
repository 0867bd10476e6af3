package main

import (
	"fmt"
	"log"
	"net/http"

	"courserag/config"
	"courserag/db"
	"courserag/handlers"
	"courserag/services"
	"courserag/services/docindex"
	"courserag/services/generator"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	if cfg.AnthropicAPIKey == "" {
		log.Fatal("ANTHROPIC_API_KEY environment variable is required")
	}

	if cfg.PineconeAPIKey == "" {
		log.Fatal("PINECONE_API_KEY environment variable is required")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}

	var (
		sessionRepo db.SessionRepository
		courseRepo  db.CourseRepository
		err         error
	)

	if cfg.DatabaseURL != "" {
		sessionRepo, err = db.NewPostgresSessionRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize session database: %v", err)
		}

		courseRepo, err = db.NewPostgresCourseRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize course database: %v", err)
		}
	} else {
		log.Printf("[WARN] DB_URL not set, sessions and course catalog are in-memory only")
		sessionRepo = db.NewInMemorySessionRepository()
		courseRepo = db.NewInMemoryCourseRepository()
	}
	defer sessionRepo.Close()
	defer courseRepo.Close()

	indexService, err := docindex.NewService(cfg.PineconeAPIKey, cfg.OpenAIAPIKey, cfg.PineconeIndexName)
	if err != nil {
		log.Fatalf("Failed to initialize document index service: %v", err)
	}

	contentService := services.NewContentService(indexService, courseRepo, cfg.MaxResults)
	sessionService := services.NewSessionService(sessionRepo, cfg.MaxHistory)
	generatorService := generator.NewService(cfg.AnthropicAPIKey, cfg.AnthropicModel)

	ragService := services.NewRAGService(contentService, sessionService, generatorService, cfg.MaxToolRounds)

	queryHandler := handlers.NewQueryHandler(ragService)
	courseHandler := handlers.NewCourseHandler(ragService)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	queryHandler.RegisterRoutes(router)
	courseHandler.RegisterRoutes(router)

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	addr := ":" + cfg.Port
	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

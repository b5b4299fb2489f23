package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/lectoria/backend/internal/auth"
	"github.com/lectoria/backend/internal/database"
	"github.com/lectoria/backend/internal/generator"
	"github.com/lectoria/backend/internal/learners"
	"github.com/lectoria/backend/internal/middleware"
	"github.com/lectoria/backend/internal/rating"
	"github.com/lectoria/backend/internal/stories"
	"github.com/lectoria/backend/internal/topics"
	"github.com/lectoria/backend/internal/trace"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Stores and services
	storyStore := stories.NewStore(db)
	traceStore := trace.NewStore(db)
	invoker := generator.NewInvoker()
	router := topics.NewCatalogRouter()
	storyService := stories.NewService(storyStore, traceStore, invoker, router)
	ratingService := rating.NewService(rating.NewStore(db))

	// Handlers
	authHandler := auth.NewHandler(db)
	learnerHandler := learners.NewHandler(learners.NewStore(db))
	storyHandler := stories.NewHandler(storyService)
	ratingHandler := rating.NewHandler(ratingService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/learners", learnerHandler.Create).Methods("POST")
	protected.HandleFunc("/learners", learnerHandler.List).Methods("GET")
	protected.HandleFunc("/learners/{id:[0-9]+}", learnerHandler.Get).Methods("GET")
	protected.HandleFunc("/learners/{id:[0-9]+}", learnerHandler.Update).Methods("PUT")
	protected.HandleFunc("/learners/{id:[0-9]+}", learnerHandler.Delete).Methods("DELETE")

	protected.HandleFunc("/stories/generate", storyHandler.Generate).Methods("POST")
	protected.HandleFunc("/stories/traces/{id}", storyHandler.GetTrace).Methods("GET")
	protected.HandleFunc("/stories/{id:[0-9]+}", storyHandler.GetStory).Methods("GET")
	protected.HandleFunc("/stories/{id:[0-9]+}/questions", storyHandler.GenerateQuestions).Methods("POST")
	protected.HandleFunc("/stories/{id:[0-9]+}/rewrite", storyHandler.Rewrite).Methods("POST")
	protected.HandleFunc("/learners/{learnerId:[0-9]+}/stories", storyHandler.ListStories).Methods("GET")

	protected.HandleFunc("/sessions/{id:[0-9]+}/finish", ratingHandler.FinishSession).Methods("POST")
	protected.HandleFunc("/learners/{learnerId:[0-9]+}/ratings", ratingHandler.Ratings).Methods("GET")
	protected.HandleFunc("/learners/{learnerId:[0-9]+}/ratings/history", ratingHandler.History).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s (model: %s)", port, invoker.ModelName())
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

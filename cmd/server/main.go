package main

import (
	"context"
	"log"
	"net/http"

	"chat-server/internal/chat"
	"chat-server/internal/config"
	"chat-server/internal/db"
	myMiddleware "chat-server/internal/middleware"
	"chat-server/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Initialize Chat Feature
	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(redisClient)
	gateway := chat.NewGateway(hub, chatRepo)
	chatHandler := chat.NewHandler(hub, gateway, chatRepo)

	// Bridge room broadcasts across instances
	go hub.SubscribeToRedis(context.Background())

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// WebSocket (Real-time). Identity comes from the optional userId
	// query parameter; anonymous connections are allowed.
	r.Get("/ws", chatHandler.ServeWs)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/user", userHandler.GetUser)
		r.Post("/api/user/list", userHandler.PostUsers)
		r.Get("/api/users/search", userHandler.SearchUsers)

		r.Post("/api/group/list", chatHandler.PostGroups)
		r.Get("/api/group/user", chatHandler.GetUserGroups)
		r.Get("/api/group/members", chatHandler.GetGroupMembers)
		r.Get("/api/group/messages", chatHandler.GetGroupMessages)
		r.Get("/api/group/find", chatHandler.FindGroups)
	})

	log.Printf("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}

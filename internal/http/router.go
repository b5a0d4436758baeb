// Package http wires the API routes and request middleware.
package http

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pdfchat/internal/auth"
	"pdfchat/internal/handlers"
	"pdfchat/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Logger *slog.Logger
	DB     *sql.DB
	Tokens *auth.Service

	Users  storage.UserStore
	Docs   storage.DocumentStore
	Chunks storage.ChunkStore
	Chats  storage.ChatStore

	Deleter   handlers.DocumentDeleter
	Queue     handlers.IngestQueue
	Engine    handlers.Answerer
	UploadDir string
}

// NewRouter creates the API router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORS)

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens)
	docHandler := handlers.NewDocumentHandler(deps.Docs, deps.Chunks, deps.Deleter, deps.Queue, deps.UploadDir)
	chatHandler := handlers.NewChatHandler(deps.Chats, deps.Docs, deps.Engine)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(Authenticate(deps.Tokens))
				r.Get("/profile", authHandler.Profile)
				r.Put("/profile", authHandler.UpdateProfile)
			})
		})

		// Everything below requires a valid bearer token.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(deps.Tokens))

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", docHandler.Upload)
				r.Get("/", docHandler.List)
				r.Get("/{documentID}", docHandler.Get)
				r.Delete("/{documentID}", docHandler.Delete)
				r.Get("/{documentID}/chunks", docHandler.Chunks)
				r.Get("/chunks/{chunkID}", docHandler.Chunk)
				r.Get("/{documentID}/summary", chatHandler.Summary)
				r.Get("/{documentID}/mindmap", chatHandler.MindMap)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/ask", chatHandler.Ask)

				r.Route("/sessions", func(r chi.Router) {
					r.Post("/", chatHandler.CreateSession)
					r.Get("/", chatHandler.ListSessions)
					r.Get("/{sessionID}", chatHandler.GetSession)
					r.Delete("/{sessionID}", chatHandler.DeleteSession)
					r.Post("/{sessionID}/ask", chatHandler.AskSession)
				})
			})
		})
	})

	return r
}

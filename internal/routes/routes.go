package routes

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gvargas9/smartterapist/internal/config"
	"github.com/gvargas9/smartterapist/internal/handlers"
	"github.com/gvargas9/smartterapist/internal/middleware"
	"github.com/gvargas9/smartterapist/internal/store"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	st *store.Store,
	healthHandler *handlers.HealthHandler,
	conversationHandler *handlers.ConversationHandler,
	voiceHandler *handlers.VoiceHandler,
	behaviorHandler *handlers.BehaviorHandler,
	directoryHandler *handlers.DirectoryHandler,
	sessionHandler *handlers.SessionHandler,
	messagingHandler *handlers.MessagingHandler,
	eventsHandler *handlers.EventsHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	// Health (public)
	api.Get("/health", healthHandler.Check)

	jwt := middleware.JWTProtected(cfg)

	// Turn endpoints call the model provider: 15 req/min per IP (stricter)
	turnLimiter := limiter.New(limiter.Config{
		Max:               15,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})

	// Conversations
	conv := api.Group("/conversations", jwt)
	conv.Post("/", conversationHandler.Start)
	conv.Get("/:id", conversationHandler.Get)
	conv.Post("/:id/messages", turnLimiter, conversationHandler.Append)
	conv.Get("/:id/messages", conversationHandler.Replay)
	conv.Post("/:id/notes", conversationHandler.AppendNote)
	conv.Post("/:id/voice", turnLimiter, voiceHandler.Turn)
	conv.Post("/:id/close", conversationHandler.Close)
	conv.Get("/:id/summary", conversationHandler.GetSummary)
	conv.Post("/:id/summarize", conversationHandler.Summarize)
	conv.Get("/:id/stream", upgradeRequired, conversationHandler.Stream())

	// Voice synthesis for arbitrary text (assistant replies, prompts)
	api.Post("/voice/speak", jwt, turnLimiter, voiceHandler.Speak)

	// Clients: registration, profile, conversations, behavior assignments
	clients := api.Group("/clients", jwt)
	clients.Post("/", directoryHandler.RegisterClient)
	clients.Get("/", directoryHandler.ListClients)
	clients.Get("/:id", directoryHandler.GetClient)
	clients.Put("/:id", directoryHandler.UpdateClient)
	clients.Put("/:id/therapist", directoryHandler.AssignTherapist)
	clients.Get("/:id/conversations", conversationHandler.ListForClient)
	clients.Get("/:id/conversations/open", conversationHandler.Open)
	clients.Post("/:id/behaviors", behaviorHandler.Assign)
	clients.Get("/:id/behaviors", behaviorHandler.ListAssignments)
	clients.Get("/:id/behaviors/active", behaviorHandler.Resolve)
	clients.Delete("/:id/behaviors/:behaviorId", behaviorHandler.Unassign)

	// Therapists
	therapists := api.Group("/therapists", jwt)
	therapists.Post("/", directoryHandler.RegisterTherapist)
	therapists.Get("/", directoryHandler.ListTherapists)
	therapists.Get("/:id", directoryHandler.GetTherapist)
	therapists.Put("/:id", directoryHandler.UpdateTherapist)

	// Users (self-service profile)
	api.Get("/users/:id", jwt, directoryHandler.GetUser)
	api.Put("/users/:id", jwt, directoryHandler.UpdateUser)

	// Therapy sessions
	sessions := api.Group("/sessions", jwt)
	sessions.Post("/", sessionHandler.Schedule)
	sessions.Get("/", sessionHandler.List)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/begin", sessionHandler.Begin)
	sessions.Post("/:id/complete", sessionHandler.Complete)
	sessions.Post("/:id/cancel", sessionHandler.Cancel)
	sessions.Put("/:id/reschedule", sessionHandler.Reschedule)
	sessions.Put("/:id/notes", sessionHandler.SetNotes)

	// Direct messages between clients and therapists
	messages := api.Group("/messages", jwt)
	messages.Post("/", messagingHandler.Send)
	messages.Get("/unread", messagingHandler.UnreadCount)
	messages.Get("/thread/:userId", messagingHandler.Thread)
	messages.Post("/:id/read", messagingHandler.MarkRead)

	// Behavior preset catalog (reads open to all authenticated users)
	behaviors := api.Group("/behaviors", jwt)
	behaviors.Get("/", behaviorHandler.List)
	behaviors.Get("/:id", behaviorHandler.Get)

	// Admin panel (protected + admin required)
	admin := api.Group("/admin", jwt, middleware.AdminRequired(st, cfg))
	admin.Post("/behaviors", behaviorHandler.Create)
	admin.Put("/behaviors/:id", behaviorHandler.Update)
	admin.Delete("/behaviors/:id", behaviorHandler.Delete)
	admin.Get("/users", directoryHandler.ListUsers)
	admin.Delete("/users/:id", directoryHandler.DeleteUser)
	admin.Get("/stats/users", directoryHandler.UserCounts)
	admin.Delete("/clients/:id", directoryHandler.DeleteClient)
	admin.Delete("/therapists/:id", directoryHandler.DeleteTherapist)
	admin.Delete("/sessions/:id", sessionHandler.Delete)
	admin.Delete("/conversations/:id", conversationHandler.Delete)
	admin.Get("/events", upgradeRequired, eventsHandler.Stream())
}

// upgradeRequired rejects plain HTTP requests on websocket routes.
func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

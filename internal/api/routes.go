package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/decidr-app/decidr-server/internal/attachment"
	"github.com/decidr-app/decidr-server/internal/auth"
	"github.com/decidr-app/decidr-server/internal/authz"
	"github.com/decidr-app/decidr-server/internal/config"
	"github.com/decidr-app/decidr-server/internal/gateway"
	"github.com/decidr-app/decidr-server/internal/group"
	"github.com/decidr-app/decidr-server/internal/member"
	"github.com/decidr-app/decidr-server/internal/message"
	"github.com/decidr-app/decidr-server/internal/user"
)

// Deps bundles everything the REST surface needs.
type Deps struct {
	Cfg         *config.Config
	DB          *pgxpool.Pool
	RDB         *redis.Client
	Verifier    *auth.Verifier
	Sessions    *auth.SessionStore
	Oracle      *authz.Oracle
	Users       user.Repository
	Groups      group.Repository
	Members     member.Repository
	Messages    message.Repository
	Attachments attachment.Repository
	Rooms       Broadcaster
	Log         zerolog.Logger
}

// RegisterHTTP mounts the REST routes on the HTTP app.
func RegisterHTTP(app *fiber.App, d Deps) {
	health := NewHealthHandler(d.DB, d.RDB)
	app.Get("/health", health.Check)

	authHandler := NewAuthHandler(d.Verifier, d.Sessions, d.Users, d.Cfg, d.Log)
	groupHandler := NewGroupHandler(d.Groups, d.Members, d.Oracle, d.Log)
	memberHandler := NewMemberHandler(d.Members, d.Oracle, d.Rooms, d.Log)
	messageHandler := NewMessageHandler(d.Messages, d.Attachments, d.Oracle, d.Rooms, d.Log)

	v1 := app.Group("/api/v1")
	v1.Post("/auth/refresh", authHandler.Refresh)

	protected := v1.Group("", auth.RequireAuth(d.Verifier))
	protected.Post("/auth/logout", authHandler.Logout)

	protected.Post("/groups", groupHandler.Create)
	protected.Get("/groups", groupHandler.List)
	protected.Get("/groups/:groupID", groupHandler.Get)
	protected.Delete("/groups/:groupID", groupHandler.Delete)

	protected.Get("/groups/:groupID/members", memberHandler.List)
	protected.Post("/groups/:groupID/members", memberHandler.Add)
	protected.Delete("/groups/:groupID/members/:userID", memberHandler.Remove)
	protected.Patch("/groups/:groupID/members/:userID", memberHandler.UpdateRole)

	protected.Post("/messages", messageHandler.Create)
	protected.Get("/messages/:messageID", messageHandler.Get)
	protected.Put("/messages/:messageID", messageHandler.Update)
	protected.Delete("/messages/:messageID", messageHandler.Delete)
	protected.Get("/groups/:groupID/messages", messageHandler.List)
}

// RegisterSocket mounts the WebSocket upgrade route on the socket app.
func RegisterSocket(app *fiber.App, hub *gateway.Hub) {
	gw := NewGatewayHandler(hub)
	app.Get("/socket", gw.Upgrade)
}

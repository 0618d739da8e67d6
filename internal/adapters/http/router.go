package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lobbyd/internal/adapters/chat"
	"lobbyd/internal/config"
	"lobbyd/internal/coord"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware mints a stable identity token per client. The
// coordinator trusts it as-is; there is no authentication.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, c *coord.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LobbySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(gc *gin.Context) {
		gc.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/count", func(gc *gin.Context) {
		gc.String(http.StatusOK, fmt.Sprintf("Visitors: %d", c.Visitors()))
	})

	r.GET("/rooms", func(gc *gin.Context) {
		gc.JSON(http.StatusOK, c.Snapshot())
	})

	ctl := chat.NewController(c, cfg)
	r.GET("/ws", func(gc *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", gc.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleChat(ctx, gc)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

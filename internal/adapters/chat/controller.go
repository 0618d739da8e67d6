// Package chat upgrades HTTP requests to the text-command WebSocket
// protocol and glues each connection to a session.
package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"lobbyd/internal/config"
	"lobbyd/internal/coord"
	"lobbyd/internal/domain"
	"lobbyd/internal/session"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Coord *coord.Coordinator
	Cfg   *config.Config
}

func NewController(c *coord.Coordinator, cfg *config.Config) *Controller {
	return &Controller{Coord: c, Cfg: cfg}
}

// HandleChat upgrades the connection, builds the session and starts the
// read/write pumps. The identity token is minted by the router
// middleware; it is consumed here, never validated.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	id := domain.UserID(c.GetString("client_token"))
	log.Info().Str("module", "chat").Str("user", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws, ctl.Cfg.SendBuffer)
	sess := session.New(id, ctl.Coord, conn, ctl.Cfg.PingPeriod, ctl.Cfg.ClientTimeout)

	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	ws.SetPongHandler(func(string) error {
		sess.Touch()
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		sess.Touch()
		// A full send queue just drops the pong; the client retries.
		_ = conn.pong(appData)
		return nil
	})

	sess.Start()

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "chat").Msg("writePump ctx done")
			return
		case f, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "chat").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "chat").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				log.Error().Err(err).Str("module", "chat").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sess *session.Session, c *wsConn) {
	defer func() {
		log.Info().Str("module", "chat").Msg("readPump closing")
		sess.Shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "chat").Msg("readPump ctx done")
			return
		default:
			kind, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "chat").Msg("readPump read error")
				return
			}
			if kind != websocket.TextMessage {
				log.Warn().Str("module", "chat").Int("kind", kind).Msg("unexpected frame type")
				continue
			}
			sess.HandleText(string(data))
		}
	}
}

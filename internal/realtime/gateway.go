package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/collab"
	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Gateway upgrades HTTP requests to websocket sessions managed by a
// collab.Manager.
type Gateway struct {
	mgr      *collab.Manager
	cfg      config.CollabConfig
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewGateway(mgr *collab.Manager, cfg config.CollabConfig) *Gateway {
	g := &Gateway{
		mgr: mgr,
		cfg: withDefaults(cfg),
		log: logger.Named("gateway"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func withDefaults(cfg config.CollabConfig) config.CollabConfig {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = 1
	}
	return cfg
}

// Register mounts the websocket endpoint on r.
func (g *Gateway) Register(r gin.IRoutes) {
	r.GET(g.cfg.Path, g.Handle)
}

func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

// checkOrigin allows everything when no origins are configured. Requests
// without an Origin header come from non-browser clients and are allowed.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP performs the handshake: the token is verified after the upgrade
// so a refusal can be reported as a connect_error frame and a 4401 close.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.ExtractToken(r)
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnf("upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	cl := newClient(id, conn, g.mgr, g.cfg, g.log)
	sess, err := g.mgr.Connect(r.Context(), id, token, cl)
	if err != nil {
		g.refuse(conn, err)
		return
	}

	go cl.writePump()
	cl.reply(collab.EventConnected, ConnectedPayload{
		Message:   "connected",
		UserID:    sess.UserID,
		SessionID: sess.ID,
	}, "")
	cl.readPump()
}

func (g *Gateway) refuse(conn *websocket.Conn, err error) {
	defer conn.Close()
	code := collab.Code(err)
	msg := err.Error()
	if code == "internal_error" {
		msg = "internal error"
	}
	deadline := time.Now().Add(g.cfg.WriteWait)
	b, encErr := encode(collab.EventConnectError, ConnectErrorPayload{Code: code, Message: msg}, "")
	if encErr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(CloseAuthFailed, code), deadline)
}

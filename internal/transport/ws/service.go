package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sentinel-server-go/internal/platform/errors"
)

const (
	// TelemetryPath is where page agents connect.
	TelemetryPath = "/ws/telemetry"

	helloTimeout = 10 * time.Second

	// silent connections are reaped so abandoned tabs do not pin sessions
	idleTimeout  = 5 * time.Minute
	reapInterval = time.Minute
)

// Service is the websocket telemetry transport.
type Service struct {
	deps     Dependencies
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewService creates the telemetry service.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Config == nil {
		return nil, errors.New(errors.KindConfig, "ws.new", "config is required")
	}
	if deps.Events == nil {
		return nil, errors.New(errors.KindConfig, "ws.new", "event dispatcher is required")
	}

	allowed := make(map[string]bool, len(deps.Config.CORS.AllowOrigins))
	for _, origin := range deps.Config.CORS.AllowOrigins {
		allowed[origin] = true
	}

	return &Service{
		deps: deps,
		hub:  NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no origin
				return origin == "" || allowed[origin]
			},
		},
	}, nil
}

// Register mounts the telemetry endpoint on the engine and starts the idle
// sweep, which runs until the context ends.
func (s *Service) Register(ctx context.Context, engine *gin.Engine) error {
	engine.GET(TelemetryPath, func(c *gin.Context) {
		s.handleUpgrade(ctx, c)
	})
	go s.reapIdle(ctx)
	if s.deps.Logger != nil {
		s.deps.Logger.InfoTag("WS", "telemetry endpoint registered at %s", TelemetryPath)
	}
	return nil
}

func (s *Service) reapIdle(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.hub.CloseIdle(idleTimeout); n > 0 && s.deps.Logger != nil {
				s.deps.Logger.InfoTag("WS", "closed %d idle telemetry sessions", n)
			}
		}
	}
}

// Hub exposes the session hub for shutdown and status.
func (s *Service) Hub() *Hub {
	return s.hub
}

func (s *Service) handleUpgrade(ctx context.Context, c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if s.deps.Logger != nil {
			s.deps.Logger.WarnTag("WS", "upgrade failed: %v", err)
		}
		return
	}

	conn := NewConnection(c.Request.RemoteAddr, socket)
	session, err := s.handshake(ctx, conn)
	if err != nil {
		if s.deps.Logger != nil {
			s.deps.Logger.WarnTag("WS", "handshake failed: %v", err)
		}
		_ = conn.Close()
		return
	}

	s.hub.Register(session)
	defer s.hub.Unregister(session.ID())

	session.Run(ctx)
}

// handshake expects the hello frame as the first message and builds the
// session from it.
func (s *Service) handshake(ctx context.Context, conn *Connection) (*Session, error) {
	_ = conn.socket.SetReadDeadline(time.Now().Add(helloTimeout))
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "ws.handshake", "reading hello frame", err)
	}
	_ = conn.socket.SetReadDeadline(time.Time{})

	if frame.Type != FrameHello || frame.Hello == nil {
		return nil, errors.New(errors.KindValidation, "ws.handshake", "first frame must be hello")
	}
	return NewSession(ctx, conn, *frame.Hello, s.deps)
}

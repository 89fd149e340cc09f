package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"townsquare/internal/services/directory"
	"townsquare/internal/services/history"
)

const (
	writeWait       = 10 * time.Second
	readLimit       = 4096
	dispatchTimeout = 1900 * time.Millisecond
	defaultNick     = "anon"
)

// Options carries the per-connection limits; values come from config.
// An empty AllowedOrigins accepts upgrades from any origin.
type Options struct {
	BackfillLimit  int
	SendBuffer     int
	MaxTextLen     int
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type WsServer struct {
	hub      *Hub
	router   *Router
	dir      directory.IDirectoryService
	hist     history.IHistoryService
	opts     Options
	upgrader websocket.Upgrader
}

func NewWsServer(h *Hub, dir directory.IDirectoryService, hist history.IHistoryService, opts Options) *WsServer {
	srv := &WsServer{
		hub:    h,
		router: NewRouter(),
		dir:    dir,
		hist:   hist,
		opts:   opts,
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.originAllowed,
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// originAllowed gates the upgrade handshake on the configured origin list.
// The CORS middleware does not cover websocket upgrades, so the check lives
// here. Non-browser clients send no Origin header and always pass.
func (s *WsServer) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle validates the room before any connection state exists, then
// upgrades and joins. Rejections never leave presence behind.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	key, err := s.dir.Normalize(ginCtx.Param("city"), ginCtx.Param("circle"))
	if err != nil {
		ginCtx.JSON(http.StatusNotFound, gin.H{"error": "invalid_room"})
		return
	}

	if ageStr := ginCtx.Query("age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil {
			ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "invalid_age"})
			return
		}
		if err := s.dir.ValidateAge(ginCtx.Param("city"), ginCtx.Param("circle"), age); err != nil {
			ginCtx.JSON(http.StatusForbidden, gin.H{"error": "age_out_of_range"})
			return
		}
	}

	nick := s.sanitizeText(ginCtx.Query("nick"))
	if nick == "" {
		nick = defaultNick
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}

	// Backfill is fetched before the member is registered, so a degraded
	// store delays nobody and the member never misses live traffic.
	backfill := s.backfillFrames(ginCtx.Request.Context(), key)

	// ─────────────────── Client joined ────────────────────────
	conn := newClientConn(rawConn, s.opts.SendBuffer)
	m := &member{id: uuid.NewString(), nick: nick, conn: conn}
	s.hub.Join(key, m, backfill)

	go conn.writePump(s.opts.IdleTimeout)
	go s.reader(key, m.id, conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 square/message -------------------------------------------------------
	Register(
		s.router,
		"square/message",
		func(ctx context.Context, cc *ConnContext, req MessageRequest) (AckBody, error) {
			err := s.hub.Send(ctx, cc.RoomKey, cc.ConnID, s.sanitizeText(req.Text))
			return AckBody{}, err
		},
	)

	// 🔹 square/typing --------------------------------------------------------
	Register(
		s.router,
		"square/typing",
		func(_ context.Context, cc *ConnContext, req TypingRequest) (AckBody, error) {
			s.hub.SetTyping(cc.RoomKey, cc.ConnID, req.Typing)
			return AckBody{}, nil
		},
	)

	// 🔹 square/nick ----------------------------------------------------------
	Register(
		s.router,
		"square/nick",
		func(_ context.Context, cc *ConnContext, req NickRequest) (AckBody, error) {
			nick := s.sanitizeText(req.Nick)
			if nick == "" {
				return AckBody{}, errors.New("empty_nick")
			}
			s.hub.SetNick(cc.RoomKey, cc.ConnID, nick)
			return AckBody{}, nil
		},
	)
}

func (s *WsServer) backfillFrames(ctx context.Context, key string) [][]byte {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	events, err := s.hist.Recent(ctx, key, s.opts.BackfillLimit)
	if err != nil {
		zap.L().Warn("ws.backfill", zap.String("room", key), zap.Error(err))
		return nil // degraded store: join without history
	}
	frames := make([][]byte, 0, len(events))
	for _, ev := range events {
		frames = append(frames, historyFrame(ev))
	}
	return frames
}

func (s *WsServer) reader(key, connID string, conn *clientConn) {
	defer s.hub.Leave(key, connID) // network close, error and idle all land here

	conn.rawConn.SetReadLimit(readLimit)
	_ = conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	})

	cc := &ConnContext{RoomKey: key, ConnID: connID, Server: s}

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed, errored or idled out
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			conn.trySend(encodeReply(Envelope{Event: "error"}, ErrorBody{Error: err.Error()}))
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		conn.trySend(encodeReply(Envelope{Event: env.Event + "-ack"}, res))
	}
}

// sanitizeText trims and truncates free-form client text (messages, nicks).
func (s *WsServer) sanitizeText(text string) string {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > s.opts.MaxTextLen {
		text = strings.TrimSpace(string(r[:s.opts.MaxTextLen]))
	}
	return text
}

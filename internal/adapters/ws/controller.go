package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatline/internal/core"
	"chatline/internal/domain"
	"chatline/internal/hub"
)

const defaultPingPeriod = 54 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	hub        *hub.Hub
	readLimit  int64
	pingPeriod time.Duration
}

func NewController(h *hub.Hub, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &Controller{hub: h, readLimit: readLimit, pingPeriod: pingPeriod}
}

// Handle upgrades an already-authenticated request and runs the
// connection's pumps. Events from one connection are handled in
// arrival order on its read pump; the deferred detach runs the full
// cleanup cascade exactly once.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context, user domain.User) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "adapters.ws").Err(err).Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		sock.SetReadLimit(ctl.readLimit)
	}

	conn := newConn(core.ConnID(uuid.NewString()), sock)
	log.Info().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Str("user", string(user.ID)).Msg("connection established")

	ctx, cancel := context.WithCancel(ctx)
	ctl.hub.Attach(ctx, conn, user)

	go conn.writePump(ctx, ctl.pingPeriod)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, conn *Conn) {
	defer func() {
		cancel()
		ctl.hub.Detach(context.Background(), conn.ID())
		conn.Close()
		log.Info().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.sock.ReadMessage()
			if err != nil {
				log.Debug().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Err(err).Msg("read failed")
				return
			}
			ctl.dispatch(ctx, conn, data)
		}
	}
}

// dispatch decodes the envelope and routes over the closed event set.
// Domain errors are already reported to the connection by the hub;
// here they only rate a log line.
func (ctl *Controller) dispatch(ctx context.Context, conn *Conn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Err(err).Msg("bad envelope")
		return
	}

	switch env.Type {
	case core.EvtJoinRooms:
		var rooms []domain.RoomID
		if !decode(conn, env, &rooms) {
			return
		}
		ctl.hub.JoinRooms(ctx, conn, rooms)

	case core.EvtSendMessage:
		var p sendMessagePayload
		if !decode(conn, env, &p) {
			return
		}
		if _, err := ctl.hub.RouteMessage(ctx, conn, hub.MessageInput{
			RoomID:   p.Room,
			Content:  p.Content,
			Type:     p.MessageType,
			FileURL:  p.FileURL,
			FileName: p.FileName,
			FileSize: p.FileSize,
			ReplyTo:  p.ReplyTo,
		}); err != nil {
			log.Warn().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Err(err).Msg("route message")
		}

	case core.EvtTypingStart:
		var p typingPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RouteTyping(conn, p.Room, true)

	case core.EvtTypingStop:
		var p typingPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RouteTyping(conn, p.Room, false)

	case core.EvtInitiateCall:
		var p initiateCallPayload
		if !decode(conn, env, &p) {
			return
		}
		if err := ctl.hub.InitiateCall(ctx, conn, p.RoomID, p.CallType); err != nil {
			log.Debug().Str("module", "adapters.ws").Str("room", string(p.RoomID)).Err(err).Msg("initiate call")
		}

	case core.EvtJoinCall:
		var p callRoomPayload
		if !decode(conn, env, &p) {
			return
		}
		if err := ctl.hub.JoinCall(ctx, conn, p.RoomID); err != nil {
			log.Debug().Str("module", "adapters.ws").Str("room", string(p.RoomID)).Err(err).Msg("join call")
		}

	case core.EvtWebRTCOffer:
		var p offerPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RelayOffer(conn, p.RoomID, p.TargetUserID, p.Offer)

	case core.EvtWebRTCAnswer:
		var p answerPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RelayAnswer(conn, p.RoomID, p.TargetUserID, p.Answer)

	case core.EvtWebRTCCandidate:
		var p candidatePayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RelayCandidate(conn, p.RoomID, p.TargetUserID, p.Candidate)

	case core.EvtRejectCall:
		var p callRoomPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.RejectCall(ctx, conn, p.RoomID)

	case core.EvtLeaveCall:
		var p callRoomPayload
		if !decode(conn, env, &p) {
			return
		}
		ctl.hub.LeaveCall(ctx, conn, p.RoomID)

	case core.EvtEndCall:
		var p callRoomPayload
		if !decode(conn, env, &p) {
			return
		}
		if err := ctl.hub.EndCall(ctx, conn, p.RoomID); err != nil {
			log.Debug().Str("module", "adapters.ws").Str("room", string(p.RoomID)).Err(err).Msg("end call")
		}

	default:
		log.Warn().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Str("event", env.Type).Msg("unknown event")
	}
}

func decode(conn *Conn, env core.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		log.Warn().Str("module", "adapters.ws").Str("conn", string(conn.ID())).Str("event", env.Type).Err(err).Msg("bad payload")
		return false
	}
	return true
}

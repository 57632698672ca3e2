package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/vidscribe/internal/diaglog"
	"github.com/tiroq/vidscribe/internal/playback"
	"github.com/tiroq/vidscribe/internal/transcript"
)

const (
	syncReadLimit    = 4096
	syncWriteTimeout = 5 * time.Second
)

// syncRequest is one player-loop message. Tick carries T; seek and step
// carry Kind and ID; step also carries Dir. Seq is echoed back.
type syncRequest struct {
	Op   string   `json:"op"`
	Seq  int      `json:"seq,omitempty"`
	T    *float64 `json:"t,omitempty"`
	Kind string   `json:"kind,omitempty"`
	ID   *int     `json:"id,omitempty"`
	Dir  string   `json:"dir,omitempty"`
}

// syncReply answers one syncRequest. Absent fields mean "not found".
type syncReply struct {
	Op      string              `json:"op"`
	Seq     int                 `json:"seq,omitempty"`
	Segment *transcript.Segment `json:"segment,omitempty"`
	Word    *playback.WordRef   `json:"word,omitempty"`
	Bounds  *playback.Bounds    `json:"bounds,omitempty"`
	ID      *int                `json:"id,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// handleSync upgrades to a WebSocket and answers navigation queries until
// the client disconnects. Bad queries are answered with an error reply; the
// playback loop must never lose its connection over a stale scrub position.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(syncReadLimit)

	s.log(diaglog.ComponentPlaybackSync, diaglog.EventSyncConnect, "", "", map[string]interface{}{"remote": r.RemoteAddr})
	defer s.log(diaglog.ComponentPlaybackSync, diaglog.EventSyncDisconnect, "", "", map[string]interface{}{"remote": r.RemoteAddr})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.errLog.Printf("[SYNC] Read failed: %v", err)
			}
			return
		}

		var req syncRequest
		reply := syncReply{Op: "error"}
		if err := json.Unmarshal(data, &req); err != nil {
			reply.Error = "invalid message: " + err.Error()
		} else {
			reply = s.answer(req)
		}
		if reply.Error != "" {
			s.log(diaglog.ComponentPlaybackSync, diaglog.EventSyncQueryError, "", reply.Error, map[string]interface{}{"op": req.Op})
		}

		conn.SetWriteDeadline(time.Now().Add(syncWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

// answer resolves req against the current index. A reload between two
// ticks is picked up on the next tick.
func (s *Server) answer(req syncRequest) syncReply {
	reply := syncReply{Op: req.Op, Seq: req.Seq}
	ix := s.holder.Load()
	if ix == nil || ix.Transcript() == nil {
		reply.Error = "no transcript loaded"
		return reply
	}

	switch req.Op {
	case "tick":
		if req.T == nil {
			reply.Error = "tick requires t"
			return reply
		}
		loc := locate(ix, *req.T)
		reply.Segment, reply.Word = loc.Segment, loc.Word

	case "seek":
		kind, err := playback.ParseKind(req.Kind)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		if req.ID == nil {
			reply.Error = "seek requires id"
			return reply
		}
		b, err := ix.Seek(kind, *req.ID)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		reply.Bounds = &b

	case "step":
		kind, err := playback.ParseKind(req.Kind)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		if req.ID == nil {
			reply.Error = "step requires id"
			return reply
		}
		id, ok, err := step(ix, kind, *req.ID, req.Dir)
		if err != nil {
			reply.Error = err.Error()
			return reply
		}
		if ok {
			reply.ID = &id
			if b, found := ix.BoundsOf(kind, id); found {
				reply.Bounds = &b
			}
		}

	default:
		reply.Error = fmt.Sprintf("unknown op %q", req.Op)
	}
	return reply
}

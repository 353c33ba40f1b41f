package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// maxMessageBytes bounds a single inbound socket message. One second of
// 48 kHz float32 PCM is 192 KiB.
const maxMessageBytes = 1 << 20

// errSessionDone ends a socket session normally.
var errSessionDone = errors.New("api: session done")

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// accept upgrades the request, honouring the origin allow-list. On failure
// Accept has already answered the request.
func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	patterns, anyOrigin := s.originPatterns()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     patterns,
		InsecureSkipVerify: anyOrigin,
	})
	if err != nil {
		slog.Warn("api: websocket upgrade failed", "path", r.URL.Path, "err", err)
		return nil, err
	}
	conn.SetReadLimit(maxMessageBytes)
	return conn, nil
}

// finish reports err to the client, if it is a real failure, and closes the
// connection.
func finish(ctx context.Context, conn *websocket.Conn, kind string, err error) {
	if isNormalEnd(err) {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	slog.Warn("api: socket session failed", "kind", kind, "err", err)
	_ = wsjson.Write(ctx, conn, errorMessage{Type: "error", Message: err.Error()})
	_ = conn.Close(websocket.StatusInternalError, kind+" session failed")
}

func isNormalEnd(err error) bool {
	if err == nil || errors.Is(err, errSessionDone) || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"royaltysplit/core/events"
)

const wsWriteTimeout = 10 * time.Second

// receiptPayload is the wire form of one streamed vault receipt.
type receiptPayload struct {
	Type       string            `json:"type"`
	Cursor     string            `json:"cursor"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s *Server) handleReceiptWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.stream == nil {
		http.Error(w, "receipt stream unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamReceipts(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamReceipts(ctx context.Context, conn *websocket.Conn, cursor string) error {
	updates, cancel, backlog, err := s.stream.Subscribe(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, update := range backlog {
		if err := writeReceiptUpdate(ctx, conn, update); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeReceiptUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeReceiptUpdate(ctx context.Context, conn *websocket.Conn, update events.StreamUpdate) error {
	payload := receiptPayload{Cursor: update.Cursor}
	if update.Event != nil {
		payload.Type = update.Event.Type
		payload.Attributes = update.Event.Attributes
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancelWrite()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

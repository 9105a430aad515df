package server

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// RadioWebsocketUpgrade gates the websocket route on a proper upgrade request.
func (s *Server) RadioWebsocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// RadioWebsocketHandler handles GET /api/ws/radio. The feed is one-way: the
// station pushes change events, listeners just hear them. Anonymous
// connections are allowed; a token only attaches an identity for logging.
func (s *Server) RadioWebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		if s.hub == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"event feed unavailable"}`))
			_ = conn.Close()
			return
		}

		profileID := s.profileIDFromToken(conn.Query("token"))

		client, err := s.hub.Register(profileID, conn)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		// Send the current snapshot so late joiners can sync immediately
		// instead of waiting for the next change event.
		if snapshot, err := s.broadcastSnapshot(context.Background()); err == nil {
			client.TrySend(snapshot)
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// broadcastSnapshot builds the welcome payload for a fresh listener socket.
func (s *Server) broadcastSnapshot(ctx context.Context) ([]byte, error) {
	record, err := s.broadcasts.Get(ctx)
	if err != nil {
		return nil, err
	}

	payload := fiber.Map{
		"kind":           "snapshot",
		"playback_state": record.PlaybackState,
		"leader_id":      record.LeaderID,
		"timestamp":      time.Now(),
	}
	if record.CurrentSongID != nil {
		payload["current_song_id"] = *record.CurrentSongID
		payload["position_sec"] = int(record.Elapsed(time.Now()).Seconds())
	}
	return json.Marshal(payload)
}

// profileIDFromToken best-effort parses a JWT; zero means anonymous.
func (s *Server) profileIDFromToken(tokenString string) uint {
	if tokenString == "" {
		return 0
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		log.Printf("websocket: ignoring invalid token: %v", err)
		return 0
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

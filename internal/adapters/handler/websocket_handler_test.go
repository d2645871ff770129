package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/adapters/handler"
	"github.com/IANDYI/glucose-diary/internal/adapters/middleware"
	"github.com/IANDYI/glucose-diary/internal/adapters/websocket"
	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFeed(t *testing.T, auth *middleware.AuthMiddleware) (*websocket.Hub, string) {
	t.Helper()
	hub := websocket.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	wsHandler := handler.NewWebSocketHandler(hub, auth, nil)
	server := httptest.NewServer(http.HandlerFunc(wsHandler.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
		auth.Stop()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func signedToken(t *testing.T, key *rsa.PrivateKey, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":  "user123",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"jti":  "ws-" + role,
	})
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestWebSocketHandler_AuthDisabled(t *testing.T) {
	hub, url := startFeed(t, middleware.NewDisabledAuthMiddleware(nil))

	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_TokenAuth(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hub, url := startFeed(t, middleware.NewAuthMiddleware(&privateKey.PublicKey, nil))

	// missing token
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// unknown role
	_, resp, err = gorilla.DefaultDialer.Dial(url+"?token="+signedToken(t, privateKey, "NURSE"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// token in the query string
	conn, _, err := gorilla.DefaultDialer.Dial(url+"?token="+signedToken(t, privateKey, middleware.RoleViewer), nil)
	require.NoError(t, err)
	defer conn.Close()

	// token in the header
	header := http.Header{}
	header.Set("Authorization", "Bearer "+signedToken(t, privateKey, middleware.RoleOwner))
	conn2, _, err := gorilla.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn2.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
}

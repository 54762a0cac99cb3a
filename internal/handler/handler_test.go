package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/roomchat/internal/attachment"
	"github.com/weiawesome/wes-io-live/roomchat/internal/auth"
	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
	"github.com/weiawesome/wes-io-live/roomchat/internal/presence"
	"github.com/weiawesome/wes-io-live/roomchat/internal/repository"
	"github.com/weiawesome/wes-io-live/roomchat/internal/service"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/database"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/idgen"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/jwt"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/storage"
)

type testServer struct {
	router   *gin.Engine
	server   *httptest.Server
	jwt      *jwt.Manager
	hub      *hub.Hub
	registry *presence.Registry
	store    *repository.GormMessageRepository
	cache    *cache.MemoryRoomCache
	history  service.HistoryService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	store, err := repository.NewGormMessageRepository(db, idgen.NewULIDGenerator())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath:     t.TempDir(),
		PublicPrefix: "/attachments",
	})
	require.NoError(t, err)

	manager, err := jwt.NewManager("test-secret", "roomchat", time.Hour)
	require.NoError(t, err)
	validator := auth.NewJWTValidator(manager)

	wsCfg := config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
	}
	h := hub.NewHub(wsCfg)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	reg := presence.NewRegistry()
	memCache := cache.NewMemoryRoomCache(cache.Options{})
	history := service.NewHistoryService(store, memCache, 50)
	chat := service.NewChatService(h, reg, memCache, history, nil)
	resolver := attachment.NewStorageResolver(blobs, config.AttachmentConfig{
		KeyPrefix:     "chats",
		MaxUploadSize: 1024,
		AllowedTypes:  []string{"image/png", "application/pdf", "text/plain"},
	})

	router := gin.New()
	router.Use(log.GinMiddleware(log.L()))
	NewHTTPHandler(history, resolver, blobs, validator, 1024).RegisterRoutes(router)
	NewWSHandler(h, chat, validator, wsCfg).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		router:   router,
		server:   srv,
		jwt:      manager,
		hub:      h,
		registry: reg,
		store:    store,
		cache:    memCache,
		history:  history,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.jwt.GenerateToken(userID, userID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

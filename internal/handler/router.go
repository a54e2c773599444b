package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wufei-png/wework-robot-opencode/internal/handler/callback"
	"github.com/wufei-png/wework-robot-opencode/internal/service/envelope"
	"github.com/wufei-png/wework-robot-opencode/pkg/utils"
)

// ServiceName 出现在根路径的服务描述中。
const ServiceName = "wework-robot-opencode"

// NewRouter wires HTTP routes to core services.
func NewRouter(codec envelope.Codec, asker callback.Asker) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"service":  ServiceName,
			"callback": callback.Path,
			"mode":     "enterprise-wechat-self-built-app",
		})
	})

	// 企业微信回调
	callback.New(codec, asker).RegisterRoutes(r)

	return r
}

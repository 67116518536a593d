package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/console/handler"
	"github.com/xela07ax/enrollgate/internal/infra/auth"
)

// ConsoleServer — HTTP-консоль операторов: просмотр очереди,
// решения по заявкам и сводка. Вся защищенная часть за RS256.
type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	authValidator auth.TokenValidator

	authHandler    *handler.AuthHandler    // /auth/token
	requestHandler *handler.RequestHandler // /v1/requests
	statsHandler   *handler.StatsHandler   // /v1/stats
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	requestH *handler.RequestHandler,
	statsH *handler.StatsHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		authValidator:  validator,
		authHandler:    authH,
		requestHandler: requestH,
		statsHandler:   statsH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Очередь заявок и решения
		r.Route("/v1/requests", func(r chi.Router) {
			r.Get("/", s.requestHandler.List) // ?status=PENDING|APPROVED|REJECTED
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.requestHandler.GetDetails)
				r.Post("/decide", s.requestHandler.Decide) // Approve/Reject
			})
		})

		// Сводка по набору
		r.Get("/v1/stats", s.statsHandler.Get)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

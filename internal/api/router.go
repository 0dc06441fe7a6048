// Package api 提供物化集合的只读查询接口。
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/survivor-indexer/internal/cache"
	"github.com/wfunc/survivor-indexer/internal/config"
	"github.com/wfunc/survivor-indexer/internal/database"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/store"
	"github.com/wfunc/survivor-indexer/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Finder 集合查询
type Finder interface {
	Find(ctx context.Context, collection string, q store.Query) ([]store.Fields, error)
}

// StatsFunc 返回物化器状态，用于健康检查
type StatsFunc func() any

// Router API路由器
type Router struct {
	engine *gin.Engine
	db     *gorm.DB
	finder Finder
	cache  *cache.Cache
	stats  StatsFunc
	cfg    config.ServerConfig
	log    *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, finder Finder, c *cache.Cache, stats StatsFunc, cfg config.ServerConfig) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if c == nil {
		c = cache.New(config.CacheConfig{})
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(RequestID())
	engine.Use(Recovery())
	engine.Use(RequestLogger())

	r := &Router{
		engine: engine,
		db:     db,
		finder: finder,
		cache:  c,
		stats:  stats,
		cfg:    cfg,
		log:    logger.GetModuleLogger(logger.ModuleAPI),
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/:collection", r.list)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := gin.H{"cache": r.cache.Stats()}
	if r.stats != nil {
		resp["indexer"] = r.stats()
	}

	if err := database.Ping(ctx, r.db); err != nil {
		resp["status"] = "unhealthy"
		resp["message"] = "数据库ping失败"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	resp["status"] = "healthy"
	c.JSON(http.StatusOK, resp)
}

// MountLive 挂载实时事件订阅
func (r *Router) MountLive(hub *websocket.Hub) {
	r.engine.GET("/ws/live", websocket.ServeWS(hub))
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Server HTTP服务
type Server struct {
	srv *http.Server
	cfg config.ServerConfig
	log *zap.Logger
}

// NewServer 创建HTTP服务
func NewServer(r *Router, addr string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r.engine,
			ReadTimeout:  r.cfg.ReadTimeout,
			WriteTimeout: r.cfg.WriteTimeout,
		},
		cfg: r.cfg,
		log: r.log,
	}
}

// Start 在后台监听，返回的通道在服务退出时收到错误
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API服务启动", zap.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

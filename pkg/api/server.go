package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/behavior"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/engine"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
)

// ServerConfig 观测 API 配置
type ServerConfig struct {
	Port string `yaml:"port"` // 监听端口
	Mode string `yaml:"mode"` // gin 模式 (debug, release, test)
}

// Server 引擎的观测与上报 HTTP 服务
type Server struct {
	engine *engine.Engine
	config ServerConfig
	server *http.Server
	log    *logrus.Entry
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PutRequest 缓存写入请求
type PutRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value" binding:"required"`
	TTL   string      `json:"ttl"` // 如 "15m"，为空时使用默认 TTL
}

// ActivityRequest 实体行为上报请求
type ActivityRequest struct {
	EntityID     string   `json:"entity_id" binding:"required"`
	ActivityType string   `json:"activity_type" binding:"required"`
	CacheKeys    []string `json:"cache_keys"`
}

// NewServer 创建观测 API 服务
func NewServer(e *engine.Engine, config ServerConfig) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.Mode == "" {
		config.Mode = "release"
	}

	return &Server{
		engine: e,
		config: config,
		log:    logger.WithComponent("api-server"),
	}
}

// Handler 构建路由，测试时可直接挂到 httptest
func (s *Server) Handler() http.Handler {
	gin.SetMode(s.config.Mode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", s.getStats)
		v1.GET("/cache", s.getCache)
		v1.POST("/cache", s.putCache)
		v1.DELETE("/cache", s.deleteCache)
		v1.GET("/patterns", s.getPatterns)
		v1.POST("/activities", s.postActivity)
	}

	return router
}

// Start 启动 HTTP 服务，立即返回
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.Handler(),
	}

	s.log.WithField("port", s.config.Port).Info("观测 API 服务启动")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP 服务异常退出")
		}
	}()

	return nil
}

// Stop 优雅停止 HTTP 服务
func (s *Server) Stop() {
	if s.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("HTTP 服务停止失败")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(200, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// getStats 返回引擎与缓存的整体统计
func (s *Server) getStats(c *gin.Context) {
	c.JSON(200, map[string]interface{}{
		"timestamp": time.Now(),
		"warming":   s.engine.GetWarmingStats(),
		"cache":     s.engine.GetCacheStats(),
	})
}

// getCache 读取缓存条目，key 由查询参数给出
func (s *Server) getCache(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "key is required"})
		return
	}

	value, err := s.engine.Lookup(c.Request.Context(), key, c.Query("entity_id"))
	if err != nil {
		c.JSON(404, ErrorResponse{Error: "not_found", Message: "cache miss"})
		return
	}

	c.JSON(200, map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

// putCache 写入缓存条目
func (s *Server) putCache(c *gin.Context) {
	var req PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			c.JSON(400, ErrorResponse{Error: "bad_request", Message: "invalid ttl format"})
			return
		}
		ttl = parsed
	}

	if err := s.engine.Put(c.Request.Context(), req.Key, req.Value, ttl); err != nil {
		s.log.WithError(err).WithField("key", req.Key).Error("缓存写入失败")
		c.JSON(500, ErrorResponse{Error: "internal_error", Message: "failed to store value"})
		return
	}

	c.JSON(200, map[string]string{"status": "stored"})
}

// deleteCache 删除缓存条目
func (s *Server) deleteCache(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "key is required"})
		return
	}

	if err := s.engine.Invalidate(c.Request.Context(), key); err != nil {
		s.log.WithError(err).WithField("key", key).Error("缓存删除失败")
		c.JSON(500, ErrorResponse{Error: "internal_error", Message: "failed to delete key"})
		return
	}

	c.JSON(200, map[string]string{"status": "deleted"})
}

// getPatterns 返回当前时段画像
func (s *Server) getPatterns(c *gin.Context) {
	profiles := s.engine.GetProfiles()

	c.JSON(200, map[string]interface{}{
		"timestamp": time.Now(),
		"count":     len(profiles),
		"profiles":  profiles,
	})
}

// postActivity 上报实体行为，触发行为预测预热
func (s *Server) postActivity(c *gin.Context) {
	var req ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	s.engine.RecordActivity(behavior.ActivityRecord{
		Timestamp:    time.Now(),
		EntityID:     req.EntityID,
		ActivityType: req.ActivityType,
		CacheKeys:    req.CacheKeys,
	})

	c.JSON(202, map[string]string{"status": "recorded"})
}

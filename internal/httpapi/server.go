package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"extgap/internal/logger"
	"extgap/internal/market"
	"extgap/internal/mm"
	"extgap/internal/store"
)

// StatsHolder 保存引擎最近一次发布的快照。引擎单线程跑在自己的
// goroutine 里，HTTP 侧只读这里的副本，互不打扰。
type StatsHolder struct {
	mu    sync.RWMutex
	stats mm.EngineStats
	ok    bool
}

func (h *StatsHolder) Publish(s mm.EngineStats) {
	h.mu.Lock()
	h.stats = s
	h.ok = true
	h.mu.Unlock()
}

func (h *StatsHolder) Snapshot() (mm.EngineStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats, h.ok
}

// SourceStats 由行情源实现（market.Source 的子集），状态接口展示用。
type SourceStats interface {
	Stats() market.SourceStats
}

// FundingSource 行情源的可选扩展：能查最新资金费率的源（如币安
// 永续）在状态接口里多带一个 funding_rate 字段。
type FundingSource interface {
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

type Config struct {
	Addr    string
	Holder  *StatsHolder
	Source  SourceStats
	Store   *store.EventStore
	Candles *store.CandleCache
}

type Server struct {
	addr      string
	router    *gin.Engine
	holder    *StatsHolder
	source    SourceStats
	events    *store.EventStore
	candles   *store.CandleCache
	startedAt time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Holder == nil {
		return nil, errors.New("stats holder 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		router:    router,
		holder:    cfg.Holder,
		source:    cfg.Source,
		events:    cfg.Store,
		candles:   cfg.Candles,
		startedAt: time.Now().UTC(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/stats", s.handleStats)
	api.GET("/trades", s.handleTrades)
	api.GET("/candles", s.handleCandles)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	stats, ok := s.holder.Snapshot()
	resp := gin.H{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"engine_ready":   ok,
	}
	if ok {
		resp["symbol"] = stats.Symbol
		resp["signal"] = stats.Signal
		resp["active_orders"] = stats.State.ActiveOrders
		resp["cumulative_pnl"] = stats.Ledger.CumulativePnL
		resp["total_trades"] = stats.Ledger.TotalTrades
	}
	if s.source != nil {
		resp["source"] = s.source.Stats()
		if fs, isFunding := s.source.(FundingSource); isFunding && ok {
			fctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			rate, err := fs.GetFundingRate(fctx, stats.Symbol)
			cancel()
			if err != nil {
				logger.Debugf("http: 资金费率查询失败: %v", err)
			} else {
				resp["funding_rate"] = rate
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, ok := s.holder.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine 尚未产生快照"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用 SQLite 存储"})
		return
	}
	rows, err := s.events.TradeSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": rows})
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用 K 线缓存"})
		return
	}
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 与 interval 必填"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": s.candles.Window(symbol, interval)})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http: listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

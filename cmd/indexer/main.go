package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/survivor-indexer/internal/api"
	"github.com/wfunc/survivor-indexer/internal/cache"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/config"
	"github.com/wfunc/survivor-indexer/internal/database"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/indexer"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/store"
	"github.com/wfunc/survivor-indexer/internal/stream"
	"github.com/wfunc/survivor-indexer/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 索引服务实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	materializer *indexer.Materializer
	driver       *stream.Driver
	api          *api.Server
	hub          *websocket.Hub

	// 关闭控制
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		replayFile  = flag.String("replay", "", "从JSON Lines文件回放事件流（覆盖stream配置）")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()
	if *replayFile != "" {
		cfg.Stream.Source = "file"
		cfg.Stream.File = *replayFile
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	setupSystem(&cfg.System)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("索引服务启动失败", zap.Error(err))
	}

	runErr := server.Wait()

	if err := server.Shutdown(); err != nil {
		logger.Error("索引服务关闭失败", zap.Error(err))
		os.Exit(1)
	}

	if runErr != nil {
		logger.Error("索引中止", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("索引服务已安全关闭")
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 2),
	}
}

// Start 初始化组件并启动事件流与查询接口
func (s *Server) Start() error {
	s.logger.Info("正在启动索引服务...",
		zap.String("version", Version),
		zap.String("source", s.cfg.Stream.Source),
		zap.String("contract", s.cfg.Stream.ContractAddress),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	st, err := store.NewGormStore(database.GetDB())
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "创建存储失败")
	}

	if s.cfg.Server.Enabled && s.cfg.Server.Live {
		s.hub = websocket.NewHub(logger.GetModuleLogger(logger.ModuleAPI))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(s.ctx)
		}()
	}

	if err := s.initIndexer(st); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.driver.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.errCh <- err
			return
		}
		s.logger.Info("事件流已结束", zap.Any("stats", s.materializer.Stats()))
		// 文件回放结束后没有查询服务可等待
		if !s.cfg.Server.Enabled {
			s.errCh <- nil
		}
	}()

	if s.cfg.Server.Enabled {
		s.startAPI(st)
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...", zap.String("driver", s.cfg.Database.Driver))

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := database.Ping(ctx, database.GetDB()); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return nil
}

// initIndexer 创建物化器和事件流驱动
func (s *Server) initIndexer(st store.Store) error {
	contract, err := codec.ParseFelt(s.cfg.Stream.ContractAddress)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigValidate, "无效的合约地址")
	}

	catalog, err := events.NewCatalog()
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidSchema, "加载事件目录失败")
	}

	opts := []indexer.Option{
		indexer.WithCursor(s.cfg.Stream.CursorName),
		indexer.WithWarnAfterDeath(s.cfg.Indexer.WarnAfterDeath),
		indexer.WithLogger(logger.GetModuleLogger(logger.ModuleIndexer)),
	}
	if s.hub != nil {
		opts = append(opts, indexer.WithNotifier(s.hub))
	}
	s.materializer = indexer.New(catalog, st, contract, opts...)

	driverOpts := stream.Options{
		CursorName:    s.cfg.Stream.CursorName,
		StartBlock:    s.cfg.Stream.StartBlock,
		RetryTimes:    s.cfg.Stream.RetryTimes,
		RetryInterval: s.cfg.Stream.RetryInterval,
		MaxRetryDelay: s.cfg.Stream.MaxRetryDelay,
	}

	var open stream.Opener
	switch s.cfg.Stream.Source {
	case "file":
		open = stream.FileOpener(s.cfg.Stream.File)
	default:
		open = stream.WebSocketOpener(s.cfg.Stream.URL, contract, stream.WebSocketOptions{
			PingInterval: s.cfg.Stream.PingInterval,
			PongTimeout:  s.cfg.Stream.PongTimeout,
			DialTimeout:  s.cfg.Stream.DialTimeout,
		})
	}

	s.driver = stream.NewDriver(open, s.materializer, st, driverOpts)
	return nil
}

// startAPI 启动查询接口
func (s *Server) startAPI(st *store.GormStore) {
	c := cache.New(s.cfg.Cache)
	router := api.NewRouter(database.GetDB(), st, c, s.stats, s.cfg.Server)
	if s.hub != nil {
		router.MountLive(s.hub)
	}
	s.api = api.NewServer(router, fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port))

	errCh := s.api.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := <-errCh; err != nil {
			s.errCh <- err
		}
	}()
}

// stats 健康检查中的索引状态
func (s *Server) stats() any {
	out := map[string]any{
		"materializer": s.materializer.Stats(),
		"session_id":   s.driver.SessionID(),
	}
	if s.hub != nil {
		out["live_clients"] = s.hub.Count()
		out["live_dropped"] = s.hub.Dropped()
	}
	return out
}

// Wait 等待退出信号或事件流终止
func (s *Server) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		return nil
	case err := <-s.errCh:
		return err
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭索引服务...")

	s.cancel()

	if s.api != nil {
		if err := s.api.Shutdown(context.Background()); err != nil {
			s.logger.Error("关闭查询服务失败", zap.Error(err))
		}
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	if cur := s.driver.Cursor(); cur != nil {
		s.logger.Info("最后应用的区块",
			zap.Uint64("block", cur.BlockNumber),
			zap.String("hash", cur.BlockHash),
		)
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
	return nil
}

// reloadConfig 重新加载配置，目前只有日志级别支持热更新
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置重新加载完成", zap.String("log_level", newCfg.Log.Level))
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("Loot Survivor 索引器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("Loot Survivor 索引器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  survivor-indexer [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  SURVIVOR_INDEXER_STREAM_URL               事件流地址")
	fmt.Println("  SURVIVOR_INDEXER_STREAM_CONTRACT_ADDRESS  合约地址")
	fmt.Println("  SURVIVOR_INDEXER_DATABASE_DSN             数据库连接串")
}

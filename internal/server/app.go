// Package server wires configuration, the user store, the identity
// exchanger and the knowledge dataset together and runs the HTTP API and
// the gRPC health endpoint until the process is signalled.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/auth"
	"github.com/zhangleigang/knowledge-api/internal/server/config"
	"github.com/zhangleigang/knowledge-api/internal/server/knowledge"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/repomanager"
	"github.com/zhangleigang/knowledge-api/internal/server/services"
	"github.com/zhangleigang/knowledge-api/internal/server/wechat"

	gs "github.com/zhangleigang/knowledge-api/internal/server/grpc"
	hs "github.com/zhangleigang/knowledge-api/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	flushLogger func() error
	repos       repomanager.RepositoryManager
	exchanger   wechat.Exchanger
	authService *services.AuthService
	dataset     *knowledge.Dataset
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, flush, err := logging.New(os.Stdout, c.LogBackend, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	ds, err := loadDataset(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("knowledge dataset load error: %w", err)
	}

	rm, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("user store init error: %w", err)
	}

	ex := newExchanger(c)
	codec := auth.NewCodec(c.JWTSecret)
	as := services.NewAuthService(rm.Users(), ex, codec, c.TokenTTL, logger)

	return &App{
		config:      c,
		logger:      logger,
		flushLogger: flush,
		repos:       rm,
		exchanger:   ex,
		authService: as,
		dataset:     ds,
	}, nil
}

func newExchanger(c *config.Config) wechat.Exchanger {
	if !c.ProviderConfigured() {
		return wechat.Synthetic{}
	}
	return wechat.NewClient(wechat.Config{
		AppID:    c.WechatAppID,
		Secret:   c.WechatSecret,
		Endpoint: c.WechatEndpoint,
		Timeout:  c.WechatTimeout,
	})
}

// loadDataset reads the dataset from S3 when a bucket is configured and
// from the local file otherwise.
func loadDataset(ctx context.Context, c *config.Config) (*knowledge.Dataset, error) {
	if c.KnowledgeS3Bucket == "" {
		return knowledge.LoadFile(c.KnowledgeFile)
	}

	client, err := knowledge.NewS3Client(ctx, knowledge.S3Config{
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return knowledge.LoadS3(ctx, client, c.KnowledgeS3Bucket, c.KnowledgeS3Key)
}

func (app *App) devMode() bool {
	_, ok := app.exchanger.(wechat.Synthetic)
	return ok
}

func (app *App) logStartup(ctx context.Context) {
	app.logger.Info(ctx, "Starting app...",
		"http_address", app.config.HTTPAddr(),
		"grpc_address", app.config.GRPCAddr,
		"store", app.config.StoreBackend,
		"identity_provider", app.exchanger.Mode(),
		"questions", len(app.dataset.Questions),
		"dataset_version", app.dataset.VersionInfo().Version,
	)

	if app.devMode() {
		app.logger.Warn(ctx, "WECHAT_APPID/WECHAT_SECRET not set, logins use synthetic identities (development mode)")
	}
	if app.config.UsesDefaultSecret() {
		app.logger.Warn(ctx, "JWT_SECRET not set, using the built-in default secret; set it in production")
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := hs.NewServer(app.config.HTTPAddr(), app.logger, app.authService, app.dataset, app.devMode())

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.GRPCAddr, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or either server
// fails, then closes the user store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	gin.SetMode(gin.ReleaseMode)
	app.logStartup(ctx)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "user store close failed", "error", err)
	}
	app.logger.Info(context.Background(), "Stopped")
	_ = app.flushLogger()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ageniuscoder/tradechat/internal/auth"
	"github.com/ageniuscoder/tradechat/internal/chat"
	"github.com/ageniuscoder/tradechat/internal/config"
	"github.com/ageniuscoder/tradechat/internal/conversations"
	"github.com/ageniuscoder/tradechat/internal/feature"
	"github.com/ageniuscoder/tradechat/internal/logging"
	"github.com/ageniuscoder/tradechat/internal/notify"
	"github.com/ageniuscoder/tradechat/internal/presence"
	"github.com/ageniuscoder/tradechat/internal/storage/postgres"
	"github.com/ageniuscoder/tradechat/internal/storage/sqlite"
)

// relayStore is the document store behind the relay.
type relayStore interface {
	conversations.Store
	chat.PeerLister
	Migrate() error
	Ping(ctx context.Context) error
	Close() error
}

func openRelayStore(cfg config.Config) (relayStore, error) {
	switch cfg.RelayDriver {
	case "postgres":
		if cfg.PostgresDsn == "" {
			return nil, errors.New("postgres_dsn is required for relay_driver=postgres")
		}
		pg, err := postgres.New(cfg.PostgresDsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg, nil
	default:
		db, err := sqlite.New(cfg.SQLITEDsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the relay schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openRelayStore(a.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logging.Logger.Info().Str("driver", a.cfg.RelayDriver).Msg("migration completed")
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	if a.cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required to run the relay")
	}

	st, err := openRelayStore(a.cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := chat.NewHub(st)
	go hub.Run(ctx)

	router := newRouter(a.cfg, st, hub, presence.NewHintQueue(a.cfg.HintCapacity))
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := logging.Component("relay")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", a.cfg.Addr).Str("driver", a.cfg.RelayDriver).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg config.Config, st relayStore, hub *chat.Hub, hints *presence.HintQueue) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("")
	chat.RegisterWS(public, hub, auth.Parser(cfg.JWTSecret))
	feature.Register(public, hub)

	api := r.Group("/api", auth.JWTMiddleware(cfg.JWTSecret), auth.RateLimit(cfg.RateRPS, cfg.RateBurst))
	conversations.Register(api, st, hub)
	notify.Register(api, hints, hub)
	return r
}

func requestLogger() gin.HandlerFunc {
	logger := logging.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID int64
		name   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a client token signed with jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("jwt_secret is required to issue tokens")
			}
			if userID <= 0 {
				return errors.New("--user must be a positive id")
			}
			tok, err := auth.NewToken(a.cfg.JWTSecret, userID, name, a.cfg.JWTTTLMin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/httpapi"
	"github.com/spigell/cv-wizard/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation over a JSON HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	questions, err := loadQuestions(config)
	if err != nil {
		logger.Fatal("loading questions", zap.Error(err))
	}

	driver, st, err := newDriver(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the wizard", zap.Error(err))
	}
	defer st.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	handler := httpapi.NewHandler(driver, questions, uuid.NewString, logger)
	handler.RegisterRoutes(e)

	listen := ":8080"
	if config.Serve != nil && config.Serve.Listen != "" {
		listen = config.Serve.Listen
	}

	go func() {
		logger.Info("starting the cv-wizard api", zap.String("listen", listen), zap.String("version", version))
		if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutting down the server", zap.Error(err))
	}
	logger.Info("exiting", zap.String("reason", "signal received"))
}

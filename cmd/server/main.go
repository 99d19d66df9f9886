package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/dinehub/realtime/config"
	"github.com/dinehub/realtime/src/auth"
	"github.com/dinehub/realtime/src/hub"
	"github.com/dinehub/realtime/src/layer"
	"github.com/dinehub/realtime/src/router"
	"github.com/dinehub/realtime/src/server"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.FromEnv()
	if cfg.SigningKey == "" {
		logger.Fatal().Msg("SIGNING_KEY is required")
	}

	cl := layer.FromConfig(cfg, logger)
	defer cl.Close()

	h := hub.New(cl, logger)
	go h.Run()
	defer h.Stop()

	key := []byte(cfg.SigningKey)
	srv := server.New(
		cfg,
		auth.NewIssuer(key, cfg.TokenTTL),
		auth.NewAuthenticator(key),
		h,
		router.New(cl, logger),
		logger,
	)

	app := fiber.New()
	srv.RegisterRoutes(app)

	// The WebSocket upgrade needs the raw fasthttp ctx, so it is routed
	// ahead of the Fiber handler.
	wsHandler := srv.WSHandler()
	fiberHandler := app.Handler()
	handler := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == server.WSPath {
			wsHandler(ctx)
			return
		}
		fiberHandler(ctx)
	}

	httpServer := &fasthttp.Server{
		Handler:         handler,
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("shutting down")
		if err := httpServer.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := httpServer.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

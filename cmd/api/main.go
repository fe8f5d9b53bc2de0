package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/config"
	"github.com/voicedesk/backend/internal/handler"
	"github.com/voicedesk/backend/internal/logger"
	"github.com/voicedesk/backend/internal/service/ai"
	"github.com/voicedesk/backend/internal/service/conversation"
	"github.com/voicedesk/backend/internal/service/session"
	"github.com/voicedesk/backend/internal/service/ticket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if _, err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	if envErr != nil {
		log.Warn().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}

	responder := newResponder(ctx, cfg)

	publisher := newPublisher(ctx, cfg.Ticket)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	sessions := session.NewService(responder, session.WithPublisher(publisher))
	defer sessions.Close()

	router := handler.NewRouter(cfg.Server, sessions)

	startServer(ctx, cfg.Server, router)
}

// newResponder picks the completion responder when configured, falling back
// to the keyword engine on any setup problem.
func newResponder(ctx context.Context, cfg *config.Config) conversation.Responder {
	engine := conversation.NewEngine()
	if cfg.Responder.Mode != config.ResponderLLM {
		log.Info().Msg("using keyword responder")
		return engine
	}

	if !cfg.AI.Enabled() {
		log.Warn().Str("provider", cfg.AI.Provider).Msg("completion credentials missing, using keyword responder")
		return engine
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create chat model, using keyword responder")
		return engine
	}

	opts := []ai.Option{ai.WithEngine(engine), ai.WithTimeout(cfg.AI.Timeout)}
	if cfg.AI.PromptFile != "" {
		prompt, err := ai.LoadSystemPrompt(cfg.AI.PromptFile)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.AI.PromptFile).Msg("using default system prompt")
		} else {
			opts = append(opts, ai.WithSystemPrompt(prompt))
		}
	}

	responder, err := ai.NewResponder(ctx, chatModel, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize completion responder, using keyword responder")
		return engine
	}

	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("completion responder initialized")
	return responder
}

func newPublisher(ctx context.Context, cfg config.TicketConfig) ticket.Publisher {
	if cfg.RedisURL == "" {
		return ticket.NewLogPublisher(log.Logger)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	publisher, err := ticket.NewRedisPublisher(connectCtx, cfg.RedisURL, cfg.Channel)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, submitted tickets will only be logged")
		return ticket.NewLogPublisher(log.Logger)
	}

	log.Info().Msg("publishing submitted tickets to redis")
	return publisher
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("voice ticket backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

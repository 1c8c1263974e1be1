// Package server is the HTTP surface of the bot: the keep-alive endpoints
// the hosting platform polls, and an optional Telegram webhook ingress as an
// alternative to long polling.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
}

// New builds the HTTP server. updates, when non-nil, enables the
// POST /webhook ingress feeding decoded Telegram updates into the channel.
func New(logger *zap.SugaredLogger, cfg Config, updates chan<- tgbotapi.Update, opts ...Option) *Server {
	h := handler{
		logger:  logger,
		updates: updates,
	}

	mux := http.NewServeMux()
	mux.Handle("/", log(http.HandlerFunc(h.home), logger.Desugar()))
	mux.Handle("/health", log(http.HandlerFunc(h.health), logger.Desugar()))
	if updates != nil {
		mux.Handle("/webhook", log(enforcePostJson(http.HandlerFunc(h.webhook)), logger.Desugar()))
	}

	srv := &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:    cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10),
			Handler: mux,
		},
	}

	for _, opt := range opts {
		opt.apply(srv)
	}

	return srv
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}

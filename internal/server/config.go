package server

import (
	"time"
)

// Config defines fields used for parsing from environment variables
type Config struct {
	Host           string `env:"HOST" envDefault:"0.0.0.0"`
	Port           uint16 `env:"PORT" envDefault:"8000"`
	WebhookEnabled bool   `env:"WEBHOOK_ENABLED" envDefault:"false"`
}

type Option interface {
	apply(*Server)
}

type optionFunc func(s *Server)

func (f optionFunc) apply(s *Server) { f(s) }

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(s *Server) {
		s.httpServer.ReadTimeout = d
	})
}

// AfterShutdown registers a function to call after http.Server shutdown
// f will not be called in separated goroutine
func AfterShutdown(f func()) Option {
	return optionFunc(func(s *Server) {
		s.afterShutdown = append(s.afterShutdown, f)
	})
}

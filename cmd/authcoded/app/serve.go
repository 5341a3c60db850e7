package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"darlinggo.co/trout/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	yall "yall.in"
	"yall.in/colour"

	"lockbox.dev/authcode"
)

const (
	callbackPath           = "/callback"
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 30 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

// sessionStore is a SessionStore that can also start sessions.
type sessionStore interface {
	authcode.SessionStore
	Handler(next http.Handler) http.Handler
}

func newSessions(ctx context.Context, cfg Config) (sessionStore, func() error, error) {
	cookie := authcode.CookieOptions{Secure: cfg.CookieSecure}
	if cfg.RedisAddr == "" {
		return authcode.NewMemorySessions(cookie), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return authcode.NewRedisSessions(client, cfg.RedisPrefix, cfg.SessionTTL, cookie), client.Close, nil
}

// newServer builds the routes authcoded serves.
func newServer(cfg Config, log *yall.Logger, provider authcode.Provider, sessions sessionStore) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	h, err := authcode.New(provider, cfg.CallbackURL,
		authcode.WithLogger(log),
		authcode.WithSessions(sessions),
		authcode.WithRegisterer(registry),
	)
	if err != nil {
		return nil, err
	}
	h.AddAuthorities(cfg.Scopes...)
	if len(cfg.ExtraParams) > 0 {
		extra := authcode.Params{}
		for k, v := range cfg.ExtraParams {
			extra[k] = v
		}
		h.ExtraParams(extra)
	}

	router := &trout.Router{}
	if _, err := h.SetupCallback(router, callbackPath); err != nil {
		return nil, err
	}
	router.Endpoint("/").Methods(http.MethodGet).Handler(h.Protect(http.HandlerFunc(whoami)))
	router.Endpoint("/metrics").Methods(http.MethodGet).Handler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return sessions.Handler(router), nil
}

// whoami writes the identity of the logged in user.
func whoami(w http.ResponseWriter, r *http.Request) {
	identity := authcode.IdentityFromContext(r.Context())
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(identity); err != nil {
		yall.FromContext(r.Context()).WithError(err).Error("Error writing response")
	}
}

func runServe(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := yall.New(colour.New(os.Stderr, yall.Severity(cfg.LogLevel)))
	ctx = yall.InContext(ctx, log)

	provider, err := authcode.DiscoverOAuth2Provider(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return err
	}
	sessions, closeSessions, err := newSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSessions(); err != nil {
			log.WithError(err).Error("error closing session store")
		}
	}()

	handler, err := newServer(cfg, log, provider, sessions)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.Address).Info("server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shut down")
		return err
	}
	return nil
}

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	"custody/config"
	"custody/logs"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// servers HTTP/3 主服务、同端口的 TCP TLS 回退，以及可选的 metrics 端口
type servers struct {
	h3      *http3.Server
	tcp     *http.Server
	metrics *http.Server
	errc    chan error
}

func isServerClosedErr(err error) bool {
	return errors.Is(err, http.ErrServerClosed) || errors.Is(err, quic.ErrServerClosed)
}

func startServers(cfg *config.Config, handler, metricsHandler http.Handler) (*servers, error) {
	cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h3", "http/1.1"},
	}
	quicConfig := &quic.Config{
		KeepAlivePeriod: cfg.Server.QUICKeepAlivePeriod,
		MaxIdleTimeout:  cfg.Server.QUICMaxIdleTimeout,
	}

	s := &servers{errc: make(chan error, 3)}
	s.h3 = &http3.Server{
		Addr:       cfg.Server.Addr,
		Handler:    handler,
		TLSConfig:  tlsConfig,
		QUICConfig: quicConfig,
	}
	listener, err := quic.ListenAddr(cfg.Server.Addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("quic listen %s: %w", cfg.Server.Addr, err)
	}
	go func() {
		if err := s.h3.ServeListener(listener); err != nil && !isServerClosedErr(err) {
			s.errc <- fmt.Errorf("http3: %w", err)
		}
	}()
	logs.Info("[Server] HTTP/3 listening on %s", cfg.Server.Addr)

	s.tcp = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		ReadTimeout:  cfg.Server.HTTPTimeout,
		WriteTimeout: cfg.Server.HTTPTimeout,
	}
	go func() {
		if err := s.tcp.ListenAndServeTLS("", ""); err != nil && !isServerClosedErr(err) {
			s.errc <- fmt.Errorf("tls: %w", err)
		}
	}()

	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		s.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logs.Info("[Server] metrics listening on %s", cfg.Metrics.Addr)
			if err := s.metrics.ListenAndServe(); err != nil && !isServerClosedErr(err) {
				s.errc <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}
	return s, nil
}

func (s *servers) shutdown(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.h3.Shutdown(ctx); err != nil {
		logs.Warn("[Server] http3 shutdown: %v", err)
	}
	if err := s.tcp.Shutdown(ctx); err != nil {
		logs.Warn("[Server] tls shutdown: %v", err)
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			logs.Warn("[Server] metrics shutdown: %v", err)
		}
	}
}

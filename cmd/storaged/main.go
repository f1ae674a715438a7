package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"

	"github.com/babylonpiles/storaged/core/engine"
	"github.com/babylonpiles/storaged/core/registry"
	"github.com/babylonpiles/storaged/lib/logger"
)

var log, _ = logger.New("storaged")

type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port int    `envconfig:"SERVER_PORT" default:"8001"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalln("startup", "ERROR", err)
	}
}

func run() error {
	var serverCfg ServerConfig
	if err := envconfig.Process("storaged", &serverCfg); err != nil {
		return err
	}

	cfg, err := engine.GetConfig()
	if err != nil {
		log.Errorw("startup", "error", "config error")
		return err
	}

	eng, err := engine.New(*cfg, registry.StatfsProbe{})
	if err != nil {
		return err
	}
	defer eng.Close()

	storageAPI := NewStorageAPI(eng)
	rpc.Register(storageAPI)
	rpc.HandleHTTP()

	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed")
		return err
	}

	listenAddr := l.Addr().String()

	log.Infow("startup", "status", "storage rpc server started", "address", listenAddr)
	defer log.Infow("shutdown", "status", "storage rpc server stopped", "address", listenAddr)
	go http.Serve(l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// background monitors: drive scans, orphan reconciler, scrubber, janitor
	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Errorw("engine", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Infow("shutdown", "status", "storage rpc server stopping", "address", listenAddr)

	return nil
}

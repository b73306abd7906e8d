package main

import (
	"canvas-backend/internal/config"
	"canvas-backend/internal/database"
	"canvas-backend/internal/logx"
	"canvas-backend/internal/presence"
	"canvas-backend/internal/server"
)

func main() {
	cfg := config.Load()
	logx.Init(cfg.Log.Level, cfg.Log.Format)
	defer logx.Sync()

	db, err := database.ConnectDB()
	if err != nil {
		logx.L().Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		logx.L().Fatalf("database ping failed: %v", err)
	}
	logx.L().Info("database connected")

	var mirror *presence.Mirror
	if cfg.Redis.Enabled {
		mirror, err = presence.NewMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logx.L().Warnw("presence mirror unavailable, continuing without it", "error", err)
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}

	srv := server.New(cfg, db, mirror)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logx.L().Fatalf("server failed to start: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zaqqye/term_gateway_v1/internal/config"
	"github.com/zaqqye/term_gateway_v1/internal/database"
	"github.com/zaqqye/term_gateway_v1/internal/directory"
	"github.com/zaqqye/term_gateway_v1/internal/metric"
	"github.com/zaqqye/term_gateway_v1/internal/relay"
	"github.com/zaqqye/term_gateway_v1/internal/routes"
	"github.com/zaqqye/term_gateway_v1/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	if err := database.SeedDevices(db); err != nil {
		log.Fatalf("device seed failed: %v", err)
	}

	dir, err := directory.Load(db)
	if err != nil {
		log.Fatalf("device directory load failed: %v", err)
	}
	log.Printf("device directory loaded: %d entries", dir.Len())

	metrics := metric.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		log.Fatalf("metrics registration failed: %v", err)
	}

	var geo relay.Geocoder
	if cfg.GeocodeEndpoint != "" {
		geo = relay.NewHTTPGeocoder(cfg.GeocodeEndpoint)
	}
	rel := relay.New(relay.NewHTTPBackend(cfg.BackendEndpoint), geo, dir, db, cfg.FlushInterval(), metrics)
	go rel.Run(context.Background())

	gw := ws.NewGateway(rel, metrics, cfg.UploadPacing(), cfg.DedupWindow())

	r := gin.Default()
	routes.Register(r, gw, db, registry)

	log.Printf("gateway listening on :%s (flush every %s)", cfg.Port, cfg.FlushInterval())
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Println("server exited with error:", err)
		os.Exit(1)
	}
}

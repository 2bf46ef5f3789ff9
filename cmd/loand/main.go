package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftlend/config"
	"nftlend/crypto"
	"nftlend/native/custody"
	"nftlend/native/lending"
	"nftlend/native/registry"
	"nftlend/observability/metrics"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the protocol configuration file")
	listenAddr := flag.String("listen", ":9090", "address for the metrics and health endpoints")
	vaultAddr := flag.String("vault", "", "bech32 address of the collateral vault account")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *vaultAddr == "" {
		fmt.Fprintln(os.Stderr, "a vault address is required")
		os.Exit(1)
	}
	vault, err := crypto.DecodeAddress(*vaultAddr)
	if err != nil {
		log.Fatalf("Invalid vault address: %v", err)
	}

	currencies, collections, err := registry.FromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to build registries: %v", err)
	}

	engine := lending.NewEngine(vault, lending.ParamsFromConfig(cfg))
	engine.SetState(lending.NewMemoryState())
	engine.SetCustody(custody.NewLedger())
	engine.SetRegistries(currencies, collections)
	engine.SetPauses(cfg)
	engine.SetMetrics(metrics.Lending())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("loand listening on %s (config %s)", *listenAddr, *configPath)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

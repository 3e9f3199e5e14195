package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/aqib-ilyas/conflictlens/internal/api"
	"github.com/aqib-ilyas/conflictlens/internal/forecast"
	"github.com/aqib-ilyas/conflictlens/internal/ingest"
	"github.com/aqib-ilyas/conflictlens/internal/store"
)

var cli struct {
	DB      string `help:"Path to the SQLite database." default:"data/conflictlens.db" env:"CONFLICTLENS_DB"`
	Port    string `help:"HTTP server port." default:"8080" env:"CONFLICTLENS_PORT"`
	DataDir string `help:"Directory holding the source CSV files." default:"data" env:"CONFLICTLENS_DATA_DIR"`

	Fetch        bool   `help:"Download missing source files before loading." env:"CONFLICTLENS_FETCH"`
	FetchBaseURL string `help:"HTTPS base URL for source file downloads." env:"CONFLICTLENS_FETCH_BASE_URL"`
	FetchFTPHost string `help:"FTP host (host:port) for source file downloads." env:"CONFLICTLENS_FETCH_FTP_HOST"`
	FetchFTPDir  string `help:"Remote FTP directory holding the source files." env:"CONFLICTLENS_FETCH_FTP_DIR"`

	LoadOnly bool `help:"Load the data and exit without serving." env:"CONFLICTLENS_LOAD_ONLY"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("conflictlens"),
		kong.Description("Forecast enrichment service for gridded conflict predictions."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	if cli.Fetch {
		ingest.NewFetcher(cli.DataDir, cli.FetchBaseURL, cli.FetchFTPHost, cli.FetchFTPDir).FetchAll()
	}

	if err := ingest.NewLoader(st, cli.DataDir).Load(); err != nil {
		log.Fatalf("load data: %v", err)
	}

	if cli.LoadOnly {
		log.Println("data loaded, exiting")
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := forecast.NewEnricher(st)
	server := api.NewServer(st, engine, cli.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("shutdown complete")
}

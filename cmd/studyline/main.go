package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/StudyLine/internal/api"
	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/delivery"
	"github.com/BTreeMap/StudyLine/internal/engine"
	"github.com/BTreeMap/StudyLine/internal/livechat"
	"github.com/BTreeMap/StudyLine/internal/lockfile"
	"github.com/BTreeMap/StudyLine/internal/messaging"
	"github.com/BTreeMap/StudyLine/internal/services"
	"github.com/BTreeMap/StudyLine/internal/twiliowhatsapp"
	"github.com/BTreeMap/StudyLine/internal/util"
	"github.com/BTreeMap/StudyLine/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StudyLine state data
	DefaultStateDir = "/var/lib/studyline"
	// DefaultDBFileName is the default SQLite database filename for the WhatsApp session
	DefaultDBFileName = "studyline.db"
	// BackendWhatsmeow runs the live whatsmeow connection (default)
	BackendWhatsmeow = "whatsmeow"
	// BackendTwilio runs the Twilio REST API with HTTP webhook ingress
	BackendTwilio = "twilio"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping StudyLine with configured modules")
	if err := run(flags, config); err != nil {
		slog.Error("StudyLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StudyLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	Backend        string
	WhatsAppDSN    string
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	IdleTTL        time.Duration
	TierTimeout    time.Duration
	PaymentBaseURL string
	PriceCents     int
}

// Flags holds command line flag values
type Flags struct {
	backend  *string
	qrOutput *string
	numeric  *bool
	stateDir *string
	dbDSN    *string
	apiAddr  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Backend:        os.Getenv("MESSAGING_BACKEND"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("STUDYLINE_STATE_DIR"),
		APIAddr:        os.Getenv("API_ADDR"),
		IdleTTL:        util.ParseDurationEnv("CONVERSATION_IDLE_TTL", 0),
		TierTimeout:    util.ParseDurationEnv("DELIVERY_TIER_TIMEOUT", 0),
		PaymentBaseURL: os.Getenv("PAYMENT_LINK_BASE_URL"),
		PriceCents:     util.ParseIntEnv("SUBSCRIPTION_PRICE_CENTS", 0),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STUDYLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to WhatsApp DSN if specific not set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	if config.Backend == "" {
		config.Backend = BackendWhatsmeow
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_BACKEND", config.Backend,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"STUDYLINE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"CONVERSATION_IDLE_TTL", config.IdleTTL,
		"DELIVERY_TIER_TIMEOUT", config.TierTimeout,
		"SUBSCRIPTION_PRICE_CENTS", config.PriceCents)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backend:  flag.String("backend", config.Backend, "messaging backend: whatsmeow or twilio (overrides $MESSAGING_BACKEND)"),
		qrOutput: flag.String("qr-output", "", "path to write login QR code"),
		numeric:  flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir: flag.String("state-dir", config.StateDir, "state directory for StudyLine data (overrides $STUDYLINE_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"backend", *flags.backend,
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags, config Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// One instance per state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Conversation store with optional idle-reset sweep
	var storeOpts []convstore.Option
	if config.IdleTTL > 0 {
		storeOpts = append(storeOpts, convstore.WithIdleTTL(config.IdleTTL))
	}
	convStore := convstore.NewInMemoryStore(storeOpts...)
	convStore.StartJanitor(ctx)

	// Messaging backend. The webhook handler stays nil for backends that
	// produce events without HTTP ingress.
	var (
		transport  messaging.Transport
		apiWebhook http.HandlerFunc
	)
	switch *flags.backend {
	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		tw := messaging.NewTwilioTransport(client)
		transport = tw
		apiWebhook = tw.WebhookHandler
		slog.Info("Messaging backend configured", "backend", BackendTwilio)

	case BackendWhatsmeow:
		var waOpts []whatsapp.Option
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		if *flags.dbDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		transport = messaging.NewWhatsAppTransport(client)
		slog.Info("Messaging backend configured", "backend", BackendWhatsmeow)

	default:
		return fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}

	// Delivery orchestrator with optional per-tier timeout
	var deliveryOpts []delivery.Option
	if config.TierTimeout > 0 {
		deliveryOpts = append(deliveryOpts, delivery.WithTierTimeout(config.TierTimeout))
	}
	orchestrator := delivery.NewOrchestrator(transport, deliveryOpts...)

	// Collaborator services. Student and homework records persist in the
	// same database the WhatsApp session uses; the in-memory fallback only
	// triggers when the database cannot be opened.
	var (
		students services.StudentDirectory
		homework services.HomeworkDesk
	)
	if whatsapp.DetectDSNType(*flags.dbDSN) == "postgres" {
		svcs, err := services.NewPostgresServices(services.WithDSN(*flags.dbDSN))
		if err != nil {
			return fmt.Errorf("failed to open PostgreSQL services: %w", err)
		}
		defer svcs.Close()
		students, homework = svcs.Directory, svcs.Desk
	} else {
		svcs, err := services.NewSQLiteServices(services.WithDSN(*flags.dbDSN))
		if err != nil {
			slog.Warn("Falling back to in-memory services", "error", err)
			students = services.NewInMemoryDirectory()
			homework = services.NewInMemoryDesk()
		} else {
			defer svcs.Close()
			students, homework = svcs.Directory, svcs.Desk
		}
	}
	payments := services.NewStaticGateway(config.PaymentBaseURL)

	// Conversation engine
	var engineOpts []engine.Option
	if config.PriceCents > 0 {
		engineOpts = append(engineOpts, engine.WithPriceCents(config.PriceCents))
	}
	eng := engine.New(convStore, orchestrator, students, homework, payments, engineOpts...)

	// Live-chat bridge and event routing
	bridge := livechat.NewBridge(convStore, eng)
	router := messaging.NewRouter(transport, eng)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging transport: %w", err)
	}
	router.Start(ctx)

	// HTTP surface
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(convStore, bridge, apiWebhook, apiOpts...)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, draining")

	if err := server.Stop(); err != nil {
		slog.Error("API server shutdown error", "error", err)
	}
	if err := transport.Stop(); err != nil {
		slog.Error("Transport shutdown error", "error", err)
	}
	return nil
}

// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in StudyLine.
//
// It provides methods for sending text and interactive button messages,
// downloading media, and exposing the underlying client for event handling.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/util"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow session SQLite database
	DefaultSQLitePath = "/var/lib/studyline/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Sender is the outbound WhatsApp surface (for production and testing).
type Sender interface {
	SendText(ctx context.Context, to string, body string) error
	SendButtons(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput instructs the client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode instructs the client to use a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// DetectDSNType classifies a database connection string as "postgres" or "sqlite3".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client

	// media maps opaque refs to downloadable image payloads captured from
	// inbound events. Entries live as long as the process; refs are only
	// meaningful within one conversation turn.
	mediaMu sync.Mutex
	media   map[string]*waE2E.ImageMessage
}

// NewClient creates a new WhatsApp client, applying any provided options.
// It initializes the whatsmeow session store, logging in via QR or numeric
// code if no session exists yet.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := DetectDSNType(dbDSN)
	if dbDriver == "sqlite3" {
		// whatsmeow strongly recommends foreign keys on SQLite sessions.
		if !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"Consider adding '?_foreign_keys=on' to your connection string.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver, "dsn_set", dbDSN != "")
	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				slog.Debug("WhatsApp login event code received")
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient, media: make(map[string]*waE2E.ImageMessage)}, nil
}

// SendText sends a plain WhatsApp text message to the specified recipient.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	if err := c.checkSendable(to, body); err != nil {
		return err
	}

	slog.Debug("Sending WhatsApp text message", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp text message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendButtons sends an interactive button message. The button ids come back
// verbatim in the ButtonsResponseMessage of the user's reply.
func (c *Client) SendButtons(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	if err := c.checkSendable(to, body); err != nil {
		return err
	}
	if len(buttons) == 0 {
		return fmt.Errorf("no buttons provided for interactive message to %s", to)
	}

	waButtons := make([]*waE2E.ButtonsMessage_Button, 0, len(buttons))
	for _, b := range buttons {
		waButtons = append(waButtons, &waE2E.ButtonsMessage_Button{
			ButtonID: proto.String(b.ID),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{
				DisplayText: proto.String(b.Label),
			},
			Type: waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}

	slog.Debug("Sending WhatsApp interactive message", "to", to, "buttons", len(buttons))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{
		ButtonsMessage: &waE2E.ButtonsMessage{
			ContentText: proto.String(body),
			Buttons:     waButtons,
			HeaderType:  waE2E.ButtonsMessage_EMPTY.Enum(),
		},
	}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp interactive message", "error", err, "to", to)
		return fmt.Errorf("failed to send interactive message to %s: %w", to, err)
	}
	return nil
}

// RegisterMedia captures an inbound image payload and returns an opaque ref
// that DownloadMedia resolves later.
func (c *Client) RegisterMedia(img *waE2E.ImageMessage) string {
	ref := util.GenerateMediaRef()
	c.mediaMu.Lock()
	c.media[ref] = img
	c.mediaMu.Unlock()
	slog.Debug("WhatsApp media registered", "ref", ref)
	return ref
}

// DownloadMedia downloads the bytes behind a previously registered media ref.
func (c *Client) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	c.mediaMu.Lock()
	img, ok := c.media[ref]
	c.mediaMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown media reference %q", ref)
	}

	data, err := c.waClient.Download(ctx, img)
	if err != nil {
		slog.Error("Failed to download WhatsApp media", "error", err, "ref", ref)
		return nil, fmt.Errorf("failed to download media %s: %w", ref, err)
	}
	return data, nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the WhatsApp connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

func (c *Client) checkSendable(to, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	return nil
}

// MockClient implements Sender but records instead of sending (for tests).
type MockClient struct {
	mu       sync.Mutex
	Texts    []MockSend
	Buttons  []MockSend
	Media    map[string][]byte
	TextErr  error
	BtnErr   error
	MediaErr error
}

// MockSend is one recorded outbound message.
type MockSend struct {
	To      string
	Body    string
	Buttons []models.ButtonSpec
}

// NewMockClient creates an empty mock sender.
func NewMockClient() *MockClient {
	return &MockClient{Media: make(map[string][]byte)}
}

func (m *MockClient) SendText(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TextErr != nil {
		return m.TextErr
	}
	m.Texts = append(m.Texts, MockSend{To: to, Body: body})
	return nil
}

func (m *MockClient) SendButtons(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BtnErr != nil {
		return m.BtnErr
	}
	m.Buttons = append(m.Buttons, MockSend{To: to, Body: body, Buttons: buttons})
	return nil
}

func (m *MockClient) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MediaErr != nil {
		return nil, m.MediaErr
	}
	if data, ok := m.Media[ref]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("unknown media reference %q", ref)
}

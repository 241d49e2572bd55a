// Package services defines the business collaborators consumed by the
// conversation engine.
//
// The engine only calls these contracts and relays their return values into
// response text; persistence of students, homework, and payments lives behind
// them and is out of scope here. The in-memory implementations exist for
// wiring and tests.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/google/uuid"
)

// StudentDirectory manages student records keyed by identity.
type StudentDirectory interface {
	Create(ctx context.Context, identity string, fields models.RegistrationFields) error
	Get(ctx context.Context, identity string) (*models.RegistrationFields, error)
}

// HomeworkDesk accepts homework submissions and returns a reference id.
type HomeworkDesk interface {
	Create(ctx context.Context, identity, subject, kind, contentOrRef string) (string, error)
}

// PaymentGateway produces payment links.
type PaymentGateway interface {
	CreateLink(ctx context.Context, identity string, amountCents int) (string, error)
}

// InMemoryDirectory is a map-backed StudentDirectory.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	students map[string]models.RegistrationFields
}

// NewInMemoryDirectory creates an empty student directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{students: make(map[string]models.RegistrationFields)}
}

// Create stores the student's registration fields.
func (d *InMemoryDirectory) Create(ctx context.Context, identity string, fields models.RegistrationFields) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[identity] = fields
	slog.Info("StudentDirectory created student", "identity", identity, "name", fields.Name)
	return nil
}

// Get returns the student's registration fields, or nil if unknown.
func (d *InMemoryDirectory) Get(ctx context.Context, identity string) (*models.RegistrationFields, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if fields, ok := d.students[identity]; ok {
		cp := fields
		return &cp, nil
	}
	return nil, nil
}

// InMemoryDesk is a HomeworkDesk that records submissions and mints uuid
// reference ids.
type InMemoryDesk struct {
	mu          sync.Mutex
	submissions map[string]Submission
}

// Submission is one recorded homework submission.
type Submission struct {
	Identity string
	Subject  string
	Kind     string
	Content  string
}

// NewInMemoryDesk creates an empty homework desk.
func NewInMemoryDesk() *InMemoryDesk {
	return &InMemoryDesk{submissions: make(map[string]Submission)}
}

// Create records the submission and returns its reference id.
func (d *InMemoryDesk) Create(ctx context.Context, identity, subject, kind, contentOrRef string) (string, error) {
	if identity == "" {
		return "", models.ErrEmptyIdentity
	}
	ref := "hw_" + uuid.NewString()[:8]
	d.mu.Lock()
	d.submissions[ref] = Submission{Identity: identity, Subject: subject, Kind: kind, Content: contentOrRef}
	d.mu.Unlock()
	slog.Info("HomeworkDesk recorded submission", "identity", identity, "subject", subject, "kind", kind, "ref", ref)
	return ref, nil
}

// StaticGateway is a PaymentGateway that mints tokenized links against a
// fixed base URL.
type StaticGateway struct {
	baseURL string
}

// NewStaticGateway creates a gateway issuing links under baseURL.
func NewStaticGateway(baseURL string) *StaticGateway {
	if baseURL == "" {
		baseURL = "https://pay.studyline.example"
	}
	return &StaticGateway{baseURL: baseURL}
}

// CreateLink returns a unique payment link for the identity and amount.
func (g *StaticGateway) CreateLink(ctx context.Context, identity string, amountCents int) (string, error) {
	if identity == "" {
		return "", models.ErrEmptyIdentity
	}
	link := fmt.Sprintf("%s/checkout/%s?amount=%d", g.baseURL, uuid.NewString(), amountCents)
	slog.Debug("PaymentGateway created link", "identity", identity, "amount_cents", amountCents)
	return link, nil
}

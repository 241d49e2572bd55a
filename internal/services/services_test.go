package services

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BTreeMap/StudyLine/internal/models"
)

func TestInMemoryDirectoryRoundTrip(t *testing.T) {
	d := NewInMemoryDirectory()
	ctx := context.Background()

	got, err := d.Get(ctx, "+15551234567")
	if err != nil || got != nil {
		t.Fatalf("unknown student should be nil, got %v err %v", got, err)
	}

	fields := models.RegistrationFields{Name: "Jane", Email: "jane@example.com", Class: "Grade 10"}
	if err := d.Create(ctx, "+15551234567", fields); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err = d.Get(ctx, "+15551234567")
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != fields {
		t.Errorf("stored fields differ: %+v", got)
	}

	if err := d.Create(ctx, "", fields); err != models.ErrEmptyIdentity {
		t.Errorf("empty identity should be rejected, got %v", err)
	}
}

func TestInMemoryDeskMintsDistinctRefs(t *testing.T) {
	d := NewInMemoryDesk()
	ctx := context.Background()

	ref1, err := d.Create(ctx, "+15551234567", "Math", "text", "answer one")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ref2, err := d.Create(ctx, "+15551234567", "Math", "text", "answer two")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !strings.HasPrefix(ref1, "hw_") || !strings.HasPrefix(ref2, "hw_") {
		t.Errorf("refs should be hw_ prefixed: %s %s", ref1, ref2)
	}
	if ref1 == ref2 {
		t.Error("submission refs must be unique")
	}
}

func TestStaticGatewayLinks(t *testing.T) {
	g := NewStaticGateway("https://pay.example.org")
	link, err := g.CreateLink(context.Background(), "+15551234567", 2500)
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if !strings.HasPrefix(link, "https://pay.example.org/checkout/") {
		t.Errorf("link should use the configured base, got %s", link)
	}
	if !strings.Contains(link, "amount=2500") {
		t.Errorf("link should carry the amount, got %s", link)
	}

	other, _ := g.CreateLink(context.Background(), "+15551234567", 2500)
	if other == link {
		t.Error("links should be uniquely tokenized")
	}
}

func TestSQLiteServicesRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "services.db")
	svcs, err := NewSQLiteServices(WithDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteServices failed: %v", err)
	}
	defer svcs.Close()

	ctx := context.Background()
	fields := models.RegistrationFields{Name: "Omar", Email: "omar@example.com", Class: "Grade 9"}
	if err := svcs.Directory.Create(ctx, "+15557654321", fields); err != nil {
		t.Fatalf("directory Create failed: %v", err)
	}

	got, err := svcs.Directory.Get(ctx, "+15557654321")
	if err != nil || got == nil {
		t.Fatalf("directory Get failed: %v", err)
	}
	if *got != fields {
		t.Errorf("stored fields differ: %+v", got)
	}

	if got, _ := svcs.Directory.Get(ctx, "+10000000000"); got != nil {
		t.Errorf("unknown student should be nil, got %+v", got)
	}

	ref, err := svcs.Desk.Create(ctx, "+15557654321", "Biology", "image", "media_abc")
	if err != nil {
		t.Fatalf("desk Create failed: %v", err)
	}
	if !strings.HasPrefix(ref, "hw_") {
		t.Errorf("ref should be hw_ prefixed, got %s", ref)
	}

	// Re-registering updates in place.
	fields.Class = "Grade 10"
	if err := svcs.Directory.Create(ctx, "+15557654321", fields); err != nil {
		t.Fatalf("directory upsert failed: %v", err)
	}
	got, _ = svcs.Directory.Get(ctx, "+15557654321")
	if got.Class != "Grade 10" {
		t.Errorf("upsert should replace fields, got %+v", got)
	}
}

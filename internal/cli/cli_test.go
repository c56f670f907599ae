package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/me/mudd/internal/clock"
	"github.com/me/mudd/internal/config"
	"github.com/me/mudd/internal/driver"
	"github.com/me/mudd/internal/object"
	"github.com/me/mudd/internal/server"
	"github.com/me/mudd/pkg/model"
)

// startTestServer starts an API server over an in-memory driver and
// returns its URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := object.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.MaxCallouts = 8
	d, err := driver.New(cfg, st, clock.NewManual(1_600_000_000, 0), logger)
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}

	ts := httptest.NewServer(server.New(d, logger).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func testClient(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(startTestServer(t), logger)
}

func TestClientScheduleRoundTrip(t *testing.T) {
	c := testClient(t)

	if _, err := c.Post("/api/v1/objects/", map[string]any{
		"name": "gong", "source": "function strike() {}",
	}); err != nil {
		t.Fatalf("create object: %v", err)
	}

	resp, err := c.Post("/api/v1/callouts/", model.ScheduleRequest{
		Object: "gong", Method: "strike", DelaySec: 10,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	var res model.ScheduleResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("parse schedule result: %v", err)
	}
	if res.Handle == 0 {
		t.Fatal("schedule returned handle 0")
	}

	resp, err = c.Get("/api/v1/callouts/")
	if err != nil {
		t.Fatalf("list callouts: %v", err)
	}
	var cos []model.CalloutView
	if err := json.Unmarshal(resp.Data, &cos); err != nil {
		t.Fatalf("parse callouts: %v", err)
	}
	if len(cos) != 1 || cos[0].Method != "strike" {
		t.Fatalf("callouts = %+v", cos)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c := testClient(t)

	_, err := c.Post("/api/v1/callouts/", model.ScheduleRequest{
		Object: "ghost", Method: "boo",
	})
	if err == nil {
		t.Fatal("schedule on unknown object did not fail")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("err = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrNotFound {
		t.Fatalf("code = %q, want NOT_FOUND", apiErr.Code)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"status", "callouts", "schedule", "cancel", "objects", "snapshot"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing %q", name)
		}
	}
}

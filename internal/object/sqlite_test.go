package object

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/me/mudd/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestObjectCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	obj := &model.Object{
		Name:   "wizard",
		Source: `function greet(who) { return "hello " + who; }`,
	}
	if err := st.CreateObject(ctx, obj); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if obj.ID == 0 {
		t.Fatal("CreateObject did not assign an id")
	}
	if obj.GUID == "" {
		t.Fatal("CreateObject did not assign a guid")
	}

	got, err := st.GetObject(ctx, obj.ID)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got == nil || got.Name != "wizard" || got.Source != obj.Source {
		t.Fatalf("GetObject = %+v", got)
	}

	byName, err := st.GetObjectByName(ctx, "wizard")
	if err != nil {
		t.Fatalf("GetObjectByName: %v", err)
	}
	if byName == nil || byName.ID != obj.ID {
		t.Fatalf("GetObjectByName = %+v", byName)
	}

	missing, err := st.GetObjectByName(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetObjectByName(missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("GetObjectByName(missing) = %+v, want nil", missing)
	}

	n, err := st.CountObjects(ctx)
	if err != nil {
		t.Fatalf("CountObjects: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountObjects = %d, want 1", n)
	}
}

func TestNextHandleSkipsZero(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	obj := &model.Object{Name: "clock", Source: "function tick() {}"}
	if err := st.CreateObject(ctx, obj); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	h1, err := st.NextHandle(ctx, obj.ID)
	if err != nil {
		t.Fatalf("NextHandle: %v", err)
	}
	h2, err := st.NextHandle(ctx, obj.ID)
	if err != nil {
		t.Fatalf("NextHandle: %v", err)
	}
	if h1 != 1 || h2 != 2 {
		t.Fatalf("handles = %d, %d, want 1, 2", h1, h2)
	}

	if _, err := st.NextHandle(ctx, 999); err == nil {
		t.Fatal("NextHandle for unknown object did not fail")
	}
}

func TestCalloutDataspace(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	obj := &model.Object{Name: "door", Source: "function close() {}"}
	if err := st.CreateObject(ctx, obj); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	rec := &model.CalloutRecord{
		ObjectID: obj.ID,
		Handle:   1,
		Method:   "close",
		Args:     []any{"slam", float64(3)},
		Stored:   0xbeef,
	}
	if err := st.PutCallout(ctx, rec); err != nil {
		t.Fatalf("PutCallout: %v", err)
	}

	got, err := st.GetCallout(ctx, obj.ID, 1)
	if err != nil {
		t.Fatalf("GetCallout: %v", err)
	}
	if got == nil || got.Method != "close" || got.Stored != 0xbeef {
		t.Fatalf("GetCallout = %+v", got)
	}
	if len(got.Args) != 2 || got.Args[0] != "slam" {
		t.Fatalf("Args = %v", got.Args)
	}

	all, err := st.ListCallouts(ctx)
	if err != nil {
		t.Fatalf("ListCallouts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListCallouts = %d records, want 1", len(all))
	}

	if err := st.DeleteCallout(ctx, obj.ID, 1); err != nil {
		t.Fatalf("DeleteCallout: %v", err)
	}
	gone, err := st.GetCallout(ctx, obj.ID, 1)
	if err != nil {
		t.Fatalf("GetCallout after delete: %v", err)
	}
	if gone != nil {
		t.Fatalf("GetCallout after delete = %+v, want nil", gone)
	}
}

func TestDeleteAllCallouts(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	obj := &model.Object{Name: "lamp", Source: "function dim() {}"}
	if err := st.CreateObject(ctx, obj); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	for h := uint16(1); h <= 3; h++ {
		rec := &model.CalloutRecord{ObjectID: obj.ID, Handle: h, Method: "dim"}
		if err := st.PutCallout(ctx, rec); err != nil {
			t.Fatalf("PutCallout: %v", err)
		}
	}

	n, err := st.DeleteAllCallouts(ctx)
	if err != nil {
		t.Fatalf("DeleteAllCallouts: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted %d records, want 3", n)
	}
	all, err := st.ListCallouts(ctx)
	if err != nil {
		t.Fatalf("ListCallouts: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ListCallouts = %d records, want 0", len(all))
	}
}

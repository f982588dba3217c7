package dashboard

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/akuafrica/jobrunr/internal/store"
)

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var n NewVersionNotification
	found, err := m.Load(ctx, &n)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Fatal("Expected no notification on a fresh store")
	}

	if err := m.Notify(ctx, NewVersionNotification{LatestVersion: "7.1.0"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if err := m.Notify(ctx, NewVersionNotification{LatestVersion: "7.2.0"}); err != nil {
		t.Fatalf("Notify (replace) failed: %v", err)
	}

	found, err = m.Load(ctx, &n)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found || n.LatestVersion != "7.2.0" {
		t.Errorf("Expected replaced notification 7.2.0, got found=%v %+v", found, n)
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Type != models.NotificationNewVersion {
		t.Errorf("Unexpected notification list: %+v", list)
	}

	if err := m.Delete(ctx, models.NotificationNewVersion); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	found, _ = m.Load(ctx, &NewVersionNotification{})
	if found {
		t.Error("Expected notification to be deleted")
	}
}

func newTestManager(t *testing.T) *Manager {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st)
}

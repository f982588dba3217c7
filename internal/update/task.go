package update

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/akuafrica/jobrunr/internal/dashboard"
	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/rs/zerolog"
)

// NotificationManager is the part of the dashboard the check task writes to.
type NotificationManager interface {
	Load(ctx context.Context, n dashboard.Notification) (bool, error)
	Notify(ctx context.Context, n dashboard.Notification) error
	Delete(ctx context.Context, typ models.NotificationType) error
}

// StorageProvider supplies the anonymous usage data sent with a check.
type StorageProvider interface {
	GetMetadata(ctx context.Context, name, owner string) (*models.Metadata, error)
	GetJobStats(ctx context.Context) (models.JobStats, error)
}

// TaskOption configures a CheckForNewVersionTask.
type TaskOption func(*CheckForNewVersionTask)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) TaskOption {
	return func(t *CheckForNewVersionTask) {
		if f != nil {
			t.fetcher = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) TaskOption {
	return func(t *CheckForNewVersionTask) { t.log = log }
}

// WithCurrentVersion replaces the source of the running version.
func WithCurrentVersion(fn func() string) TaskOption {
	return func(t *CheckForNewVersionTask) {
		if fn != nil {
			t.currentVersion = fn
		}
	}
}

// CheckForNewVersionTask is the recurring new-version check of a server.
//
// The first invocation after construction never touches the network; it only
// removes a new-version notification that the running version has caught up
// with. Every later invocation asks the version service and creates, replaces
// or removes the notification. A failed check is logged and leaves the
// notification alone.
type CheckForNewVersionTask struct {
	notifications           NotificationManager
	storage                 StorageProvider
	fetcher                 Fetcher
	currentVersion          func() string
	allowAnonymousDataUsage bool
	log                     zerolog.Logger

	mu       sync.Mutex
	firstRun atomic.Bool
}

// NewCheckForNewVersionTask creates the task. allowAnonymousDataUsage is fixed
// for the task's lifetime.
func NewCheckForNewVersionTask(notifications NotificationManager, storage StorageProvider, allowAnonymousDataUsage bool, opts ...TaskOption) *CheckForNewVersionTask {
	t := &CheckForNewVersionTask{
		notifications:           notifications,
		storage:                 storage,
		currentVersion:          CurrentVersion,
		allowAnonymousDataUsage: allowAnonymousDataUsage,
		log:                     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.fetcher == nil {
		t.fetcher = NewHTTPFetcher()
	}
	t.firstRun.Store(true)
	return t
}

// FirstRun reports whether the next invocation is the first one.
func (t *CheckForNewVersionTask) FirstRun() bool {
	return t.firstRun.Load()
}

// Run performs one check. Failures to reach the version service are logged
// and swallowed; only storage failures are returned.
func (t *CheckForNewVersionTask) Run(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.firstRun.Store(false)

	if t.firstRun.Load() {
		return t.reconcile(ctx)
	}
	return t.check(ctx)
}

// reconcile drops a stale notification left from before an upgrade.
func (t *CheckForNewVersionTask) reconcile(ctx context.Context) error {
	var n dashboard.NewVersionNotification
	found, err := t.notifications.Load(ctx, &n)
	if err != nil || !found {
		return err
	}
	actual := NewVersionNumber(t.currentVersion())
	latest := NewVersionNumber(n.LatestVersion)
	if actual.Equal(latest) {
		return t.notifications.Delete(ctx, n.Type())
	}
	return nil
}

func (t *CheckForNewVersionTask) check(ctx context.Context) error {
	current := t.currentVersion()

	telemetry, err := t.telemetry(ctx)
	if err != nil {
		return err
	}

	fetched, err := t.fetcher.LatestVersion(ctx, current, telemetry)
	if err != nil {
		t.log.Info().Err(err).Msg("Unable to check for new JobRunr version")
		return nil
	}

	latest := NewVersionNumber(fetched)
	if latest.Compare(NewVersionNumber(current)) > 0 {
		if err := t.notifications.Notify(ctx, dashboard.NewVersionNotification{LatestVersion: latest.Complete()}); err != nil {
			return err
		}
		t.log.Info().Str("version", latest.Complete()).Msgf("JobRunr version %s is available.", latest.Complete())
		return nil
	}
	return t.notifications.Delete(ctx, models.NotificationNewVersion)
}

func (t *CheckForNewVersionTask) telemetry(ctx context.Context) (*Telemetry, error) {
	if !t.allowAnonymousDataUsage {
		return nil, nil
	}
	id, err := t.storage.GetMetadata(ctx, models.MetadataClusterID, models.MetadataOwnerCluster)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("cluster id metadata not found")
	}
	stats, err := t.storage.GetJobStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Telemetry{ClusterID: id.Value, SucceededJobCount: stats.AllTimeSucceeded}, nil
}

// resetFirstRun re-arms the first-run behaviour between tests.
func (t *CheckForNewVersionTask) resetFirstRun() {
	t.firstRun.Store(true)
}

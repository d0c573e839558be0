package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ouptel/ouptel-admin/internal/jobs"
	"github.com/ouptel/ouptel-admin/internal/settings"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettingsWarmup pre-loads setting groups into the Redis cache.
	TaskSettingsWarmup = "settings:warmup"
	// TaskSessionsPrune removes expired admin session records.
	TaskSessionsPrune = "sessions:prune"
	// TaskAuditRetention deletes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// SettingsWarmupPayload lists the setting groups to warm. An empty list
// warms every known group.
type SettingsWarmupPayload struct {
	Groups []string `json:"groups"`
}

// AuditRetentionPayload carries the retention window in hours.
type AuditRetentionPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSettingsWarmupTask constructs a settings warmup task.
func NewSettingsWarmupTask(payload SettingsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettingsWarmup, data), nil
}

// NewSessionsPruneTask constructs a session prune task.
func NewSessionsPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPrune, nil)
}

// NewAuditRetentionTask constructs an audit retention task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// SettingsWarmer loads a setting group, priming any cache along the way.
type SettingsWarmer interface {
	GetGroup(ctx context.Context, group string) map[string]string
}

// SessionPruner deletes expired session records.
type SessionPruner interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner deletes audit entries older than the cutoff.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tasks bundles the dependencies job handlers need.
type Tasks struct {
	Settings SettingsWarmer
	Sessions SessionPruner
	Audit    AuditPruner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// HandleSettingsWarmup processes TaskSettingsWarmup tasks.
func (t *Tasks) HandleSettingsWarmup(ctx context.Context, task *asynq.Task) error {
	tracker := t.Metrics.Track(TaskSettingsWarmup)
	var payload SettingsWarmupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}
	groups := payload.Groups
	if len(groups) == 0 {
		groups = settings.KnownGroups()
	}
	for _, group := range groups {
		values := t.Settings.GetGroup(ctx, group)
		t.Logger.Debug("warmed settings group",
			slog.String("group", group),
			slog.Int("keys", len(values)))
	}
	return tracker.End(nil)
}

// HandleSessionsPrune processes TaskSessionsPrune tasks.
func (t *Tasks) HandleSessionsPrune(ctx context.Context, task *asynq.Task) error {
	tracker := t.Metrics.Track(TaskSessionsPrune)
	deleted, err := t.Sessions.DeleteExpiredSessions(ctx, time.Now())
	if err != nil {
		return tracker.End(err)
	}
	t.Logger.Info("pruned expired sessions", slog.Int64("deleted", deleted))
	return tracker.End(nil)
}

// HandleAuditRetention processes TaskAuditRetention tasks.
func (t *Tasks) HandleAuditRetention(ctx context.Context, task *asynq.Task) error {
	tracker := t.Metrics.Track(TaskAuditRetention)
	var payload AuditRetentionPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 90 * 24
	}
	cutoff := time.Now().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	deleted, err := t.Audit.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	t.Logger.Info("applied audit retention",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted))
	return tracker.End(nil)
}

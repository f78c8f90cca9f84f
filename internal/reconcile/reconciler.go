// Package reconcile rebuilds mirrored song counters from ledger event truth.
// The mirror is a cache; this job makes drift bounded by the schedule
// interval instead of permanent.
package reconcile

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/tunevault/service_layer/internal/domain/saga"
	"github.com/tunevault/service_layer/internal/ledger"
	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/internal/mirror"
	"github.com/tunevault/service_layer/pkg/logger"
)

const (
	checkpointID = "reconcile:events"
	pageSize     = 100
	runTimeout   = 45 * time.Second
)

// EventSource pages ledger events for the deployed package.
type EventSource interface {
	QueryEvents(ctx context.Context, packageID, cursor string, limit int) (json.RawMessage, error)
}

// Reconciler periodically replays token transfer events into the song mirror.
type Reconciler struct {
	source    EventSource
	packageID string
	songs     mirror.SongStore
	sagas     mirror.SagaStore
	retry     ledger.RetryConfig
	cron      *cron.Cron
	log       *logger.Logger
}

// New constructs a reconciler over the given event source and stores.
func New(source EventSource, packageID string, songs mirror.SongStore, sagas mirror.SagaStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconcile")
	}
	return &Reconciler{
		source:    source,
		packageID: packageID,
		songs:     songs,
		sagas:     sagas,
		retry:     ledger.DefaultRetryConfig(),
		log:       log,
	}
}

// Start schedules runs at the given cron expression and begins the scheduler.
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := r.Run(ctx); err != nil {
			r.log.WithError(err).Error("reconcile run failed")
		}
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.Infof("reconciler scheduled: %s", schedule)
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Run executes one reconcile pass: query events after the checkpoint, fold
// per-song counters, replace mirror counters, advance the checkpoint.
func (r *Reconciler) Run(ctx context.Context) error {
	cursor := ""
	if cp, err := r.sagas.GetCheckpoint(ctx, checkpointID); err == nil {
		cursor = cp.Cursor
	}

	processed := 0
	for {
		var raw json.RawMessage
		err := r.retry.Do(ctx, func(ctx context.Context) error {
			var qerr error
			raw, qerr = r.source.QueryEvents(ctx, r.packageID, cursor, pageSize)
			return qerr
		})
		if err != nil {
			metrics.ObserveReconcileRun("error")
			return err
		}

		doc := gjson.ParseBytes(raw)
		events := doc.Get("data").Array()
		for _, ev := range events {
			if err := r.applyEvent(ctx, ev); err != nil {
				r.log.WithError(err).Warnf("event %s skipped", ev.Get("id.txDigest").String())
			}
			processed++
		}

		next := doc.Get("nextCursor.txDigest").String()
		if next != "" {
			if !validDigest(next) {
				r.log.Warnf("malformed cursor digest %q, stopping page loop", next)
				break
			}
			cursor = next
		}
		if !doc.Get("hasNextPage").Bool() || len(events) == 0 {
			break
		}
	}

	if cursor != "" {
		cp := saga.Checkpoint{ID: checkpointID, Cursor: cursor, UpdatedAt: time.Now().UTC()}
		if _, err := r.sagas.SaveCheckpoint(ctx, cp); err != nil {
			metrics.ObserveReconcileRun("error")
			return err
		}
	}

	metrics.ObserveReconcileRun("ok")
	r.log.WithFields(map[string]interface{}{
		"events": processed,
		"cursor": cursor,
	}).Info("reconcile run complete")
	return nil
}

// applyEvent folds a single supply event into the song mirror. Only
// content_token supply events carry the counters we mirror.
func (r *Reconciler) applyEvent(ctx context.Context, ev gjson.Result) error {
	eventType := ev.Get("type").String()
	if !strings.Contains(eventType, "::content_token::") {
		return nil
	}

	fields := ev.Get("parsedJson")
	songID := fields.Get("song_id").String()
	if songID == "" {
		return nil
	}
	available := fields.Get("tokens_available").Int()
	holders := fields.Get("holders").Int()

	return r.songs.ReplaceCounters(ctx, songID, available, holders)
}

// validDigest reports whether d decodes to a 32-byte base58 transaction
// digest, the only cursor form the event API hands back.
func validDigest(d string) bool {
	raw, err := base58.Decode(d)
	return err == nil && len(raw) == 32
}

package prodctx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const SourceProductionAPI = "production-api"

var errUnexpectedStatus = errors.New("unexpected status from production api")

// Refresher pulls scheduled context (job, shift, operator...) from the
// production-management service and applies what changed.
type Refresher struct {
	client   *resty.Client
	store    *Store
	codes    []string
	interval time.Duration
	logger   *zap.Logger
}

func NewRefresher(baseURL, token string, timeout, interval time.Duration,
	store *Store, codes []string, logger *zap.Logger) *Refresher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	if token != "" {
		client.SetAuthToken(token)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Refresher{
		client:   client,
		store:    store,
		codes:    codes,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every equipment, logging failures per equipment.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, code := range r.codes {
		if _, err := r.RefreshOnce(ctx, code); err != nil {
			r.logger.Warn("context refresh failed", zap.String("equipment", code), zap.Error(err))
		}
	}
}

// RefreshOnce fetches one equipment's context. It reports whether anything changed.
func (r *Refresher) RefreshOnce(ctx context.Context, code string) (bool, error) {
	var remote models.ContextChange

	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("code", code).
		SetResult(&remote).
		Get("/equipment/{code}/context")
	if err != nil {
		return false, fmt.Errorf("fetch context %s: %w", code, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsError():
		return false, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode())
	}

	change := diff(&remote, r.store.Get(code))
	if change.Empty() {
		return false, nil
	}

	change.Reason = ReasonRefresh
	change.Source = SourceProductionAPI

	if _, err := r.store.Apply(ctx, code, change); err != nil {
		return false, err
	}

	return true, nil
}

// diff keeps only the fields of remote that differ from cur. Counters and
// efficiency belong to the derivation engine and are never taken from the
// production service.
func diff(remote *models.ContextChange, cur models.ProductionContext) models.ContextChange {
	var out models.ContextChange

	out.JobID = changedString(remote.JobID, cur.JobID)
	out.ScheduleID = changedString(remote.ScheduleID, cur.ScheduleID)
	out.LineID = changedString(remote.LineID, cur.LineID)
	out.ShiftID = changedString(remote.ShiftID, cur.ShiftID)
	out.OperatorID = changedString(remote.OperatorID, cur.OperatorID)
	out.ProductTypeID = changedString(remote.ProductTypeID, cur.ProductTypeID)

	if remote.ShiftStart != nil && !remote.ShiftStart.Equal(cur.ShiftStart) {
		out.ShiftStart = remote.ShiftStart
	}

	if remote.TargetQuantity != nil && *remote.TargetQuantity != cur.TargetQuantity {
		out.TargetQuantity = remote.TargetQuantity
	}

	if remote.TargetSpeed != nil && *remote.TargetSpeed != cur.TargetSpeed {
		out.TargetSpeed = remote.TargetSpeed
	}

	if remote.PlannedStop != nil && *remote.PlannedStop != cur.PlannedStop {
		out.PlannedStop = remote.PlannedStop
	}

	if remote.Changeover != nil && *remote.Changeover != cur.Changeover {
		out.Changeover = remote.Changeover
	}

	return out
}

func changedString(remote *string, cur string) *string {
	if remote == nil || *remote == cur {
		return nil
	}

	return remote
}

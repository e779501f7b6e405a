// Package export orchestrates courseware exports: it fans out one render
// request per tree node, records every reply, and finalizes the export once
// the tracking set for it is empty.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/ambrosia/internal/blob"
	"github.com/rendis/ambrosia/internal/courseware"
	"github.com/rendis/ambrosia/internal/logging"
	"github.com/rendis/ambrosia/internal/notify"
	"github.com/rendis/ambrosia/internal/reducer"
	"github.com/rendis/ambrosia/internal/snippets"
	"github.com/rendis/ambrosia/internal/store"
	"github.com/rendis/ambrosia/internal/tracking"
	"github.com/rendis/ambrosia/internal/transport"
	"github.com/rendis/ambrosia/pkg/schema"
)

// SnippetReducer merges stored snippets into one document.
// Satisfied by *reducer.Reducer and test doubles.
type SnippetReducer interface {
	Reduce(in reducer.Input) (*reducer.Result, error)
}

// DefaultArtifactBucket holds reduced documents when no bucket is configured.
const DefaultArtifactBucket = "ambrosia"

// Deps are the collaborators of a Service.
type Deps struct {
	Store     store.Store
	Tracking  tracking.Set
	Snippets  snippets.Strategy
	Blob      blob.Storage
	Transport transport.Transport
	Tree      courseware.TreeProvider
	Ancestry  courseware.AncestryProvider
	Reducer   SnippetReducer
	Notifier  notify.Notifier
}

// Config tunes a Service.
type Config struct {
	ArtifactBucket string
	Filter         *RenderFilter
	// ConfigFields is forwarded to the tree provider.
	ConfigFields []string
	Logger       *slog.Logger
	Now          func() time.Time
}

// Status is a point-in-time view of one export.
type Status struct {
	Summary     *schema.ExportSummary               `json:"summary"`
	Results     []*schema.ExportResultNotification `json:"results"`
	Outstanding int                                 `json:"outstanding"`
}

// Service is the export orchestrator. Safe for concurrent use.
type Service struct {
	store     store.Store
	tracking  tracking.Set
	snippets  snippets.Strategy
	blob      blob.Storage
	transport transport.Transport
	tree      courseware.TreeProvider
	ancestry  courseware.AncestryProvider
	reducer   SnippetReducer

	eventLog   *store.EventLog
	summaryFSM *SummaryFSM
	resultFSM  *ResultFSM
	broker     *Broker

	bucket       string
	filter       *RenderFilter
	configFields []string
	logger       *slog.Logger
	now          func() time.Time
}

// NewService wires an orchestrator and its completion broker.
func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("export service requires a store")
	case deps.Tracking == nil:
		return nil, errors.New("export service requires a tracking set")
	case deps.Snippets == nil:
		return nil, errors.New("export service requires a snippet strategy")
	case deps.Blob == nil:
		return nil, errors.New("export service requires blob storage")
	case deps.Transport == nil:
		return nil, errors.New("export service requires a transport")
	case deps.Tree == nil:
		return nil, errors.New("export service requires a tree provider")
	}
	if deps.Reducer == nil {
		r, err := reducer.New()
		if err != nil {
			return nil, err
		}
		deps.Reducer = r
	}
	if deps.Ancestry == nil {
		deps.Ancestry = noAncestry{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.ArtifactBucket == "" {
		cfg.ArtifactBucket = DefaultArtifactBucket
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	eventLog := store.NewEventLog(deps.Store)
	s := &Service{
		store:        deps.Store,
		tracking:     deps.Tracking,
		snippets:     deps.Snippets,
		blob:         deps.Blob,
		transport:    deps.Transport,
		tree:         deps.Tree,
		ancestry:     deps.Ancestry,
		reducer:      deps.Reducer,
		eventLog:     eventLog,
		summaryFSM:   NewSummaryFSM(eventLog),
		resultFSM:    NewResultFSM(eventLog),
		bucket:       cfg.ArtifactBucket,
		filter:       cfg.Filter,
		configFields: cfg.ConfigFields,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	s.broker = newBroker(s, deps.Notifier)
	return s, nil
}

// Broker returns the completion broker bound to this service.
func (s *Service) Broker() *Broker { return s.broker }

// EventLog returns the export event log.
func (s *Service) EventLog() *store.EventLog { return s.eventLog }

func (s *Service) timestamp() time.Time { return s.now().UTC() }

// Start creates the summary of a new export, submits its render requests
// and runs the broker once, which finalizes exports whose every dispatch
// failed synchronously.
func (s *Service) Start(ctx context.Context, req *schema.ExportRequest) (*schema.ExportSummary, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	exportType := req.ExportType
	if exportType == "" {
		exportType = schema.ExportTypeFull
	}
	summary := &schema.ExportSummary{
		ID:          id,
		ElementID:   req.ElementID,
		ElementType: req.ElementType,
		AccountID:   req.AccountID,
		ProjectID:   req.ProjectID,
		WorkspaceID: req.WorkspaceID,
		Status:      schema.ExportStatusInProgress,
		ExportType:  exportType,
		Metadata:    req.Metadata,
		StartedAt:   s.timestamp(),
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("create export summary: %w", err)
	}
	ctx = logging.WithExportID(ctx, id)
	if err := emit(ctx, s.eventLog, &store.Event{ExportID: id, Type: schema.EventExportStarted}, req); err != nil {
		return nil, err
	}

	if _, err := s.Submit(ctx, summary); err != nil {
		logging.LogWith(ctx, s.logger).Error("export submission failed", slog.String("error", err.Error()))
		if _, ferr := s.broker.fail(ctx, summary, err); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}
	return s.broker.Broadcast(ctx, id)
}

func validateRequest(req *schema.ExportRequest) error {
	switch {
	case req == nil:
		return schema.InvalidArgument("export request is required")
	case req.ElementID == "":
		return schema.InvalidArgument("root element id is required")
	case !req.ElementType.Valid():
		return schema.InvalidArgument("unknown root element type %q", req.ElementType)
	case req.AccountID == "":
		return schema.InvalidArgument("account id is required")
	}
	return nil
}

// Submit expands the export's subtree and sends one render request per node.
// Every tracking entry is registered before the first request is published.
// A request that cannot be published is failed on the spot.
func (s *Service) Submit(ctx context.Context, summary *schema.ExportSummary) ([]*schema.ExportResultNotification, error) {
	if summary == nil {
		return nil, schema.InvalidArgument("export summary is required")
	}
	tree, err := s.tree.GetStructure(ctx, summary.ElementID, summary.ElementType, s.configFields)
	if err != nil {
		return nil, fmt.Errorf("fetch courseware tree of %s: %w", summary.ElementID, err)
	}
	nodes, err := s.filter.Select(tree)
	if err != nil {
		return nil, err
	}

	results := make([]*schema.ExportResultNotification, 0, len(nodes))
	for _, n := range nodes {
		now := s.timestamp()
		r := &schema.ExportResultNotification{
			NotificationID: uuid.NewString(),
			ExportID:       summary.ID,
			ElementID:      n.ElementID,
			ElementType:    n.ElementType,
			RootElementID:  summary.ElementID,
			AccountID:      summary.AccountID,
			ProjectID:      summary.ProjectID,
			Status:         schema.ResultStatusInProgress,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.CreateResult(ctx, r); err != nil {
			return nil, fmt.Errorf("create result for %s: %w", n.ElementID, err)
		}
		if err := s.tracking.Add(ctx, summary.ID, r.NotificationID); err != nil {
			return nil, fmt.Errorf("track %s: %w", r.NotificationID, err)
		}
		if err := emit(ctx, s.eventLog, &store.Event{
			ExportID:       summary.ID,
			NotificationID: r.NotificationID,
			Type:           schema.EventRenderSubmitted,
		}, map[string]any{"element_id": n.ElementID, "element_type": n.ElementType}); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	for _, r := range results {
		req := &schema.ExportRequestNotification{
			NotificationID: r.NotificationID,
			ExportID:       r.ExportID,
			ElementID:      r.ElementID,
			ElementType:    r.ElementType,
			RootElementID:  r.RootElementID,
			AccountID:      r.AccountID,
			ProjectID:      r.ProjectID,
		}
		perr := transport.PublishJSON(ctx, s.transport, transport.TopicRequest, req)
		if perr == nil {
			continue
		}
		rctx := logging.WithIDs(ctx, r.ExportID, r.NotificationID, r.ElementID)
		logging.LogWith(rctx, s.logger).Warn("render request dispatch failed", slog.String("error", perr.Error()))
		if err := s.failResult(rctx, r, &schema.ExportErrorNotification{
			NotificationID: r.NotificationID,
			ExportID:       r.ExportID,
			ElementID:      r.ElementID,
			ElementType:    r.ElementType,
			ErrorMessage:   "dispatch render request: " + perr.Error(),
			Cause:          schema.ErrCodeTransport,
		}); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Create stores a rendered snippet with the configured strategy. A nil
// snippet is only accepted by the blob strategy, which records linkage to a
// payload the renderer already uploaded.
func (s *Service) Create(ctx context.Context, exportID, notificationID, elementID string, elementType schema.ElementType, accountID string, snippet *string) (*schema.ExportAmbrosiaSnippet, error) {
	if exportID == "" || elementID == "" {
		return nil, schema.InvalidArgument("export id and element id are required")
	}
	sn := &schema.ExportAmbrosiaSnippet{
		ExportID:       exportID,
		NotificationID: notificationID,
		ElementID:      elementID,
		ElementType:    elementType,
		AccountID:      accountID,
	}
	if snippet != nil {
		sn.Snippet = *snippet
	}
	if err := s.snippets.Put(ctx, sn); err != nil {
		return nil, err
	}
	return sn, nil
}

// ProcessResultSnippet marks the render request behind sn as COMPLETED and
// stops tracking it. A duplicate reply returns the persisted record.
func (s *Service) ProcessResultSnippet(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) (*schema.ExportResultNotification, error) {
	if sn == nil || sn.NotificationID == "" {
		return nil, schema.InvalidArgument("result snippet with a notification id is required")
	}
	r, err := s.loadPending(ctx, sn.NotificationID)
	if err != nil || r.Status.Terminal() {
		return r, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("mint completion id: %w", err)
	}
	sec, nsec := id.Time().UnixTime()
	completedAt := time.Unix(sec, nsec).UTC()
	status := schema.ResultStatusCompleted

	err = s.resultFSM.Transition(ctx, r, status, func() error {
		return s.store.UpdateResult(ctx, r.NotificationID, store.ResultUpdate{
			Status:       &status,
			CompletionID: id.String(),
			CompletedAt:  &completedAt,
		})
	}, map[string]any{"completion_id": id.String()})
	if err != nil {
		return nil, err
	}
	r.Status = status
	r.CompletionID = id.String()
	r.CompletedAt = &completedAt
	r.UpdatedAt = s.timestamp()

	if err := s.tracking.Remove(ctx, r.ExportID, r.NotificationID); err != nil {
		return nil, fmt.Errorf("untrack %s: %w", r.NotificationID, err)
	}
	return r, nil
}

// ProcessErrorNotification records a render failure, marks the request
// FAILED and stops tracking it. A duplicate reply returns the persisted record.
func (s *Service) ProcessErrorNotification(ctx context.Context, e *schema.ExportErrorNotification) (*schema.ExportResultNotification, error) {
	if e == nil || e.NotificationID == "" {
		return nil, schema.InvalidArgument("error notification with a notification id is required")
	}
	r, err := s.loadPending(ctx, e.NotificationID)
	if err != nil || r.Status.Terminal() {
		return r, err
	}
	if err := s.failResult(ctx, r, e); err != nil {
		return nil, err
	}
	return r, nil
}

// failResult persists e and moves r to FAILED, then untracks it.
func (s *Service) failResult(ctx context.Context, r *schema.ExportResultNotification, e *schema.ExportErrorNotification) error {
	e.NotificationID = r.NotificationID
	e.ExportID = r.ExportID
	if e.ElementID == "" {
		e.ElementID = r.ElementID
	}
	if e.ElementType == "" {
		e.ElementType = r.ElementType
	}
	if e.ErrorMessage == "" {
		e.ErrorMessage = "render failed"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.timestamp()
	}
	if err := s.store.CreateError(ctx, e); err != nil {
		return fmt.Errorf("record error for %s: %w", r.NotificationID, err)
	}

	status := schema.ResultStatusFailed
	err := s.resultFSM.Transition(ctx, r, status, func() error {
		return s.store.UpdateResult(ctx, r.NotificationID, store.ResultUpdate{Status: &status})
	}, map[string]any{"error_message": e.ErrorMessage})
	if err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = s.timestamp()

	if err := s.tracking.Remove(ctx, r.ExportID, r.NotificationID); err != nil {
		return fmt.Errorf("untrack %s: %w", r.NotificationID, err)
	}
	return nil
}

// ProcessRetryNotification marks the request RETRY_RECEIVED. The tracking
// entry stays, since the render is still expected to resolve.
func (s *Service) ProcessRetryNotification(ctx context.Context, retry *schema.ExportRetryNotification) (*schema.ExportResultNotification, error) {
	if retry == nil || retry.NotificationID == "" {
		return nil, schema.InvalidArgument("retry notification with a notification id is required")
	}
	r, err := s.loadPending(ctx, retry.NotificationID)
	if err != nil || r.Status.Terminal() {
		return r, err
	}
	status := schema.ResultStatusRetryReceived
	err = s.resultFSM.Transition(ctx, r, status, func() error {
		return s.store.UpdateResult(ctx, r.NotificationID, store.ResultUpdate{Status: &status})
	}, map[string]any{"delay_sec": retry.DelaySec, "message": retry.Message})
	if err != nil {
		return nil, err
	}
	r.Status = status
	r.UpdatedAt = s.timestamp()
	return r, nil
}

// ProcessSubmitDeadLetters fails the render request whose dispatch could not
// be delivered. It has the same effect as ProcessErrorNotification.
func (s *Service) ProcessSubmitDeadLetters(ctx context.Context, n *schema.ExportRequestNotification, payload []byte) (*schema.ExportResultNotification, error) {
	if n == nil || payload == nil {
		return nil, schema.InvalidArgument("dead-lettered request notification and payload are required")
	}
	return s.deadLetter(ctx, transport.TopicRequest, &schema.ExportErrorNotification{
		NotificationID: n.NotificationID,
		ExportID:       n.ExportID,
		ElementID:      n.ElementID,
		ElementType:    n.ElementType,
		ErrorMessage:   "render request could not be delivered",
		Cause:          string(payload),
	})
}

// ProcessRetryDeadLetters fails the render request whose retry notification
// could not be processed.
func (s *Service) ProcessRetryDeadLetters(ctx context.Context, retry *schema.ExportRetryNotification, payload []byte) (*schema.ExportResultNotification, error) {
	if retry == nil || payload == nil {
		return nil, schema.InvalidArgument("dead-lettered retry notification and payload are required")
	}
	return s.deadLetter(ctx, transport.TopicRetry, &schema.ExportErrorNotification{
		NotificationID: retry.NotificationID,
		ExportID:       retry.ExportID,
		ElementID:      retry.ElementID,
		ErrorMessage:   "render retry could not be processed",
		Cause:          string(payload),
	})
}

func (s *Service) deadLetter(ctx context.Context, topic string, e *schema.ExportErrorNotification) (*schema.ExportResultNotification, error) {
	if e.NotificationID == "" {
		return nil, schema.InvalidArgument("dead-lettered %s message has no notification id", topic)
	}
	r, err := s.loadPending(ctx, e.NotificationID)
	if err != nil || r.Status.Terminal() {
		return r, err
	}
	if err := emit(ctx, s.eventLog, &store.Event{
		ExportID:       r.ExportID,
		NotificationID: r.NotificationID,
		Type:           schema.EventRenderDeadLettered,
	}, map[string]any{"topic": topic}); err != nil {
		return nil, err
	}
	return s.ProcessErrorNotification(ctx, e)
}

// loadPending fetches a result record. When the record is already terminal
// its tracking entry is dropped again so a replayed reply heals a partially
// applied one.
func (s *Service) loadPending(ctx context.Context, notificationID string) (*schema.ExportResultNotification, error) {
	r, err := s.store.GetResult(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		logging.LogWith(logging.WithIDs(ctx, r.ExportID, r.NotificationID, r.ElementID), s.logger).
			Debug("duplicate reply for resolved render request", slog.String("status", string(r.Status)))
		if err := s.tracking.Remove(ctx, r.ExportID, r.NotificationID); err != nil {
			return nil, fmt.Errorf("untrack %s: %w", r.NotificationID, err)
		}
	}
	return r, nil
}

// GenerateAmbrosia finalizes an export whose renders have all resolved.
// Any recorded render error fails the export without reducing. A reducer
// failure is logged and returned, leaving the summary in progress.
func (s *Service) GenerateAmbrosia(ctx context.Context, summary *schema.ExportSummary) (*schema.ExportSummary, error) {
	out, _, err := s.generate(ctx, summary)
	return out, err
}

// generate reports whether this call performed the terminal write.
func (s *Service) generate(ctx context.Context, summary *schema.ExportSummary) (*schema.ExportSummary, bool, error) {
	if summary == nil {
		return nil, false, schema.InvalidArgument("export summary is required")
	}
	if summary.Status.Terminal() {
		return summary, false, nil
	}
	ctx = logging.WithExportID(ctx, summary.ID)

	failed, err := s.store.HasErrors(ctx, summary.ID)
	if err != nil {
		return nil, false, fmt.Errorf("check render errors: %w", err)
	}
	if failed {
		return s.finalize(ctx, summary, schema.ExportStatusFailed, s.timestamp(), "")
	}

	list, err := s.snippets.ListByExport(ctx, summary.ID)
	if err != nil {
		return nil, false, fmt.Errorf("list snippets: %w", err)
	}
	tree, err := s.tree.GetStructure(ctx, summary.ElementID, summary.ElementType, s.configFields)
	if err != nil {
		return nil, false, fmt.Errorf("fetch courseware tree of %s: %w", summary.ElementID, err)
	}
	ancestry, err := s.ancestry.FindAncestry(ctx, summary.ElementID, summary.ElementType)
	if err != nil {
		return nil, false, fmt.Errorf("find ancestry of %s: %w", summary.ElementID, err)
	}

	res, err := s.reducer.Reduce(reducer.Input{
		Snippets: snippets.ByElementID(list),
		Tree:     tree,
		Summary:  summary,
		Ancestry: ancestry,
	})
	if err != nil {
		s.recordReducerError(ctx, summary.ID, err)
		return nil, false, err
	}
	// Pruned subtrees are expected when a render filter is configured.
	if skipped := courseware.Count(tree) - res.Metadata.ElementsExportedCount; skipped > 0 && s.filter == nil {
		logging.LogWith(ctx, s.logger).Warn("tree elements without a snippet were skipped",
			slog.Int("skipped", skipped), slog.Int("exported", res.Metadata.ElementsExportedCount))
	}
	for _, u := range res.Unmatched {
		logging.LogWith(ctx, s.logger).Warn("snippet has no reference in its parent",
			slog.String("parent_id", u.ParentID), slog.String("child_id", u.ChildID))
	}

	url, err := s.upload(ctx, summary.ID, res.Root)
	if err != nil {
		return nil, false, err
	}
	out, won, err := s.finalize(ctx, summary, schema.ExportStatusCompleted, res.Metadata.CompletedAt, url)
	if err != nil {
		return nil, false, err
	}
	if won {
		if derr := s.snippets.Discard(ctx, summary.ID); derr != nil {
			logging.LogWith(ctx, s.logger).Warn("discard snippets failed", slog.String("error", derr.Error()))
		}
	}
	return out, won, nil
}

func (s *Service) recordReducerError(ctx context.Context, exportID string, rerr error) {
	cause := schema.ErrCodeReducer
	var ae *schema.AmbrosiaError
	if errors.As(rerr, &ae) {
		cause = ae.Code
		if ae.ElementID != "" {
			cause += " " + ae.ElementID
		}
		if op, ok := ae.Details["operation"].(string); ok {
			cause += " " + op
		}
	}
	log := logging.LogWith(ctx, s.logger)
	log.Error("reduce snippets failed", slog.String("error", rerr.Error()))
	if err := s.store.CreateReducerError(ctx, &schema.AmbrosiaReducerErrorLog{
		ExportID:     exportID,
		Cause:        cause,
		ErrorMessage: rerr.Error(),
		CreatedAt:    s.timestamp(),
	}); err != nil {
		log.Error("record reducer error failed", slog.String("error", err.Error()))
	}
	if err := emit(ctx, s.eventLog, &store.Event{ExportID: exportID, Type: schema.EventReducerFailed},
		map[string]any{"cause": cause}); err != nil {
		log.Error("append reducer event failed", slog.String("error", err.Error()))
	}
}

func (s *Service) upload(ctx context.Context, exportID string, root reducer.Snippet) (string, error) {
	f, err := reducer.Serialize(root)
	if err != nil {
		return "", err
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()
	url, err := s.blob.Upload(ctx, s.bucket, ArtifactKey(exportID), f)
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return url, nil
}

// finalize performs the conditional terminal write. A caller that loses the
// race gets the persisted summary back and won == false.
func (s *Service) finalize(ctx context.Context, summary *schema.ExportSummary, status schema.ExportStatus, at time.Time, url string) (*schema.ExportSummary, bool, error) {
	final := store.SummaryFinalize{Status: status, CompletedAt: at.UTC(), AmbrosiaURL: url}
	err := s.summaryFSM.Transition(ctx, summary.ID, summary.Status, status, func() error {
		return s.store.FinalizeSummary(ctx, summary.ID, final)
	}, final)
	if schema.IsCode(err, schema.ErrCodeConflict) {
		persisted, gerr := s.store.GetSummary(ctx, summary.ID)
		if gerr != nil {
			return nil, false, gerr
		}
		return persisted, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	out := *summary
	out.Status = status
	out.CompletedAt = &final.CompletedAt
	if url != "" {
		out.AmbrosiaURL = url
	}
	logging.LogWith(ctx, s.logger).Info("export finalized", slog.String("status", string(status)))
	return &out, true, nil
}

// GetExportErrors lists the render errors recorded for an export.
func (s *Service) GetExportErrors(ctx context.Context, exportID string) ([]*schema.ExportErrorNotification, error) {
	if exportID == "" {
		return nil, schema.InvalidArgument("export id is required")
	}
	return s.store.ListErrors(ctx, exportID)
}

// GetAmbrosiaReducerErrors lists the reducer failures recorded for an export.
func (s *Service) GetAmbrosiaReducerErrors(ctx context.Context, exportID string) ([]*schema.AmbrosiaReducerErrorLog, error) {
	if exportID == "" {
		return nil, schema.InvalidArgument("export id is required")
	}
	return s.store.ListReducerErrors(ctx, exportID)
}

// Status returns the summary and every render result of an export.
func (s *Service) Status(ctx context.Context, exportID string) (*Status, error) {
	if exportID == "" {
		return nil, schema.InvalidArgument("export id is required")
	}
	summary, err := s.store.GetSummary(ctx, exportID)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ListResults(ctx, exportID)
	if err != nil {
		return nil, err
	}
	st := &Status{Summary: summary, Results: results}
	for _, r := range results {
		if !r.Status.Terminal() {
			st.Outstanding++
		}
	}
	return st, nil
}

// ListSummaries lists exports by project, workspace or account.
func (s *Service) ListSummaries(ctx context.Context, filter store.SummaryFilter) ([]*schema.ExportSummary, error) {
	return s.store.ListSummaries(ctx, filter)
}

type noAncestry struct{}

func (noAncestry) FindAncestry(context.Context, string, schema.ElementType) ([]schema.ElementRef, error) {
	return nil, nil
}

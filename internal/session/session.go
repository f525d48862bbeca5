// Package session is the unit of work: it tracks loaded documents in an
// identity map, queues writes until SaveChanges and executes compiled query
// plans.
//
// A Session is not safe for concurrent use. Open one per logical operation;
// the storage provider and plan cache behind it are shared.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/ggmueller/marten/internal/compiled"
	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/metrics"
	"github.com/ggmueller/marten/internal/serializer"
	"github.com/ggmueller/marten/internal/storage"
	"github.com/ggmueller/marten/internal/store"
)

// Operation names, also used as metric labels.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpPatch  = "patch"
)

// operation is one queued write.
type operation struct {
	kind    string
	storage *storage.DocumentStorage
	id      any
	doc     any    // upsert
	patch   []byte // patch
	merge   bool   // patch is a merge patch
}

// Session is one unit of work against a document store.
type Session struct {
	exec       store.Executor
	provider   *storage.Provider
	plans      *compiled.Cache
	serializer serializer.Serializer
	versions   storage.UUIDGenerator
	log        *slog.Logger
	metrics    *metrics.Collectors

	idmap   *IdentityMap
	pending []operation
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithMetrics records query durations and saved operations.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Session) { s.metrics = c }
}

// WithVersionGenerator sets the source of mt_version values.
func WithVersionGenerator(g storage.UUIDGenerator) Option {
	return func(s *Session) { s.versions = g }
}

// New opens a session.
func New(exec store.Executor, provider *storage.Provider, plans *compiled.Cache, opts ...Option) *Session {
	s := &Session{
		exec:       exec,
		provider:   provider,
		plans:      plans,
		serializer: provider.Serializer(),
		versions:   storage.UUIDv7Generator{},
		log:        slog.Default(),
		idmap:      NewIdentityMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentityMap returns the documents tracked by this session.
func (s *Session) IdentityMap() *IdentityMap { return s.idmap }

// Pending reports the number of queued writes.
func (s *Session) Pending() int { return len(s.pending) }

// Store queues documents for upsert. Missing ids are assigned immediately,
// so callers can read them before SaveChanges. Documents are serialized at
// SaveChanges, so later changes to them are saved too.
func (s *Session) Store(ctx context.Context, docs ...any) error {
	for _, doc := range docs {
		st, err := s.provider.StorageFor(ctx, reflect.TypeOf(doc))
		if err != nil {
			return err
		}
		id, err := st.AssignID(ctx, doc)
		if err != nil {
			return err
		}
		s.idmap.Register(st.Mapping().TableName(), id, doc)
		s.pending = append(s.pending, operation{kind: OpUpsert, storage: st, id: id, doc: doc})
	}
	return nil
}

// MarkAsLoaded tracks documents as if they had been loaded, without
// queuing a write.
func (s *Session) MarkAsLoaded(ctx context.Context, docs ...any) error {
	for _, doc := range docs {
		st, err := s.provider.StorageFor(ctx, reflect.TypeOf(doc))
		if err != nil {
			return err
		}
		id, err := st.IdentityOf(doc)
		if err != nil {
			return err
		}
		s.idmap.Register(st.Mapping().TableName(), id, doc)
	}
	return nil
}

// Delete queues the deletion of a document.
func (s *Session) Delete(ctx context.Context, doc any) error {
	st, err := s.provider.StorageFor(ctx, reflect.TypeOf(doc))
	if err != nil {
		return err
	}
	id, err := st.IdentityOf(doc)
	if err != nil {
		return err
	}
	s.queueDelete(st, id)
	return nil
}

// DeleteByID queues the deletion of the document of type t with id.
func (s *Session) DeleteByID(ctx context.Context, t reflect.Type, id any) error {
	st, err := s.provider.StorageFor(ctx, t)
	if err != nil {
		return err
	}
	nid, err := st.NormalizeID(id)
	if err != nil {
		return err
	}
	s.queueDelete(st, nid)
	return nil
}

func (s *Session) queueDelete(st *storage.DocumentStorage, id any) {
	s.idmap.Remove(st.Mapping().TableName(), id)
	s.pending = append(s.pending, operation{kind: OpDelete, storage: st, id: id})
}

// Patch queues an RFC 6902 JSON patch of the stored document of type t.
// The patch is applied to the stored JSON at SaveChanges; a missing
// document is NO_RESULTS.
func (s *Session) Patch(ctx context.Context, t reflect.Type, id any, patch []byte) error {
	if _, err := jsonpatch.DecodePatch(patch); err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	return s.queuePatch(ctx, t, id, patch, false)
}

// MergePatch queues an RFC 7386 merge patch of the stored document of type t.
func (s *Session) MergePatch(ctx context.Context, t reflect.Type, id any, patch []byte) error {
	return s.queuePatch(ctx, t, id, patch, true)
}

func (s *Session) queuePatch(ctx context.Context, t reflect.Type, id any, patch []byte, merge bool) error {
	st, err := s.provider.StorageFor(ctx, t)
	if err != nil {
		return err
	}
	nid, err := st.NormalizeID(id)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, operation{kind: OpPatch, storage: st, id: nid, patch: patch, merge: merge})
	return nil
}

// SaveChanges applies every queued write in one transaction, in the order
// they were queued. On failure nothing is committed and the writes stay
// queued.
func (s *Session) SaveChanges(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	err := s.exec.InTx(ctx, func(tx store.Executor) error {
		for _, op := range s.pending {
			if err := s.apply(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save changes: %w", err)
	}

	for _, op := range s.pending {
		if op.kind == OpPatch {
			// the tracked instance no longer matches the stored document
			s.idmap.Remove(op.storage.Mapping().TableName(), op.id)
		}
		if s.metrics != nil {
			s.metrics.UnitOfWorkOperationsTotal.WithLabelValues(op.kind).Inc()
		}
	}
	s.log.Debug("changes saved", "operations", len(s.pending))
	s.pending = nil
	return nil
}

func (s *Session) apply(ctx context.Context, tx store.Executor, op operation) error {
	switch op.kind {
	case OpUpsert:
		args, err := op.storage.UpsertArgs(op.doc, s.versions.NewUUID())
		if err != nil {
			return err
		}
		if err := tx.Exec(ctx, op.storage.UpsertCommand(), args...); err != nil {
			return fmt.Errorf("upsert %s %v: %w", op.storage.Mapping().Name, op.id, err)
		}
	case OpDelete:
		if err := tx.Exec(ctx, op.storage.DeleteCommand(), op.id); err != nil {
			return fmt.Errorf("delete %s %v: %w", op.storage.Mapping().Name, op.id, err)
		}
	case OpPatch:
		return s.applyPatch(ctx, tx, op)
	default:
		return fmt.Errorf("unknown operation %q", op.kind)
	}
	return nil
}

// applyPatch rewrites a stored document through its storage, so duplicated
// columns and the version follow the patched JSON.
func (s *Session) applyPatch(ctx context.Context, tx store.Executor, op operation) error {
	st := op.storage
	row, found, err := loadRow(ctx, tx, st, op.id)
	if err != nil {
		return err
	}
	if !found {
		return &docerr.Error{
			Code:         docerr.CodeNoResults,
			Message:      fmt.Sprintf("patch target %v does not exist", op.id),
			DocumentType: st.Mapping().Name,
		}
	}

	var patched []byte
	if op.merge {
		patched, err = jsonpatch.MergePatch([]byte(row.Data), op.patch)
	} else {
		var p jsonpatch.Patch
		p, err = jsonpatch.DecodePatch(op.patch)
		if err == nil {
			patched, err = p.Apply([]byte(row.Data))
		}
	}
	if err != nil {
		return fmt.Errorf("patch %s %v: %w", st.Mapping().Name, op.id, err)
	}

	row.Data = string(patched)
	doc, err := st.ResolveContext(ctx, row, nil)
	if err != nil {
		return err
	}
	args, err := st.UpsertArgs(doc, s.versions.NewUUID())
	if err != nil {
		return err
	}
	if err := tx.Exec(ctx, st.UpsertCommand(), args...); err != nil {
		return fmt.Errorf("patch %s %v: %w", st.Mapping().Name, op.id, err)
	}
	return nil
}

// Load returns the document of type t with id, or nil when there is none.
// A document already tracked by the session is returned without a query.
func (s *Session) Load(ctx context.Context, t reflect.Type, id any) (any, error) {
	st, err := s.provider.StorageFor(ctx, t)
	if err != nil {
		return nil, err
	}
	nid, err := st.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	if doc, ok := s.idmap.Lookup(st.Mapping().TableName(), nid); ok {
		if !st.Mapping().IsSubClass() || reflect.TypeOf(doc).Elem() == st.Mapping().DocumentType {
			return doc, nil
		}
		return nil, nil
	}

	row, found, err := loadRow(ctx, s.exec, st, nid)
	if err != nil || !found {
		return nil, err
	}
	return st.ResolveContext(ctx, row, s.idmap)
}

func loadRow(ctx context.Context, exec store.Executor, st *storage.DocumentStorage, id any) (storage.Row, bool, error) {
	rows, err := exec.Query(ctx, st.LoadCommand(), id)
	if err != nil {
		return storage.Row{}, false, fmt.Errorf("load %s %v: %w", st.Mapping().Name, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return storage.Row{}, false, rows.Err()
	}
	row, err := storage.ScanRow(rows, st.Mapping().IsHierarchy())
	if err != nil {
		return storage.Row{}, false, err
	}
	return row, true, rows.Err()
}

package storage

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/querysql"
	"github.com/ggmueller/marten/internal/serializer"
	"github.com/ggmueller/marten/internal/store"
)

// IdentityMap is the hydration context of a unit of work. Storage only reads
// from and writes into it; the session owns it.
type IdentityMap interface {
	Lookup(table string, id any) (doc any, ok bool)
	Register(table string, id any, doc any)
}

// Row is one document row, as selected by querysql.DocumentSelectList.
type Row struct {
	ID      any
	Data    string
	DocType string // hierarchies only
	Version uuid.NullUUID
}

// ScanRow reads the current row of a document select.
func ScanRow(rows store.Rows, hierarchy bool) (Row, error) {
	var r Row
	dest := []any{&r.ID, &r.Data}
	if hierarchy {
		dest = append(dest, &r.DocType)
	}
	dest = append(dest, &r.Version)
	if err := rows.Scan(dest...); err != nil {
		return Row{}, fmt.Errorf("scan document row: %w", err)
	}
	return r, nil
}

// DocumentStorage hydrates and persists the documents of one mapping.
//
// Commands are rendered once when the storage is built. A storage is
// immutable and safe for concurrent use.
type DocumentStorage struct {
	mapping    *mapping.DocumentMapping
	serializer serializer.Serializer
	writers    *WriterCache
	hydrated   prometheus.Counter

	uuids UUIDGenerator
	hilo  *HiLo
	now   func() time.Time

	upsertSQL string
	deleteSQL string
	loadSQL   string
}

func newDocumentStorage(m *mapping.DocumentMapping, p *Provider) *DocumentStorage {
	s := &DocumentStorage{
		mapping:    m,
		serializer: p.serializer,
		writers:    p.writers,
		uuids:      p.uuids,
		hilo:       p.hilo,
		now:        p.now,
	}
	if p.metrics != nil {
		s.hydrated = p.metrics.DocumentsHydratedTotal.WithLabelValues(m.Name)
	}
	s.upsertSQL = upsertCommand(m)
	s.deleteSQL = fmt.Sprintf("delete from %s where id = $1", m.QualifiedTableName())
	s.loadSQL = loadCommand(m)
	return s
}

// Mapping returns the document mapping.
func (s *DocumentStorage) Mapping() *mapping.DocumentMapping { return s.mapping }

// UpsertCommand is the insert-or-update statement.
func (s *DocumentStorage) UpsertCommand() string { return s.upsertSQL }

// DeleteCommand deletes one document by id.
func (s *DocumentStorage) DeleteCommand() string { return s.deleteSQL }

// LoadCommand selects one document by id.
func (s *DocumentStorage) LoadCommand() string { return s.loadSQL }

func upsertCommand(m *mapping.DocumentMapping) string {
	cols := []string{mapping.IDColumn, mapping.DataColumn, mapping.LastModifiedColumn, mapping.VersionColumn}
	if m.IsHierarchy() {
		cols = append(cols, mapping.DocumentTypeColumn)
	}
	for _, d := range m.Root().Duplicates {
		cols = append(cols, d.Column)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	return fmt.Sprintf("insert into %s (%s) values (%s) on conflict (id) do update set %s",
		m.QualifiedTableName(), strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

func loadCommand(m *mapping.DocumentMapping) string {
	cmd := fmt.Sprintf("select %s from %s as d where d.id = $1", querysql.DocumentSelectList(m), m.QualifiedTableName())
	if m.IsSubClass() {
		cmd += " and d." + mapping.DocumentTypeColumn + " = '" + strings.ReplaceAll(m.Alias, "'", "''") + "'"
	}
	return cmd
}

// Resolve turns a row into a document, a pointer to its concrete struct.
//
// For hierarchies the discriminator is resolved before the payload is
// read. A document already in the identity map is returned as is; a new one
// is registered. idmap may be nil.
func (s *DocumentStorage) Resolve(row Row, idmap IdentityMap) (any, error) {
	return s.resolve(context.Background(), row, idmap)
}

// ResolveContext is Resolve honoring cancellation. It checks ctx before the
// discriminator, before the payload and before registering, so a cancelled
// call never leaves a partial document in the identity map.
func (s *DocumentStorage) ResolveContext(ctx context.Context, row Row, idmap IdentityMap) (any, error) {
	return s.resolve(ctx, row, idmap)
}

func (s *DocumentStorage) resolve(ctx context.Context, row Row, idmap IdentityMap) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docType, err := s.concreteType(row)
	if err != nil {
		return nil, err
	}

	id, err := normalizeID(row.ID, s.mapping.IDKind)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", s.mapping.Name, err)
	}
	table := s.mapping.TableName()
	if idmap != nil {
		if doc, ok := idmap.Lookup(table, id); ok {
			return doc, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.serializer.FromText(row.Data, docType)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", s.mapping.Name, err)
	}
	if err := s.restore(doc, docType, id, row.Version); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.hydrated != nil {
		s.hydrated.Inc()
	}
	if idmap != nil {
		idmap.Register(table, id, doc)
	}
	return doc, nil
}

// concreteType reads the discriminator of hierarchy rows.
func (s *DocumentStorage) concreteType(row Row) (reflect.Type, error) {
	if !s.mapping.IsHierarchy() {
		if s.mapping.DocumentType == nil {
			return nil, fmt.Errorf("document %s has no Go type to hydrate", s.mapping.Name)
		}
		return s.mapping.DocumentType, nil
	}
	t, ok := s.mapping.TypeFor(row.DocType)
	if !ok {
		return nil, fmt.Errorf("document %s: unknown document type alias %q", s.mapping.Name, row.DocType)
	}
	return t, nil
}

// restore writes the id column and version into a fresh document, so ids
// that are not serialized survive the round trip.
func (s *DocumentStorage) restore(doc any, t reflect.Type, id any, version uuid.NullUUID) error {
	w, err := s.writers.WriterFor(t, s.mapping.IDMember)
	if err != nil {
		return err
	}
	if err := w.Set(doc, id); err != nil {
		return err
	}
	if s.mapping.VersionMember != "" && version.Valid {
		vw, err := s.writers.WriterFor(t, s.mapping.VersionMember)
		if err != nil {
			return err
		}
		if err := vw.Set(doc, versionValue(vw, version.UUID)); err != nil {
			return err
		}
	}
	return nil
}

func versionValue(w *Writer, v uuid.UUID) any {
	if w.target.Kind() == reflect.String {
		return v.String()
	}
	return v
}

// NormalizeID converts a caller supplied id to the key used in identity
// maps and command arguments.
func (s *DocumentStorage) NormalizeID(id any) (any, error) {
	return normalizeID(id, s.mapping.IDKind)
}

// IdentityOf reads the id of a document.
func (s *DocumentStorage) IdentityOf(doc any) (any, error) {
	pv, err := documentPointer(doc)
	if err != nil {
		return nil, err
	}
	v, ok := readMember(pv, s.mapping.IDMember)
	if !ok {
		return nil, &docerr.Error{Code: docerr.CodeMissingID, Message: "cannot read " + s.mapping.IDMember, DocumentType: s.mapping.Name}
	}
	return normalizeID(v.Interface(), s.mapping.IDKind)
}

// AssignID gives a document without an id a new one: UUIDv7 for uuid ids
// and the next HiLo value for integer ids. String ids must be set by the
// caller. The id, new or existing, is returned.
func (s *DocumentStorage) AssignID(ctx context.Context, doc any) (any, error) {
	id, err := s.IdentityOf(doc)
	if err != nil {
		return nil, err
	}
	if !isZeroID(id) {
		return id, nil
	}

	switch s.mapping.IDKind {
	case mapping.IDUUID:
		id = s.uuids.NewUUID()
	case mapping.IDInt, mapping.IDInt64:
		if s.hilo == nil {
			return nil, fmt.Errorf("document %s: no hilo sequence configured", s.mapping.Name)
		}
		n, err := s.hilo.Next(ctx, s.mapping.Root().Name)
		if err != nil {
			return nil, err
		}
		id = n
	default:
		return nil, &docerr.Error{Code: docerr.CodeMissingID, Message: "string ids must be assigned before storing", DocumentType: s.mapping.Name}
	}

	pv, _ := documentPointer(doc)
	w, err := s.writers.WriterFor(pv.Elem().Type(), s.mapping.IDMember)
	if err != nil {
		return nil, err
	}
	if err := w.Set(doc, id); err != nil {
		return nil, err
	}
	return id, nil
}

// UpsertArgs serializes a document into the arguments of UpsertCommand and
// returns the version written. A configured version member is updated.
func (s *DocumentStorage) UpsertArgs(doc any, version uuid.UUID) ([]any, error) {
	pv, err := documentPointer(doc)
	if err != nil {
		return nil, err
	}
	id, err := s.IdentityOf(doc)
	if err != nil {
		return nil, err
	}
	if isZeroID(id) {
		return nil, &docerr.Error{Code: docerr.CodeMissingID, Message: "document has no id", DocumentType: s.mapping.Name}
	}

	concrete := pv.Elem().Type()
	if s.mapping.VersionMember != "" {
		vw, err := s.writers.WriterFor(concrete, s.mapping.VersionMember)
		if err != nil {
			return nil, err
		}
		if err := vw.Set(doc, versionValue(vw, version)); err != nil {
			return nil, err
		}
	}

	data, err := s.serializer.ToText(doc)
	if err != nil {
		return nil, err
	}
	args := []any{id, data, s.now().UTC(), version}
	if s.mapping.IsHierarchy() {
		alias, ok := s.mapping.AliasFor(concrete)
		if !ok {
			return nil, fmt.Errorf("document %s: %s is not part of the hierarchy", s.mapping.Name, concrete)
		}
		args = append(args, alias)
	}
	for _, d := range s.mapping.Root().Duplicates {
		v, ok := readMember(pv, d.Member)
		if !ok {
			args = append(args, nil)
			continue
		}
		args = append(args, v.Interface())
	}
	return args, nil
}

func documentPointer(doc any) (reflect.Value, error) {
	pv := reflect.ValueOf(doc)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("documents are stored by pointer to struct, got %T", doc)
	}
	return pv, nil
}

// normalizeID converts a scanned or read id to its canonical Go value:
// uuid.UUID, int64 or string. Identity map keys rely on it.
func normalizeID(raw any, kind mapping.IDKind) (any, error) {
	switch kind {
	case mapping.IDUUID:
		v, err := convert(raw, uuidType)
		if err != nil {
			return nil, fmt.Errorf("id %v: %w", raw, err)
		}
		return v.Interface(), nil
	case mapping.IDInt, mapping.IDInt64:
		v, err := convert(raw, reflect.TypeFor[int64]())
		if err != nil {
			return nil, fmt.Errorf("id %v: %w", raw, err)
		}
		return v.Interface(), nil
	}
	v, err := convert(raw, reflect.TypeFor[string]())
	if err != nil {
		return nil, fmt.Errorf("id %v: %w", raw, err)
	}
	return v.Interface(), nil
}

func isZeroID(id any) bool {
	switch v := id.(type) {
	case uuid.UUID:
		return v == uuid.Nil
	case int64:
		return v == 0
	case string:
		return v == ""
	}
	return id == nil
}

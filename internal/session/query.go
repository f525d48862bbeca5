package session

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ggmueller/marten/internal/compiled"
	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/queryir"
	"github.com/ggmueller/marten/internal/querysql"
	"github.com/ggmueller/marten/internal/storage"
	"github.com/ggmueller/marten/internal/store"
)

// Query executes a compiled query and shapes its rows by the plan's
// cardinality:
//
//   - Single, SingleOrDefault: one document, scalar or JSON object, or nil
//   - List: []any
//   - Scalar: int64
//   - Boolean: bool
//   - Json: the stored JSON text of one document
//   - JsonArray: the stored JSON of every match as one array
//
// Documents are pointers to their concrete struct and are tracked in the
// identity map. Projected objects are JSON text.
func (s *Session) Query(ctx context.Context, q queryir.Description) (any, error) {
	plan, err := s.plans.PlanFor(q)
	if err != nil {
		return nil, err
	}
	params, err := plan.Parameters(q)
	if err != nil {
		return nil, withQuery(err, plan)
	}
	// The document table is ensured before the first execution.
	reader, err := s.provider.StorageFor(ctx, plan.Document)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		start := time.Now()
		defer func() {
			s.metrics.QueryDurationSeconds.
				WithLabelValues(plan.Command.Cardinality.String()).
				Observe(time.Since(start).Seconds())
		}()
	}

	rows, err := s.exec.Query(ctx, plan.Command.Template, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.QueryType, err)
	}
	defer rows.Close()

	result, err := s.read(ctx, plan, reader, rows)
	if err != nil {
		return nil, withQuery(err, plan)
	}
	s.log.Debug("query executed", "query", plan.QueryType.String(), "cardinality", plan.Command.Cardinality)
	return result, nil
}

func (s *Session) read(ctx context.Context, plan *compiled.Plan, reader *storage.DocumentStorage, rows store.Rows) (any, error) {
	cmd := plan.Command
	switch cmd.Cardinality {
	case querysql.CardinalityScalar:
		return readAggregate(rows, reflect.TypeFor[int64]())
	case querysql.CardinalityBoolean:
		return readAggregate(rows, reflect.TypeFor[bool]())
	case querysql.CardinalityList:
		out := []any{}
		for rows.Next() {
			v, err := s.readValue(ctx, plan, reader, rows)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, rows.Err()
	case querysql.CardinalityJSONArray:
		var parts []string
		for rows.Next() {
			v, err := s.readValue(ctx, plan, reader, rows)
			if err != nil {
				return nil, err
			}
			parts = append(parts, v.(string))
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	}

	// Single, SingleOrDefault and Json read at most two rows.
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if cmd.Required {
			return nil, &docerr.Error{Code: docerr.CodeNoResults, Message: "query returned no results"}
		}
		return nil, nil
	}
	v, err := s.readValue(ctx, plan, reader, rows)
	if err != nil {
		return nil, err
	}
	if cmd.Unique && rows.Next() {
		return nil, &docerr.Error{Code: docerr.CodeMultipleResults, Message: "query returned more than one result"}
	}
	return v, rows.Err()
}

// readValue reads the current row by projection.
func (s *Session) readValue(ctx context.Context, plan *compiled.Plan, reader *storage.DocumentStorage, rows store.Rows) (any, error) {
	cmd := plan.Command
	switch cmd.Projection {
	case queryir.ProjectJSON, queryir.ProjectShape:
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan json: %w", err)
		}
		return text, nil
	case queryir.ProjectScalar:
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", cmd.ScalarType, err)
		}
		if cmd.ScalarType == nil || raw == nil {
			return raw, nil
		}
		v, err := storage.Convert(raw, cmd.ScalarType)
		if err != nil {
			return nil, resultMismatch("%s", err)
		}
		return v, nil
	}

	row, err := storage.ScanRow(rows, reader.Mapping().IsHierarchy())
	if err != nil {
		return nil, err
	}
	return reader.ResolveContext(ctx, row, s.idmap)
}

func readAggregate(rows store.Rows, t reflect.Type) (any, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &docerr.Error{Code: docerr.CodeNoResults, Message: "aggregate returned no row"}
	}
	var raw any
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("scan aggregate: %w", err)
	}
	v, err := storage.Convert(raw, t)
	if err != nil {
		return nil, resultMismatch("%s", err)
	}
	return v, rows.Err()
}

func resultMismatch(format string, args ...any) *docerr.Error {
	return &docerr.Error{Code: docerr.CodeResultTypeMismatch, Message: fmt.Sprintf(format, args...)}
}

// withQuery stamps the query and document type onto coded errors.
func withQuery(err error, plan *compiled.Plan) error {
	de, ok := err.(*docerr.Error)
	if !ok {
		return err
	}
	cp := *de
	if cp.QueryType == "" {
		cp.QueryType = plan.QueryType.String()
	}
	if cp.DocumentType == "" && plan.Mapping != nil {
		cp.DocumentType = plan.Mapping.Name
	}
	return &cp
}

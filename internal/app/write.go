package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

// WriteRequest describes one frame upload.
type WriteRequest struct {
	Table   string
	Dataset string
	// InsertMode is "append" (default) or "truncate".
	InsertMode      string
	CreateIfMissing bool
	// Schema is used instead of the existing or inferred schema.
	Schema warehouse.Schema
	// AcceptIncompleteSchema fills NULLABLE table columns missing from the frame.
	AcceptIncompleteSchema bool
	AcceptCapitalLetters   bool
	SkipAuditColumn        bool
}

// WriteResult reports a finished write.
type WriteResult struct {
	Table       warehouse.TableRef
	Rows        int64
	Disposition warehouse.Disposition
	Created     bool
	JobID       string
	Duration    time.Duration
}

// Write uploads f into the requested table, creating it when allowed.
func (s *Service) Write(ctx context.Context, f *frame.Frame, req WriteRequest) (*WriteResult, error) {
	start := s.now()

	ref, err := s.ResolveTable(req.Dataset, req.Table, req.AcceptCapitalLetters)
	if err != nil {
		return nil, &ErrWrite{Table: ref.String(), Cause: err}
	}
	res, err := s.write(ctx, f, ref, req)
	if err != nil {
		return nil, &ErrWrite{Table: ref.String(), Cause: err}
	}
	res.Duration = s.now().Sub(start)
	return res, nil
}

func (s *Service) write(ctx context.Context, f *frame.Frame, ref warehouse.TableRef, req WriteRequest) (*WriteResult, error) {
	if f == nil || f.NumCols() == 0 {
		return nil, errors.New("frame has no columns")
	}
	mode, err := warehouse.ParseInsertMode(req.InsertMode)
	if err != nil {
		return nil, err
	}

	audit := s.auditColumn
	if req.SkipAuditColumn {
		audit = ""
	}
	custom := req.Schema
	if audit != "" {
		if custom, err = s.withoutAuditField(req.Schema, audit); err != nil {
			return nil, err
		}
		if f.Index(audit) >= 0 {
			return nil, fmt.Errorf("%w: frame has column %q", warehouse.ErrReservedColumn, audit)
		}
	}

	exists, err := s.driver.TableExists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !exists && !req.CreateIfMissing {
		return nil, fmt.Errorf("%w: %s (enable create-if-missing to create it)", warehouse.ErrTableNotFound, ref)
	}

	var existing warehouse.Schema
	if exists {
		existing, err = s.driver.GetSchema(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	var target warehouse.Schema
	switch {
	case len(custom) > 0:
		target = append(warehouse.Schema(nil), custom...)
	case exists:
		target = append(warehouse.Schema(nil), existing...)
	default:
		target = warehouse.InferSchema(f)
	}

	// The audit column is stamped on new tables and on existing tables that
	// already carry it.
	stampAudit := false
	if audit != "" {
		if exists {
			if field, ok := existing.Field(audit); ok {
				stampAudit = true
				if _, inTarget := target.Field(audit); !inTarget {
					target = append(target, field)
				}
			} else {
				s.logger.Debug("existing table has no audit column", "table", ref.String(), "column", audit)
			}
		} else {
			stampAudit = true
			target = append(target, s.auditField())
		}
	}

	out, err := reconcile(f, target, audit, req.AcceptIncompleteSchema, func(dropped string) {
		s.logger.Warn("column not in table schema, dropping", "table", ref.String(), "column", dropped)
	})
	if err != nil {
		return nil, err
	}
	if stampAudit {
		field, _ := target.Field(audit)
		stamp := s.now().UTC().Truncate(time.Millisecond)
		if err := out.AddConstColumn(field.Name, frame.KindTimestamp, stamp); err != nil {
			return nil, err
		}
	}

	res := &WriteResult{Table: ref}
	switch {
	case exists && mode == warehouse.InsertTruncate:
		s.logger.Warn("truncating table before write", "table", ref.String())
		res.Disposition = warehouse.WriteTruncate
	case exists:
		s.logger.Info("appending to table", "table", ref.String(), "rows", out.NumRows())
		res.Disposition = warehouse.WriteAppend
	default:
		s.logger.Info("creating table", "table", ref.String(), "columns", len(target), "custom_schema", len(req.Schema) > 0)
		if err := s.driver.CreateTable(ctx, ref, target); err != nil {
			return nil, err
		}
		res.Created = true
		res.Disposition = warehouse.WriteEmpty
	}

	if out.NumRows() == 0 && res.Disposition != warehouse.WriteTruncate {
		s.logger.Info("frame is empty, nothing to load", "table", ref.String())
		return res, nil
	}

	loaded, err := s.driver.Load(ctx, ref, out, warehouse.LoadOptions{
		Schema:              target,
		Disposition:         res.Disposition,
		IgnoreUnknownValues: true,
		AllowJaggedRows:     req.AcceptIncompleteSchema,
	})
	if err != nil {
		return nil, err
	}
	res.Rows = loaded.Rows
	res.JobID = loaded.JobID
	return res, nil
}

// reconcile reshapes f to the target schema: columns are ordered and named
// like the target and cast to its kinds, unknown frame columns are dropped,
// and missing NULLABLE columns are NULL-filled when acceptIncomplete is set.
// The skip column is left out.
func reconcile(f *frame.Frame, target warehouse.Schema, skip string, acceptIncomplete bool, onDrop func(string)) (*frame.Frame, error) {
	for _, name := range f.Names() {
		if _, ok := target.Field(name); !ok && onDrop != nil {
			onDrop(name)
		}
	}

	var missing, nullRequired []string
	cols := make([]*frame.Column, 0, len(target))
	for _, field := range target {
		if skip != "" && strings.EqualFold(field.Name, skip) {
			continue
		}
		kind := warehouse.KindForFieldType(field.Type)

		src := f.Column(field.Name)
		if src == nil {
			if field.Required() || !acceptIncomplete {
				missing = append(missing, field.Name)
				continue
			}
			cols = append(cols, &frame.Column{Name: field.Name, Kind: kind, Values: make([]any, f.NumRows())})
			continue
		}

		col, err := src.Cast(kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", warehouse.ErrSchemaMismatch, err)
		}
		col.Name = field.Name
		if field.Required() {
			for _, v := range col.Values {
				if v == nil {
					nullRequired = append(nullRequired, field.Name)
					break
				}
			}
		}
		cols = append(cols, col)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: frame is missing column(s) %s", warehouse.ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	if len(nullRequired) > 0 {
		return nil, fmt.Errorf("%w: REQUIRED column(s) %s contain NULL", warehouse.ErrSchemaMismatch, strings.Join(nullRequired, ", "))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: frame shares no columns with the table", warehouse.ErrSchemaMismatch)
	}
	return frame.New(cols...)
}

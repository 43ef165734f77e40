package main

// inspector.go — Runs QC inspections of dump files for the inspect and watch
// commands: parse, inspect, save to history, write a report.

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"qcdb/internal/checklist"
	"qcdb/internal/dump"
	"qcdb/internal/report"
)

type inspector struct {
	env       *env
	validator *checklist.Validator
	configID  int64
	format    report.Format
	save      bool
	writeRep  bool
	logger    *zap.Logger

	mu         sync.RWMutex
	items      []checklist.Item
	exceptions []checklist.Exception
	overrides  []checklist.Override
}

// outcome is the result of inspecting one file.
type outcome struct {
	Path     string
	Result   *checklist.Result
	Warnings []dump.Warning
	Report   string
	Err      error
}

func newInspector(e *env, configID int64, format report.Format, logger *zap.Logger) (*inspector, error) {
	policy, err := e.settings.Policy()
	if err != nil {
		return nil, err
	}
	v, err := checklist.NewValidator(checklist.WithPolicy(policy), checklist.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &inspector{
		env:       e,
		validator: v,
		configID:  configID,
		format:    format,
		save:      true,
		writeRep:  true,
		logger:    logger,
	}, nil
}

// load reads the checklist and the configuration's exceptions and overrides.
func (in *inspector) load(ctx context.Context) error {
	items, err := in.env.store.ListItems(ctx, true)
	if err != nil {
		return err
	}
	var (
		excs []checklist.Exception
		ovs  []checklist.Override
	)
	if in.configID != 0 {
		if excs, err = in.env.store.ListExceptions(ctx, in.configID); err != nil {
			return err
		}
		if ovs, err = in.env.store.ListOverrides(ctx, in.configID); err != nil {
			return err
		}
	}
	in.mu.Lock()
	in.items, in.exceptions, in.overrides = items, excs, ovs
	in.mu.Unlock()
	in.logger.Debug("loaded checklist",
		zap.Int("items", len(items)), zap.Int("exceptions", len(excs)), zap.Int("overrides", len(ovs)))
	return nil
}

// inspectFile runs one inspection. Errors are returned in the outcome so a
// batch can continue past a bad file.
func (in *inspector) inspectFile(ctx context.Context, path string) outcome {
	out := outcome{Path: path}
	f, err := dump.ParseFile(path)
	if err != nil {
		out.Err = err
		return out
	}
	out.Warnings = f.Warnings
	for _, w := range f.Warnings {
		in.logger.Warn("dump line skipped", zap.String("file", path), zap.Int("line", w.Line), zap.String("reason", w.Message))
	}

	in.mu.RLock()
	input := checklist.Input{
		Source:          filepath.Base(path),
		ConfigurationID: in.configID,
		Items:           in.items,
		Exceptions:      in.exceptions,
		Overrides:       in.overrides,
		Data:            f.Values(),
	}
	in.mu.RUnlock()

	res, err := in.validator.Inspect(ctx, input)
	if err != nil {
		out.Err = fmt.Errorf("inspect %s: %w", path, err)
		return out
	}
	out.Result = res

	if in.save {
		if err := in.env.store.SaveInspection(ctx, res); err != nil {
			out.Err = err
			return out
		}
	}
	if in.writeRep {
		p, err := report.Write(in.env.ws.ReportsDir(), res, in.format)
		if err != nil {
			out.Err = err
			return out
		}
		out.Report = p
	}
	in.logger.Info("inspected dump",
		zap.String("file", path), zap.String("id", res.ID), zap.String("status", res.Status()),
		zap.Int("passed", res.Summary.Passed), zap.Int("failed", res.Summary.Failed))
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/relay/services/orchestrator/catalog"
	"github.com/AleutianAI/relay/services/orchestrator/datatypes"
)

// warmLoadWorkers bounds concurrent source compiles at startup.
const warmLoadWorkers = 4

// WarmLoad registers every catalog record and compiles its source so
// the first plan after a restart does not pay the load cost.
//
// Description:
//
//	A record whose source no longer loads is still registered — its
//	failure is recorded for the diagnostics endpoint and the tool can be
//	re-synthesized on next use. Only catalog read errors abort startup.
func WarmLoad(ctx context.Context, r *Registry, store *catalog.Store) error {
	if store == nil {
		return nil
	}
	records, err := store.List(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmLoadWorkers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			prov := rec.Provenance
			if prov == "" || prov == datatypes.ProvenanceBuiltIn {
				prov = datatypes.ProvenanceSynthesized
			}
			err := r.Register(datatypes.ToolRecord{
				Name:        rec.Name,
				Description: rec.Description,
				Schema:      rec.Schema,
				SourceText:  rec.SourceText,
				Provenance:  prov,
				CreatedAt:   rec.CreatedAt,
			})
			if err != nil {
				return err
			}
			if _, err := r.Resolve(rec.Name); err != nil {
				slog.Warn("warm load: stored tool does not compile",
					slog.String("tool", rec.Name),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("catalog warm load complete", slog.Int("tools", len(records)))
	return nil
}

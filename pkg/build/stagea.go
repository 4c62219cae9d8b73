package build

import (
	"context"
	"math"

	"idxengine/pkg/customerrors"
	"idxengine/pkg/index"
	"idxengine/pkg/pager"
	"idxengine/util/logger"
	"idxengine/util/stream"
)

// PrimaryStore is the external collaborator spec §6 names:
// "get_children(path, {key_filter?, async: true}) → stream<{key|index,
// type, address, value?}>". An implementation streams every indexable
// child beneath path — already narrowed to the fields the index's
// Capability needs — honoring the wildcard fanout cap MaxBatch computes.
type PrimaryStore interface {
	Walk(ctx context.Context, path string, maxBatch int, out stream.Writer[index.Record]) error
}

// MaxBatch is spec §4.5's per-level wildcard fanout cap:
// round(500^(0.5^wildcards)).
func MaxBatch(wildcards int) int {
	return int(math.Round(math.Pow(500, math.Pow(0.5, float64(wildcards)))))
}

// StageA walks the primary store along path and spills one build-file
// record per projected (key, record-pointer, metadata) triple (spec
// §4.5). wildcards is the number of `*` segments in path.
func StageA(ctx context.Context, store PrimaryStore, path string, wildcards int, projector index.Capability, buildFile *pager.File) error {
	w := pager.NewFileWriter(buildFile)

	records := stream.New[index.Record](256)
	records.AutoContinue(true)

	errCh := make(chan error, 1)
	go func() {
		err := store.Walk(ctx, path, MaxBatch(wildcards), records)
		records.Close()
		errCh <- err
	}()

	for {
		rec, ok := records.Pop()
		if !ok {
			break
		}

		projections, err := projector.ProjectBuild(rec)
		if err == customerrors.ErrNotFound {
			// spec §7 NotFound: the primary-store path vanished mid-walk.
			logger.L.WithField("key", rec.Key).Warn("stage A: record vanished, skipping")
			continue
		}
		if err != nil {
			return err
		}
		for _, p := range projections {
			if err := appendBuildEntry(w, p.Key, p.Pointer, p.Metadata); err != nil {
				return err
			}
		}
	}

	return <-errCh
}

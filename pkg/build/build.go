package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"idxengine/config"
	"idxengine/pkg/envelope"
	"idxengine/pkg/index"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
	"idxengine/util/logger"
)

// Run drives the full external build pipeline (spec §4.5) for one index,
// resuming at whatever stage Resume reports (spec §6). On success every
// scratch file is removed and dir/name+".idx" holds the finished index;
// on failure scratch files are left in place for a retry (spec §7 `IO`).
func Run(
	ctx context.Context,
	store PrimaryStore,
	projector index.Capability,
	path string,
	wildcards int,
	info envelope.IndexInfo,
	icfg *config.IndexConfig,
	bcfg *config.BuildConfig,
	dir, name string,
) error {
	stage, err := Resume(dir, name)
	if err != nil {
		return err
	}
	logger.L.WithField("index", name).WithField("stage", int(stage)).Info("build: resuming")

	if stage <= StageA {
		if err := runStageA(ctx, store, projector, path, wildcards, dir, name); err != nil {
			return err
		}
		stage = StageB
	}

	var runFiles []string
	if stage <= StageB {
		runFiles, err = runStageB(dir, name, bcfg.MaxValues, info.CaseSensitive)
		if err != nil {
			return err
		}
		stage = StageC
	} else {
		runFiles, err = filepath.Glob(runFilePattern(dir, name))
		if err != nil {
			return err
		}
		sort.Strings(runFiles)
	}

	if stage <= StageC {
		if err := runStageC(runFiles, dir, name, info.CaseSensitive); err != nil {
			return err
		}
		stage = StageD
	}

	if err := runStageD(dir, name, info, icfg); err != nil {
		return err
	}

	cleanupScratch(dir, name, runFiles)
	logger.L.WithField("index", name).Info("build: complete")
	return nil
}

func runStageA(ctx context.Context, store PrimaryStore, projector index.Capability, path string, wildcards int, dir, name string) error {
	f, err := pager.OpenFile(buildFilePath(dir, name), false, 0644)
	if err != nil {
		return err
	}
	err = StageA(ctx, store, path, wildcards, projector, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func runStageB(dir, name string, maxValues int, caseSensitive bool) ([]string, error) {
	f, err := pager.OpenFile(buildFilePath(dir, name), false, 0644)
	if err != nil {
		return nil, err
	}
	runFiles, err := StageB(f, dir, name, maxValues, caseSensitive)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return runFiles, err
}

func runStageC(runFiles []string, dir, name string, caseSensitive bool) error {
	mf, err := pager.OpenFile(mergeFilePath(dir, name), false, 0644)
	if err != nil {
		return err
	}
	err = StageC(runFiles, mf, caseSensitive)
	if closeErr := mf.Close(); err == nil {
		err = closeErr
	}
	return err
}

func runStageD(dir, name string, info envelope.IndexInfo, icfg *config.IndexConfig) error {
	mf, err := pager.OpenFile(mergeFilePath(dir, name), true, 0644)
	if err != nil {
		return err
	}
	defer mf.Close()

	tmpPath := tmpFilePath(dir, name)
	tmpFile, err := pager.OpenFile(tmpPath, false, 0644)
	if err != nil {
		return err
	}

	treeCfg := tree.BuildConfig{
		MaxEntries:   icfg.MaxEntriesPerNode,
		FillFactor:   icfg.BuildFillFactor,
		LeafSlack:    icfg.LeafSlackFraction,
		MetadataKeys: info.Include,
	}
	treeInfo := envelope.TreeInfo{Class: "default", Version: 1, Entries: 0, Values: 0}

	w := pager.NewFileWriter(tmpFile)
	_, err = StageD(mf, w, info, treeInfo, treeCfg)
	syncErr := tmpFile.Sync()
	closeErr := tmpFile.Close()
	switch {
	case err != nil:
		return err
	case syncErr != nil:
		return syncErr
	case closeErr != nil:
		return closeErr
	}

	return os.Rename(tmpPath, finalFilePath(dir, name))
}

func cleanupScratch(dir, name string, runFiles []string) {
	_ = os.Remove(buildFilePath(dir, name))
	_ = os.Remove(mergeFilePath(dir, name))
	for _, rf := range runFiles {
		_ = os.Remove(rf)
	}
}

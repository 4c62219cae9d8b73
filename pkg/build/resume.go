package build

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stage identifies where the build driver should resume after a restart
// (spec §6: "presence of merge means Stage B completed; presence of build
// only means Stage A completed; the driver picks up at the next stage").
type Stage int

const (
	StageA Stage = iota
	StageB
	StageC
	StageD
)

func buildFilePath(dir, name string) string {
	return filepath.Join(dir, name+".idx.build")
}

func runFilePattern(dir, name string) string {
	return filepath.Join(dir, name+".idx.build.[0-9]*")
}

func mergeFilePath(dir, name string) string {
	return filepath.Join(dir, name+".idx.build.merge")
}

func tmpFilePath(dir, name string) string {
	return filepath.Join(dir, name+".idx.tmp")
}

func finalFilePath(dir, name string) string {
	return filepath.Join(dir, name+".idx")
}

func runFilePath(dir, name string, n int) string {
	return fmt.Sprintf("%s.%d", buildFilePath(dir, name), n)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Resume inspects dir's scratch files for index name and reports which
// stage a (re)started build should begin at: merge present → Stage D;
// run files present (no merge) → Stage C; only the build file present →
// Stage B; nothing present → Stage A.
func Resume(dir, name string) (Stage, error) {
	if exists(mergeFilePath(dir, name)) {
		return StageD, nil
	}
	runs, err := filepath.Glob(runFilePattern(dir, name))
	if err != nil {
		return StageA, err
	}
	if len(runs) > 0 {
		return StageC, nil
	}
	if exists(buildFilePath(dir, name)) {
		return StageB, nil
	}
	return StageA, nil
}

package attach

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/shinji-kodama/diag-attach/internal/model"
)

const perfDataPrefix = "hsperfdata_"

// listDescriptors finds JVMs through their hsperfdata files under roots and
// through the process table. The result is sorted by PID.
func listDescriptors(ctx context.Context, roots []string, logger *slog.Logger) ([]model.Descriptor, error) {
	seen := make(map[int]bool)
	var out []model.Descriptor

	for _, pid := range perfDataPIDs(roots) {
		if seen[pid] {
			continue
		}
		// hsperfdata files outlive crashed JVMs.
		exists, err := process.PidExistsWithContext(ctx, int32(pid))
		if err != nil || !exists {
			continue
		}
		seen[pid] = true
		out = append(out, model.Descriptor{
			ID:          strconv.Itoa(pid),
			PID:         pid,
			DisplayName: displayName(ctx, int32(pid)),
			Source:      model.SourcePerfData,
		})
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		logger.Debug("process table enumeration failed", "err", err)
		if len(out) == 0 {
			return nil, err
		}
	}
	for _, proc := range procs {
		pid := int(proc.Pid)
		if seen[pid] {
			continue
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil || !isJavaExecutable(name) {
			continue
		}
		seen[pid] = true
		out = append(out, model.Descriptor{
			ID:          strconv.Itoa(pid),
			PID:         pid,
			DisplayName: displayName(ctx, proc.Pid),
			Source:      model.SourceProcessTable,
		})
	}

	slices.SortFunc(out, func(a, b model.Descriptor) int { return a.PID - b.PID })
	return out, nil
}

// perfDataPIDs returns the numeric entries of every hsperfdata_<user>
// directory under roots. Unreadable directories are skipped.
func perfDataPIDs(roots []string) []int {
	var pids []int
	for _, root := range roots {
		userDirs, err := filepath.Glob(filepath.Join(root, perfDataPrefix+"*"))
		if err != nil {
			continue
		}
		for _, dir := range userDirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				pid, err := strconv.Atoi(e.Name())
				if err != nil || pid <= 0 {
					continue
				}
				pids = append(pids, pid)
			}
		}
	}
	return pids
}

func isJavaExecutable(name string) bool {
	return name == "java" || name == "java.exe" || name == "javaw.exe"
}

func displayName(ctx context.Context, pid int32) string {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	args, err := proc.CmdlineSliceWithContext(ctx)
	if err != nil {
		return ""
	}
	return mainClass(args)
}

// Launcher options followed by a separate value.
var optionsWithValue = map[string]bool{
	"-cp":                   true,
	"-classpath":            true,
	"--class-path":          true,
	"-p":                    true,
	"--module-path":         true,
	"--upgrade-module-path": true,
	"--add-modules":         true,
	"--add-opens":           true,
	"--add-exports":         true,
	"--add-reads":           true,
	"--patch-module":        true,
	"--limit-modules":       true,
}

// mainClass picks the main class, module or jar out of a java command line.
func mainClass(args []string) string {
	if len(args) < 2 {
		return ""
	}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-jar" || arg == "-m" || arg == "--module":
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		case strings.HasPrefix(arg, "--module="):
			return strings.TrimPrefix(arg, "--module=")
		case optionsWithValue[arg]:
			i++
		case strings.HasPrefix(arg, "-"):
		default:
			return arg
		}
	}
	return ""
}

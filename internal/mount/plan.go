package mount

import (
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/bamsammich/moma/internal/filter"
	"github.com/bamsammich/moma/internal/modlist"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/workspace"
)

// Layer is one mod directory merged into the overlay.
type Layer struct {
	Name string
	Dir  string
}

// Plan is the ordered set of layers copied into the merged directory.
// Later layers overwrite files from earlier ones.
type Plan struct {
	Layers []Layer
	Skip   platform.SkipFunc
}

// BuildPlan derives the merge plan for ws. Directories under mods/ that the
// mod list does not track (hand-installed tools such as script extenders)
// come first, sorted by name; installed mods follow in load order. The
// game's merge_exclude rules become the plan's skip function.
func BuildPlan(ws *workspace.Workspace, store *modlist.Store, logger *slog.Logger) (Plan, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rules, err := filter.Parse(ws.Game().MergeExclude)
	if err != nil {
		return Plan{}, err
	}

	list, err := store.Read()
	if err != nil {
		return Plan{}, err
	}
	tracked := make(map[string]bool, len(list.Mods))
	for _, m := range list.Mods {
		tracked[strconv.FormatUint(m.UID, 10)] = true
	}

	fsys := ws.FS()
	dirs, err := fsys.ListDirs(ws.ModsDir())
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	for _, name := range dirs {
		if !tracked[name] {
			plan.Layers = append(plan.Layers, Layer{Name: name, Dir: filepath.Join(ws.ModsDir(), name)})
		}
	}

	order, err := store.InstalledOrder(ws.Game().LoadOrder)
	if err != nil {
		return Plan{}, err
	}
	for _, uid := range order {
		dir := ws.ModDir(uid)
		ok, err := fsys.Exists(dir)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			logger.Warn("installed mod has no files; skipping", "mod_uid", uid, "dir", dir)
			continue
		}
		name := strconv.FormatUint(uid, 10)
		if m, found := list.Mod(uid); found && m.Name != "" {
			name = m.Name
		}
		plan.Layers = append(plan.Layers, Layer{Name: name, Dir: dir})
	}

	if !rules.Empty() {
		plan.Skip = rules.Skip
	}
	return plan, nil
}

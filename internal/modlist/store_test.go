package modlist

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/moma/internal/checksum"
	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/platform/platformtest"
	"github.com/bamsammich/moma/internal/workspace"
)

func newTestStore(t *testing.T) (*Store, *workspace.Workspace) {
	t.Helper()
	game := config.GameConfig{Path: "/fake/skyrimse", ProtonDir: "/fake/proton"}
	ws := workspace.New(t.TempDir(), "skyrimse", game, platform.NewHostFS(), &platformtest.System{})
	require.NoError(t, ws.PrepareFileSystem())
	return NewStore(ws), ws
}

var testMod = Mod{UID: 1, Name: "Test mod"}

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRead_MissingDocumentIsEmpty(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	list, err := store.Read()
	require.NoError(t, err)
	assert.Empty(t, list.Mods)
}

func TestRead_CorruptDocument(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, err := store.Read()
	assert.ErrorIs(t, err, errkind.ErrCorrupt)
}

func TestRead_UnknownStatusIsCorrupt(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	doc := `{"mods":[{"uid":1,"name":"x","archives":[{"file_uid":2,"file_name":"a","archive_path":null,"status":"Exploded"}]}]}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(doc), 0o644))

	_, err := store.Read()
	assert.ErrorIs(t, err, errkind.ErrCorrupt)
}

func TestRead_UnreadableDocument(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	// A directory in place of the document cannot be read, even as root.
	require.NoError(t, os.Mkdir(store.Path(), 0o755))

	_, err := store.Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, errkind.ErrIO)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	want := List{Mods: []Mod{
		{UID: 1, Name: "Test mod", Archives: []Archive{
			{FileUID: 2, FileName: "a.7z", ArchivePath: StringPtr("/w/staging/1/archives/a.7z"), Status: Downloaded()},
			{FileUID: 3, FileName: "b.zip", Status: Failed("interrupted")},
		}},
		{UID: 9, Name: "Other", Archives: []Archive{
			{FileUID: 10, FileName: "c.zip", Status: Installed(), Checksum: "abc"},
			{FileUID: 11, FileName: "d.zip", Status: Downloading()},
		}},
	}}
	require.NoError(t, store.Write(want))

	got, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDocumentFormat(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.7z", Status: Failed("boom")}))
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 3, FileName: "b.7z", Status: Downloading()}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": {`)
	assert.Contains(t, string(data), `"Failed": "boom"`)
	assert.Contains(t, string(data), `"status": "Downloading"`)
	assert.Contains(t, string(data), `"archive_path": null`)
	assert.NotContains(t, string(data), "checksum")
}

func TestArchiveStatus_UnknownKey(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	status, err := store.ArchiveStatus(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Unknown(), status)

	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.7z", Status: Downloading()}))
	status, err = store.ArchiveStatus(1, 99)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, status.Kind)
}

func TestAddArchive_NoDuplicates(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.7z", Status: Downloading()}))
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.7z", Status: Downloaded()}))
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 3, FileName: "b.7z", Status: Downloading()}))

	list, err := store.Read()
	require.NoError(t, err)
	require.Len(t, list.Mods, 1)
	require.Len(t, list.Mods[0].Archives, 2)
	assert.Equal(t, Downloading(), list.Mods[0].Archives[0].Status, "existing archive is not replaced")
}

func TestUpdateArchive_NotFound(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	err := store.UpdateArchive(1, 2, func(a *Archive) { a.Status = Downloaded() })
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestUpdateArchive_InstalledIsTerminal(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.7z", Status: Installed()}))

	for _, next := range []Status{Unknown(), Downloading(), Downloaded(), Failed("x")} {
		err := store.UpdateArchive(1, 2, func(a *Archive) { a.Status = next })
		assert.ErrorIs(t, err, errkind.ErrPrecondition, next.String())
	}

	status, err := store.ArchiveStatus(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Installed(), status)

	// Non-status fields may still change.
	require.NoError(t, store.UpdateArchive(1, 2, func(a *Archive) { a.FileName = "renamed.7z" }))
}

func TestUpdateArchive_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AddArchive(testMod, Archive{FileUID: uint64(100 + i), FileName: "f", Status: Downloading()}))
		}()
	}
	wg.Wait()

	list, err := store.Read()
	require.NoError(t, err)
	require.Len(t, list.Mods, 1)
	assert.Len(t, list.Mods[0].Archives, n)
}

func TestStageArchive(t *testing.T) {
	t.Parallel()
	store, ws := newTestStore(t)

	src := store.ArchiveDest("a.7z")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0o644))
	archive := Archive{FileUID: 2, FileName: "a.7z", ArchivePath: StringPtr(src), Status: Downloading()}
	require.NoError(t, store.AddArchive(testMod, archive))

	require.NoError(t, store.StageArchive(testMod, archive))

	target := filepath.Join(ws.StagingArchivesDir(1), "a.7z")
	assert.FileExists(t, target)
	assert.NoFileExists(t, src)

	_, got, err := store.Lookup(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Downloaded(), got.Status)
	assert.Equal(t, target, got.Path())
}

func TestStageArchive_RequiresPath(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	archive := Archive{FileUID: 2, FileName: "a.7z", Status: Downloading()}
	require.NoError(t, store.AddArchive(testMod, archive))

	err := store.StageArchive(testMod, archive)
	assert.ErrorIs(t, err, errkind.ErrPrecondition)

	status, err := store.ArchiveStatus(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Downloading(), status)
}

func stagedZip(t *testing.T, store *Store, ws *workspace.Workspace, files map[string]string) Archive {
	t.Helper()
	dir := ws.StagingArchivesDir(1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "a.zip")
	writeTestZip(t, path, files)
	archive := Archive{FileUID: 2, FileName: "a.zip", ArchivePath: StringPtr(path), Status: Downloaded()}
	require.NoError(t, store.AddArchive(testMod, archive))
	return archive
}

func TestInstallArchive(t *testing.T) {
	t.Parallel()
	store, ws := newTestStore(t)
	archive := stagedZip(t, store, ws, map[string]string{"Data/plugin.esp": "esp"})

	sum, err := checksum.File(archive.Path())
	require.NoError(t, err)
	require.NoError(t, store.UpdateArchive(1, 2, func(a *Archive) { a.Checksum = sum }))
	archive.Checksum = sum

	require.NoError(t, store.InstallArchive(testMod, archive))

	got, err := os.ReadFile(filepath.Join(ws.ModDir(1), "Data", "plugin.esp"))
	require.NoError(t, err)
	assert.Equal(t, "esp", string(got))
	assert.NoFileExists(t, archive.Path())

	_, stored, err := store.Lookup(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Installed(), stored.Status)
	assert.Nil(t, stored.ArchivePath)
}

func TestInstallArchive_CorruptLeavesStatus(t *testing.T) {
	t.Parallel()
	store, ws := newTestStore(t)
	dir := ws.StagingArchivesDir(1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0o644))
	archive := Archive{FileUID: 2, FileName: "broken.zip", ArchivePath: StringPtr(path), Status: Downloaded()}
	require.NoError(t, store.AddArchive(testMod, archive))

	err := store.InstallArchive(testMod, archive)
	assert.ErrorIs(t, err, errkind.ErrCorrupt)

	status, err := store.ArchiveStatus(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Downloaded(), status)
	assert.FileExists(t, path)
}

func TestInstallArchive_UnsupportedLeavesStatus(t *testing.T) {
	t.Parallel()
	store, ws := newTestStore(t)
	dir := ws.StagingArchivesDir(1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "a.rar")
	require.NoError(t, os.WriteFile(path, []byte("Rar!"), 0o644))
	archive := Archive{FileUID: 2, FileName: "a.rar", ArchivePath: StringPtr(path), Status: Downloaded()}
	require.NoError(t, store.AddArchive(testMod, archive))

	err := store.InstallArchive(testMod, archive)
	assert.ErrorIs(t, err, errkind.ErrUnsupported)

	status, err := store.ArchiveStatus(1, 2)
	require.NoError(t, err)
	assert.Equal(t, Downloaded(), status)
}

func TestInstallArchive_ChecksumMismatch(t *testing.T) {
	t.Parallel()
	store, ws := newTestStore(t)
	archive := stagedZip(t, store, ws, map[string]string{"a.txt": "a"})
	archive.Checksum = "0000"

	err := store.InstallArchive(testMod, archive)
	assert.ErrorIs(t, err, errkind.ErrCorrupt)
	assert.FileExists(t, archive.Path())
	assert.NoDirExists(t, ws.ModDir(1))
}

func TestArchivesWithStatus(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a", Status: Downloaded()}))
	require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 3, FileName: "b", Status: Installed()}))
	require.NoError(t, store.AddArchive(Mod{UID: 5, Name: "Five"}, Archive{FileUID: 6, FileName: "c", Status: Downloaded()}))

	mods, err := store.ArchivesWithStatus(KindDownloaded)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, []Archive{{FileUID: 2, FileName: "a", Status: Downloaded()}}, mods[0].Archives)
	assert.Equal(t, uint64(5), mods[1].UID)
}

func TestInstalledOrder(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	for _, uid := range []uint64{1, 2, 3, 4} {
		status := Installed()
		if uid == 3 {
			status = Downloaded()
		}
		require.NoError(t, store.AddArchive(Mod{UID: uid, Name: "m"}, Archive{FileUID: uid * 10, FileName: "f", Status: status}))
	}

	order, err := store.InstalledOrder(nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 4}, order)

	order, err = store.InstalledOrder([]uint64{4, 3, 99, 1, 4})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 1, 2}, order)
}

func TestBeginDownload(t *testing.T) {
	t.Parallel()
	archive := Archive{FileUID: 2, FileName: "a.zip", ArchivePath: StringPtr("/cache/a.zip")}

	tests := []struct {
		name    string
		prev    Status
		claim   func(Status) error
		wantErr error
		want    Status
	}{
		{name: "new archive", prev: Unknown(), want: Downloading()},
		{name: "retry failed", prev: Failed("interrupted"), want: Downloading()},
		{name: "installed", prev: Installed(), wantErr: errkind.ErrPrecondition, want: Installed()},
		{name: "downloaded", prev: Downloaded(), wantErr: errkind.ErrPrecondition, want: Downloaded()},
		{
			name:  "live download",
			prev:  Downloading(),
			claim: func(Status) error {
				return errkind.Errorf(errkind.ErrPrecondition, "claim", "busy")
			},
			wantErr: errkind.ErrPrecondition,
			want:    Downloading(),
		},
		{name: "stale download", prev: Downloading(), claim: func(Status) error { return nil }, want: Downloading()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, _ := newTestStore(t)
			if tt.prev.Kind != KindUnknown {
				require.NoError(t, store.AddArchive(testMod, Archive{FileUID: 2, FileName: "a.zip", Status: tt.prev, Checksum: "old"}))
			}

			var seen *Status
			claim := func(prev Status) error {
				seen = &prev
				if tt.claim != nil {
					return tt.claim(prev)
				}
				return nil
			}
			err := store.BeginDownload(testMod, archive, claim)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.NotNil(t, seen)
				assert.Equal(t, tt.prev, *seen)
			}

			_, got, err := store.Lookup(testMod.UID, 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			if tt.wantErr == nil {
				assert.Equal(t, "/cache/a.zip", got.Path())
				assert.Empty(t, got.Checksum)
			}
		})
	}
}

func TestBeginDownload_ClaimRunsUnderLock(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	archive := Archive{FileUID: 2, FileName: "a.zip"}

	// Every claimant but the first sees the archive already Downloading.
	var mu sync.Mutex
	claimed := 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.BeginDownload(testMod, archive, func(prev Status) error {
				if prev.Kind == KindDownloading {
					return errkind.Errorf(errkind.ErrPrecondition, "claim", "busy")
				}
				mu.Lock()
				claimed++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
	list, err := store.Read()
	require.NoError(t, err)
	require.Len(t, list.Mods, 1)
	assert.Len(t, list.Mods[0].Archives, 1)
}

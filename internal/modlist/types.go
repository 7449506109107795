package modlist

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the variant of an archive's status.
type Kind int

const (
	KindUnknown Kind = iota
	KindDownloading
	KindDownloaded
	KindInstalled
	KindFailed
)

var kindNames = map[Kind]string{
	KindUnknown:     "Unknown",
	KindDownloading: "Downloading",
	KindDownloaded:  "Downloaded",
	KindInstalled:   "Installed",
	KindFailed:      "Failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Status is an archive's lifecycle state. Reason is only set for Failed.
//
// Installed is terminal. Failed may be retried by moving back to
// Downloading. Unknown is never persisted; it is what a lookup returns when
// nothing matches.
type Status struct {
	Kind   Kind
	Reason string
}

func Unknown() Status { return Status{Kind: KindUnknown} }
func Downloading() Status { return Status{Kind: KindDownloading} }
func Downloaded() Status { return Status{Kind: KindDownloaded} }
func Installed() Status { return Status{Kind: KindInstalled} }

// Failed returns a failure status carrying reason.
func Failed(reason string) Status { return Status{Kind: KindFailed, Reason: reason} }

func (s Status) String() string {
	if s.Kind == KindFailed {
		return fmt.Sprintf("Failed (%s)", s.Reason)
	}
	return s.Kind.String()
}

// MarshalJSON writes unit variants as a bare string ("Downloaded") and a
// failure as {"Failed": "reason"}.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.Kind == KindFailed {
		return json.Marshal(map[string]string{kindNames[KindFailed]: s.Reason})
	}
	name, ok := kindNames[s.Kind]
	if !ok {
		return nil, fmt.Errorf("marshal status: unknown kind %d", int(s.Kind))
	}
	return json.Marshal(name)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		kind, ok := ParseKind(name)
		if !ok || kind == KindFailed {
			return fmt.Errorf("unknown archive status %q", name)
		}
		*s = Status{Kind: kind}
		return nil
	}

	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("archive status: %w", err)
	}
	reason, ok := tagged[kindNames[KindFailed]]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("unknown archive status %s", data)
	}
	*s = Failed(reason)
	return nil
}

// MarshalYAML mirrors MarshalJSON for `mods list --output yaml`.
func (s Status) MarshalYAML() (any, error) {
	if s.Kind == KindFailed {
		return map[string]string{kindNames[KindFailed]: s.Reason}, nil
	}
	name, ok := kindNames[s.Kind]
	if !ok {
		return nil, fmt.Errorf("marshal status: unknown kind %d", int(s.Kind))
	}
	return name, nil
}

// Archive is one downloadable file of a mod. Its identity is
// (mod uid, FileUID).
type Archive struct {
	FileUID     uint64  `json:"file_uid" yaml:"file_uid"`
	FileName    string  `json:"file_name" yaml:"file_name"`
	ArchivePath *string `json:"archive_path" yaml:"archive_path"`
	Status      Status  `json:"status" yaml:"status"`
	Checksum    string  `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Path returns the archive's location on disk, or "" if it has none.
func (a Archive) Path() string {
	if a.ArchivePath == nil {
		return ""
	}
	return *a.ArchivePath
}

// Mod is a source-assigned mod and its archives.
type Mod struct {
	UID      uint64    `json:"uid" yaml:"uid"`
	Name     string    `json:"name" yaml:"name"`
	Archives []Archive `json:"archives" yaml:"archives"`
}

// Installed reports whether any of the mod's archives is installed.
func (m Mod) Installed() bool {
	for _, a := range m.Archives {
		if a.Status.Kind == KindInstalled {
			return true
		}
	}
	return false
}

// List is the persisted mod list document.
type List struct {
	Mods []Mod `json:"mods" yaml:"mods"`
}

// Mod returns the mod with the given uid.
func (l *List) Mod(uid uint64) (*Mod, bool) {
	for i := range l.Mods {
		if l.Mods[i].UID == uid {
			return &l.Mods[i], true
		}
	}
	return nil, false
}

// Archive returns the archive identified by (modUID, fileUID).
func (l *List) Archive(modUID, fileUID uint64) (*Archive, bool) {
	m, ok := l.Mod(modUID)
	if !ok {
		return nil, false
	}
	for i := range m.Archives {
		if m.Archives[i].FileUID == fileUID {
			return &m.Archives[i], true
		}
	}
	return nil, false
}

// StringPtr is a helper for building Archive.ArchivePath.
func StringPtr(s string) *string { return &s }

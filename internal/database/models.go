package database

import (
	"time"
)

// MediaSource represents a configured remote share to ingest audio from.
type MediaSource struct {
	ID           uint32    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Provider     string    `gorm:"not null;default:'smb'" json:"provider"` // smb, local
	Host         string    `json:"host"`                                   // host[:port] for remote providers
	ShareName    string    `json:"share_name"`                             // SMB share name
	RootPath     string    `gorm:"not null" json:"root_path"`              // path within the share to scan from
	CredentialID *uint32   `gorm:"index" json:"credential_id,omitempty"`
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Credential references stored share credentials. Secret management itself is
// external; this row only carries what the SMB dialer needs.
type Credential struct {
	ID        uint32    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scan job status values. A job is terminal once completed or failed.
const (
	ScanStatusPending   = "pending"
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// ScanJob represents a background scanning operation. At most one job is
// non-terminal system-wide; the scan orchestrator enforces that in memory and
// mirrors progress into this row for polling and history.
type ScanJob struct {
	ID             uint32      `gorm:"primaryKey" json:"id"`
	SourceID       uint32      `gorm:"not null;index" json:"source_id"`
	Source         MediaSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	Status         string      `gorm:"not null;default:'pending'" json:"status"`
	FilesFound     int         `gorm:"default:0" json:"files_found"`
	FilesProcessed int         `gorm:"default:0" json:"files_processed"`
	FilesSkipped   int         `gorm:"default:0" json:"files_skipped"`
	EntriesCreated int         `gorm:"default:0" json:"entries_created"`
	AliasesCreated int         `gorm:"default:0" json:"aliases_created"`
	StatusMessage  string      `json:"status_message,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// LibraryEntry is the canonical record for one piece of physical audio
// content. The (size, content hash) fingerprint is unique across the entire
// library: the same bytes visible under several shares or paths still map to
// exactly one entry, with the extra locations recorded as EntryAlias rows.
// Hash is empty until another file with the same size forces the comparison;
// the scanner backfills it at that point.
type LibraryEntry struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	SourceID  uint32 `gorm:"not null;index" json:"source_id"`
	Path      string `gorm:"not null" json:"path"` // share-relative canonical path
	SizeBytes int64  `gorm:"not null;uniqueIndex:idx_entries_fingerprint" json:"size_bytes"`
	Hash      string `gorm:"not null;uniqueIndex:idx_entries_fingerprint" json:"hash"`

	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtist string `json:"album_artist"`
	Genre       string `json:"genre"`
	Year        int    `json:"year"`
	TrackNumber int    `json:"track_number"`

	Container   string    `json:"container"`    // e.g. mp3, flac, ogg
	Duration    int       `json:"duration"`     // seconds, 0 when unknown
	BitrateKbps int       `json:"bitrate_kbps"` // 0 when unknown
	ModTime     time.Time `json:"mod_time"`
	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntryAlias records a secondary physical location of an entry's content.
// Kept for future duplicate-cleanup tooling; the canonical entry keeps its
// tags, favorites and playlist memberships.
type EntryAlias struct {
	ID        uint32    `gorm:"primaryKey" json:"id"`
	EntryID   string    `gorm:"type:varchar(36);not null;index" json:"entry_id"`
	SourceID  uint32    `gorm:"not null;index" json:"source_id"`
	Path      string    `gorm:"not null" json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

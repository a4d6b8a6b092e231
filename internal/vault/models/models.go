// Package models defines the typed records the vault engine persists
// and returns. The source of truth for on-disk shapes is the JSON
// encoding of these structs inside encrypted payloads.
package models

// SchemaVersion is the current metadata index format version. Indexes
// persisted with an older version are migrated on load.
const SchemaVersion = 2

// DefaultMime is applied when a file record carries no MIME type and
// when migration fills defaults.
const DefaultMime = "text/markdown"

// ImportDefaultMime is applied to imported items without MIME info.
const ImportDefaultMime = "application/octet-stream"

// FileRecord is one entry of the metadata index: everything the engine
// knows about a logical filename without touching its chain.
type FileRecord struct {
	Mime        string `json:"mime"`
	ChainID     string `json:"chainId"`
	HeadVersion int64  `json:"headVersion"`

	// UI statistics, refreshed on every save.
	LastModified       int64 `json:"lastModified"` // ms epoch
	LastSize           int64 `json:"lastSize"`
	LastCompressedSize int64 `json:"lastCompressedSize"`

	// ActiveKey locates the head version's ciphertext in the files
	// collection; nil before the first write.
	ActiveKey *string `json:"activeKey"`
}

// MetaIndex is the whole-document metadata index. Writes always rewrite
// the full document.
type MetaIndex struct {
	Files         map[string]*FileRecord `json:"files"`
	SchemaVersion int                    `json:"schemaVersion"`
	LastSaved     int64                  `json:"lastSaved"`
}

// NewMetaIndex returns an empty index at the current schema version.
func NewMetaIndex() *MetaIndex {
	return &MetaIndex{
		Files:         make(map[string]*FileRecord),
		SchemaVersion: SchemaVersion,
	}
}

// FileSummary is the per-file listing row emitted by init, save, delete
// and rename.
type FileSummary struct {
	Name               string `json:"name"`
	Mime               string `json:"mime"`
	HeadVersion        int64  `json:"headVersion"`
	LastSize           int64  `json:"lastSize"`
	LastCompressedSize int64  `json:"lastCompressedSize"`
	LastModified       int64  `json:"lastModified"`
}

// VersionRange reports the first and last version numbers still
// retained in a pruned chain.
type VersionRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// LoadResult carries a decrypted plaintext back to the caller. The
// caller owns Data.
type LoadResult struct {
	Data              []byte
	Mime              string
	Size              int64
	Version           int64
	CurrentVersion    int64
	AvailableVersions VersionRange

	// Recovered is set when the requested head was missing and the
	// engine walked back to an earlier surviving version.
	Recovered bool
}

// SaveResult reports the outcome of a save. Unchanged means the content
// hash matched the head version and nothing was written.
type SaveResult struct {
	Unchanged bool
	Version   int64
	Files     []FileSummary
}

// Fingerprint identifies the vault (Base) and the current unlock
// session (Session) without exposing key material. Base is stable
// across re-inits of the same vault; Session is fresh per init.
type Fingerprint struct {
	Base    string `json:"base"`
	Session string `json:"session"`
}

// RecoveryInfo summarises what init had to rebuild. Nil when the vault
// opened cleanly.
type RecoveryInfo struct {
	DatabaseRebuilt  bool     `json:"databaseRebuilt"`
	MetadataRebuilt  bool     `json:"metadataRebuilt"`
	RecoveredFiles   []string `json:"recoveredFiles,omitempty"`
	DiscardedMessage string   `json:"discardedMessage,omitempty"`
}

// InitResult is the outcome of unlocking a vault.
type InitResult struct {
	Files        []FileSummary
	Fingerprint  Fingerprint
	RecoveryInfo *RecoveryInfo
}

// ImportedFile is the payload of a successful import item, shaped for a
// subsequent save call.
type ImportedFile struct {
	Filename string
	Mime     string
	Data     []byte
	Size     int64
}

// ImportItem is one result row of import-zip / import-files.
type ImportItem struct {
	Name    string
	Success bool
	Data    *ImportedFile
	Error   string
}

// VersionInfo is one row of a file's history listing.
type VersionInfo struct {
	Version int64  `json:"version"`
	Hash    string `json:"hash"`
	Size    int64  `json:"size"`
	TS      int64  `json:"ts"` // ms epoch
}

// IntegrityIssue describes one problem found by integrity-check.
type IntegrityIssue struct {
	File    string `json:"file"`
	Version int64  `json:"version,omitempty"`
	Detail  string `json:"detail"`
}

// IntegrityReport is the outcome of integrity-check.
type IntegrityReport struct {
	Issues         []IntegrityIssue `json:"issues"`
	FilesRemoved   []string         `json:"filesRemoved"`
	OrphansRemoved int              `json:"orphansRemoved"`
}

// Progress reports long-operation advancement: completed of total, with
// the name currently being processed.
type Progress func(completed, total int, current string)

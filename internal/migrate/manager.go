package migrate

import (
	"fmt"
	"log/slog"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/storage"
)

// oldestKnownVersion is what an unset recorded version is treated as: older
// than the entire catalog, so everything runs.
const oldestKnownVersion = "0.0.0"

// Migration is one catalog entry. Run must be idempotent: it checks for its
// own post-condition before mutating and returns immediately when already
// satisfied, including when a prior interrupted attempt left a recognizable
// partial state behind.
type Migration struct {
	Version string
	// Description is logged when the migration executes.
	Description string
	// RequiresRebuild recreates the Schema Store's tables before Run.
	RequiresRebuild bool
	// RequiresLinkReextract rebuilds the link graph after Run.
	RequiresLinkReextract bool
	// Run is the optional transformation function.
	Run func(m *Manager) error
}

// Result describes what one migration pass did.
type Result struct {
	Migrated           bool     `json:"migrated"`
	RebuiltDatabase    bool     `json:"rebuiltDatabase"`
	MigratedLinks      bool     `json:"migratedLinks"`
	FromVersion        string   `json:"fromVersion"`
	ToVersion          string   `json:"toVersion"`
	ExecutedMigrations []string `json:"executedMigrations"`
}

// Manager owns the migration catalog and runs the pending subsequence.
type Manager struct {
	db         *index.DB
	store      storage.Provider
	maintainer *index.Maintainer
	logger     *slog.Logger
	catalog    []Migration

	// relinkIDs collects notes whose content changed during the current
	// migration; nil means "re-extract the whole graph" when a migration
	// declares RequiresLinkReextract, while a non-nil empty slice means
	// nothing changed.
	relinkIDs    []string
	reindexPaths []string
}

// NewManager assembles the Manager with the standard catalog. The catalog is
// an ordered, immutable list fixed at construction; nothing registers into
// it dynamically.
func NewManager(db *index.DB, store storage.Provider, logger *slog.Logger) *Manager {
	m := &Manager{
		db:         db,
		store:      store,
		maintainer: index.NewMaintainer(db, store, logger),
		logger:     logger,
	}
	m.catalog = []Migration{
		{
			Version:         "1.0.0",
			Description:     "baseline schema",
			RequiresRebuild: true,
		},
		{
			Version:     "1.1.0",
			Description: "add content_hash, size, mtime, archived columns",
			Run:         (*Manager).migrateAddColumns,
		},
		{
			Version:               "1.2.0",
			Description:           "reassign note identities to immutable tokens",
			RequiresLinkReextract: true,
			Run:                   (*Manager).migrateIdentityRemap,
		},
		{
			Version:               "1.3.0",
			Description:           "normalize wikilinks to identity-addressed form",
			RequiresLinkReextract: true,
			Run:                   (*Manager).migrateWikilinks,
		},
	}
	return m
}

// CurrentVersion is the newest version in the catalog.
func (m *Manager) CurrentVersion() string {
	return m.catalog[len(m.catalog)-1].Version
}

// Run executes, in order, every catalog entry newer than the recorded schema
// version. The recorded version advances after each entry commits, so an
// interrupted run resumes where it stopped. Any error aborts the remaining
// entries; backup tables created along the way are deliberately left in
// place for resume or inspection — there is no rollback of entries that
// already completed.
func (m *Manager) Run() (*Result, error) {
	m.relinkIDs = nil
	m.reindexPaths = nil

	from, err := m.db.SchemaVersion()
	if err != nil {
		return nil, err
	}
	recorded := from
	if recorded == "" {
		recorded = oldestKnownVersion
	}

	res := &Result{
		FromVersion: recorded,
		ToVersion:   m.CurrentVersion(),
	}

	for _, mig := range m.catalog {
		if CompareVersions(mig.Version, recorded) <= 0 {
			continue
		}

		m.logger.Info("migration: running",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description))

		if mig.RequiresRebuild {
			if err := m.db.InitSchema(); err != nil {
				return nil, fmt.Errorf("migrate %s: rebuild schema: %w", mig.Version, err)
			}
			res.RebuiltDatabase = true
		}

		if mig.Run != nil {
			if err := mig.Run(m); err != nil {
				return nil, fmt.Errorf("migrate %s: %w", mig.Version, err)
			}
		}

		if mig.RequiresLinkReextract {
			if err := m.maintainer.ReextractLinks(m.relinkIDs); err != nil {
				return nil, fmt.Errorf("migrate %s: reextract links: %w", mig.Version, err)
			}
			res.MigratedLinks = true
			m.relinkIDs = nil
		}

		if err := m.db.SetSchemaVersion(mig.Version); err != nil {
			return nil, fmt.Errorf("migrate %s: record version: %w", mig.Version, err)
		}
		res.ExecutedMigrations = append(res.ExecutedMigrations, mig.Version)
	}

	res.Migrated = len(res.ExecutedMigrations) > 0
	if len(m.reindexPaths) > 0 {
		m.logger.Warn("migration: files missing on disk, flagged for rescan",
			slog.Int("count", len(m.reindexPaths)))
	}
	return res, nil
}

// FlaggedForReindex returns vault paths whose files were missing during the
// last run; their rows carry an empty content_hash so the next rescan or
// reconcile pass picks them up.
func (m *Manager) FlaggedForReindex() []string {
	return m.reindexPaths
}

// DropBackups removes the shadow backup tables left by destructive
// migrations. It is only called when the operator has opted out of backup
// retention; the default is to keep them.
func (m *Manager) DropBackups() error {
	db := m.db.Writer()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE '%_backup'`)
	if err != nil {
		return fmt.Errorf("migrate: list backups: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := db.Exec(`DROP TABLE IF EXISTS ` + name); err != nil {
			return fmt.Errorf("migrate: drop backup %s: %w", name, err)
		}
		m.logger.Info("migration: dropped backup table", slog.String("table", name))
	}
	return nil
}

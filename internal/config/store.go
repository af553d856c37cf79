package config

import (
	"fmt"
	"sort"
)

type assetKey struct {
	projectID int64
	token     string
}

// Store holds the shared market configuration. Mutations bump a global
// version; sub-accounts cache a Snapshot and refresh it explicitly, so a
// config push never reinterprets an order already in flight.
type Store struct {
	version  int64
	projects map[int64]ProjectConfig
	assets   map[assetKey]AssetConfig
	borrows  map[assetKey]BorrowConfig
}

func NewStore() *Store {
	return &Store{
		version:  1,
		projects: make(map[int64]ProjectConfig),
		assets:   make(map[assetKey]AssetConfig),
		borrows:  make(map[assetKey]BorrowConfig),
	}
}

func (s *Store) Version() int64 {
	return s.version
}

// SetProjectConfig installs or replaces a project's shared configuration.
func (s *Store) SetProjectConfig(cfg ProjectConfig) error {
	if err := ValidateProjectConfig(cfg); err != nil {
		return fmt.Errorf("invalid project config for %d: %w", cfg.ProjectID, err)
	}
	s.projects[cfg.ProjectID] = cfg
	s.version++
	return nil
}

// SetAssetConfig installs the per-asset rates for a project.
func (s *Store) SetAssetConfig(projectID int64, token string, cfg AssetConfig) error {
	if err := ValidateAssetConfig(cfg); err != nil {
		return fmt.Errorf("invalid asset config for %d/%s: %w", projectID, token, err)
	}
	s.assets[assetKey{projectID, token}] = cfg
	s.version++
	return nil
}

// SetBorrowConfig installs the borrow class and cap for a token.
func (s *Store) SetBorrowConfig(projectID int64, token string, cfg BorrowConfig) error {
	if err := ValidateBorrowConfig(cfg); err != nil {
		return fmt.Errorf("invalid borrow config for %d/%s: %w", projectID, token, err)
	}
	s.borrows[assetKey{projectID, token}] = cfg
	s.version++
	return nil
}

func (s *Store) ProjectConfig(projectID int64) (ProjectConfig, bool) {
	cfg, ok := s.projects[projectID]
	return cfg, ok
}

func (s *Store) AssetConfig(projectID int64, token string) (AssetConfig, bool) {
	cfg, ok := s.assets[assetKey{projectID, token}]
	return cfg, ok
}

func (s *Store) BorrowConfig(projectID int64, token string) (BorrowConfig, bool) {
	cfg, ok := s.borrows[assetKey{projectID, token}]
	return cfg, ok
}

// AssetEntry pairs a (project, token) key with its asset config for
// snapshot transport.
type AssetEntry struct {
	ProjectID int64
	Token     string
	Config    AssetConfig
}

// BorrowEntry pairs a (project, token) key with its borrow config for
// snapshot transport.
type BorrowEntry struct {
	ProjectID int64
	Token     string
	Config    BorrowConfig
}

// StoreState is the exportable form of the store for snapshots. Entries
// are sorted so serialization is deterministic.
type StoreState struct {
	Version  int64
	Projects []ProjectConfig
	Assets   []AssetEntry
	Borrows  []BorrowEntry
}

// Dump exports the full store state.
func (s *Store) Dump() StoreState {
	st := StoreState{Version: s.version}
	for _, cfg := range s.projects {
		st.Projects = append(st.Projects, cfg)
	}
	sort.Slice(st.Projects, func(i, j int) bool {
		return st.Projects[i].ProjectID < st.Projects[j].ProjectID
	})
	for key, cfg := range s.assets {
		st.Assets = append(st.Assets, AssetEntry{key.projectID, key.token, cfg})
	}
	sort.Slice(st.Assets, func(i, j int) bool {
		if st.Assets[i].ProjectID != st.Assets[j].ProjectID {
			return st.Assets[i].ProjectID < st.Assets[j].ProjectID
		}
		return st.Assets[i].Token < st.Assets[j].Token
	})
	for key, cfg := range s.borrows {
		st.Borrows = append(st.Borrows, BorrowEntry{key.projectID, key.token, cfg})
	}
	sort.Slice(st.Borrows, func(i, j int) bool {
		if st.Borrows[i].ProjectID != st.Borrows[j].ProjectID {
			return st.Borrows[i].ProjectID < st.Borrows[j].ProjectID
		}
		return st.Borrows[i].Token < st.Borrows[j].Token
	})
	return st
}

// Restore replaces the store's contents from a snapshot, bypassing
// validation and version bumps.
func (s *Store) Restore(st StoreState) {
	s.version = st.Version
	s.projects = make(map[int64]ProjectConfig, len(st.Projects))
	for _, cfg := range st.Projects {
		s.projects[cfg.ProjectID] = cfg
	}
	s.assets = make(map[assetKey]AssetConfig, len(st.Assets))
	for _, e := range st.Assets {
		s.assets[assetKey{e.ProjectID, e.Token}] = e.Config
	}
	s.borrows = make(map[assetKey]BorrowConfig, len(st.Borrows))
	for _, e := range st.Borrows {
		s.borrows[assetKey{e.ProjectID, e.Token}] = e.Config
	}
}

// Snapshot is the config view a sub-account caches until its next
// explicit refresh.
type Snapshot struct {
	Version int64
	Project ProjectConfig
	Asset   AssetConfig
	Borrow  BorrowConfig
}

// Snapshot resolves the current view for one (project, asset) pair.
func (s *Store) Snapshot(projectID int64, assetToken string) (Snapshot, error) {
	project, ok := s.projects[projectID]
	if !ok {
		return Snapshot{}, fmt.Errorf("project %d not configured", projectID)
	}
	asset, ok := s.assets[assetKey{projectID, assetToken}]
	if !ok {
		return Snapshot{}, fmt.Errorf("asset %d/%s not configured", projectID, assetToken)
	}
	borrow := s.borrows[assetKey{projectID, assetToken}]

	return Snapshot{
		Version: s.version,
		Project: project,
		Asset:   asset,
		Borrow:  borrow,
	}, nil
}

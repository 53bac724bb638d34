package cttso_pieriandx_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ProjectMapping configures one registry project: panel, sample type,
// identified flag, and an optional default disease term. Owner and name may
// be the wildcard "*".
type ProjectMapping struct {
	ProjectOwner      string `mapstructure:"project_owner"`
	ProjectName       string `mapstructure:"project_name"`
	Panel             string `mapstructure:"panel"`
	SampleType        string `mapstructure:"sample_type"`
	IsIdentified      bool   `mapstructure:"is_identified"`
	DefaultSnomedTerm string `mapstructure:"default_snomed_term"`
}

const mappingWildcard = "*"

// ProjectMappingStore holds the operator-supplied project mapping table and
// reloads it when the backing file changes, so mapping edits take effect
// without a restart.
type ProjectMappingStore struct {
	path    string
	mu      sync.RWMutex
	entries []ProjectMapping
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

func NewProjectMappingStore(path string, logger *slog.Logger) (*ProjectMappingStore, error) {
	s := &ProjectMappingStore{path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("Failed to create mapping file watcher: %v", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("Failed to watch mapping file '%s': %v", path, err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

func (s *ProjectMappingStore) load() error {
	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("Failed to read project mapping '%s': %v", s.path, err)
	}
	var entries []ProjectMapping
	if err := v.UnmarshalKey("project_mappings", &entries); err != nil {
		return fmt.Errorf("Failed to unmarshal project mapping '%s': %v", s.path, err)
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *ProjectMappingStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.load(); err != nil {
					s.logger.Error("Failed to reload project mapping", "error", err)
					continue
				}
				s.logger.Info("Reloaded project mapping", "path", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Project mapping watcher error", "error", err)
		}
	}
}

func (s *ProjectMappingStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Lookup finds the most specific mapping entry for a project. Exact matches
// beat wildcards, an exact owner beats an exact name, and the fully-wildcard
// entry is the fallback.
func (s *ProjectMappingStore) Lookup(owner, name string) (ProjectMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	var found ProjectMapping
	for _, e := range s.entries {
		score := mappingScore(e, owner, name)
		if score > best {
			best = score
			found = e
		}
	}
	return found, best >= 0
}

func mappingScore(e ProjectMapping, owner, name string) int {
	ownerMatch := e.ProjectOwner == owner
	nameMatch := e.ProjectName == name
	switch {
	case ownerMatch && nameMatch:
		return 3
	case ownerMatch && e.ProjectName == mappingWildcard:
		return 2
	case e.ProjectOwner == mappingWildcard && nameMatch:
		return 1
	case e.ProjectOwner == mappingWildcard && e.ProjectName == mappingWildcard:
		return 0
	}
	return -1
}

// GLIMSService reads lab registry rows for the ctTSO assay and applies the
// project mapping table to derive submission settings per sample.
type GLIMSService struct {
	baseURL  string
	token    string
	client   *http.Client
	retry    RetryPolicy
	mappings *ProjectMappingStore
	logger   *slog.Logger
}

func NewGLIMSService(baseURL, token string, retry RetryPolicy, mappings *ProjectMappingStore, logger *slog.Logger) *GLIMSService {
	return &GLIMSService{
		baseURL:  baseURL,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
		retry:    retry,
		mappings: mappings,
		logger:   logger,
	}
}

type glimsRow struct {
	SubjectID       string `json:"subject_id"`
	LibraryID       string `json:"library_id"`
	Type            string `json:"type"`
	Assay           string `json:"assay"`
	Phenotype       string `json:"phenotype"`
	ProjectOwner    string `json:"project_owner"`
	ProjectName     string `json:"project_name"`
	SequenceRunName string `json:"illumina_id"`
}

// Fetch returns one RegistryRecord per ctTSO registry row, with panel,
// sample type, identified flag, default disease term and the derived
// needs-clinical-capture flag resolved through the mapping table. Rows whose
// project has no mapping entry are dropped with a warning.
func (g *GLIMSService) Fetch(ctx context.Context) ([]RegistryRecord, error) {
	params := url.Values{}
	params.Set("type", "ctDNA")
	params.Set("assay", "ctTSO")

	endpoint := fmt.Sprintf("%s/samples?%s", g.baseURL, params.Encode())
	var rows []glimsRow
	err := g.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+g.token)
		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("registry returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		rows = nil
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch registry rows: %v", err)
	}

	var records []RegistryRecord
	for _, row := range rows {
		mapping, ok := g.mappings.Lookup(row.ProjectOwner, row.ProjectName)
		if !ok {
			g.logger.Warn("No project mapping entry for registry row",
				"subject_id", row.SubjectID, "library_id", row.LibraryID,
				"project_owner", row.ProjectOwner, "project_name", row.ProjectName)
			continue
		}
		records = append(records, RegistryRecord{
			SubjectID:            row.SubjectID,
			LibraryID:            row.LibraryID,
			ProjectOwner:         row.ProjectOwner,
			ProjectName:          row.ProjectName,
			Panel:                mapping.Panel,
			SampleType:           mapping.SampleType,
			IsIdentified:         mapping.IsIdentified,
			DefaultSnomedTerm:    mapping.DefaultSnomedTerm,
			SequenceRunName:      row.SequenceRunName,
			NeedsClinicalCapture: mapping.DefaultSnomedTerm == "",
		})
	}
	return records, nil
}

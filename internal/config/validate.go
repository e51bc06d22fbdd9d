package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Export.validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := c.ContentStore.validate(); err != nil {
		return fmt.Errorf("content_store: %w", err)
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		return fmt.Errorf("trace: sample_ratio must be within [0, 1] (got %v)", c.Trace.SampleRatio)
	}
	return nil
}

func (e *ExportConfig) validate() error {
	if e.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be > 0 (got %s)", e.RunTimeout)
	}
	if e.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", e.Workers)
	}
	if e.MaxConflictRetries < 0 {
		return fmt.Errorf("max_conflict_retries must be >= 0 (got %d)", e.MaxConflictRetries)
	}
	if e.ConflictBackoff < 0 {
		return fmt.Errorf("conflict_backoff must be >= 0 (got %s)", e.ConflictBackoff)
	}
	if e.SyncedEventRetentionDays <= 0 {
		return fmt.Errorf("synced_event_retention_days must be > 0 (got %d)", e.SyncedEventRetentionDays)
	}
	return nil
}

func (s *ContentStoreConfig) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL (got %q)", s.BaseURL)
	}
	if strings.TrimSpace(s.Owner) == "" || strings.TrimSpace(s.Repo) == "" {
		return fmt.Errorf("owner and repo are required")
	}
	if strings.TrimSpace(s.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if strings.Contains(s.Root, "..") {
		return fmt.Errorf("root must not contain '..' (got %q)", s.Root)
	}
	s.Root = strings.Trim(s.Root, "/")
	if (s.CommitterName == "") != (s.CommitterEmail == "") {
		return fmt.Errorf("committer_name and committer_email must be set together")
	}
	return nil
}

// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config implements the settings snapshot consumed by the sync engine.
//
// Settings are read from one or more YAML files and then overlaid with
// environment variables through cleanenv. Validate fills in defaults and
// clamps the values the engine relies on, so a validated Settings value can
// be handed to every component without further checks.
//
// The engine never mutates settings. A reload (SIGHUP or an explicit save by
// the caller) produces a fresh snapshot which is swapped in between cycles.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cloudzero/fit-uploader/app/types"
)

const (
	// DefaultSyncInterval matches the check interval of the desktop client.
	DefaultSyncInterval = 5 * time.Minute
	// MinSyncInterval keeps the agent from hammering the remote service.
	MinSyncInterval = 1 * time.Minute
	// MaxSyncInterval is the upper bound offered to users.
	MaxSyncInterval = 30 * time.Minute

	DefaultSettleWindow = 5 * time.Second
	DefaultExtension    = ".fit"
	DefaultArchiveDir   = "uploaded"

	DefaultRemoteBaseURL    = "https://connectapi.garmin.com"
	DefaultRemoteLoginPath  = "/auth/login"
	DefaultRemoteUploadPath = "/upload-service/upload/.fit"
	DefaultRemoteTimeout    = 60 * time.Second
	DefaultSessionTTL       = 12 * time.Hour
	// DefaultActivityIDQuery pulls the created activity id out of the upload
	// response. Missing fields yield an empty id, not an error.
	DefaultActivityIDQuery = `.detailedImportResult.successes[0].internalId // .activityId // .id // empty`

	LedgerBackendJSONL  = "jsonl"
	LedgerBackendSQLite = "sqlite"
	DefaultLedgerDir    = "fit-uploader"

	DefaultServerPort     = 8089
	DefaultWatchDebounce  = 10 * time.Second
	DefaultRecentEvents   = 10
	DefaultLogLevel       = "info"
	DefaultBackupBucket   = "fit-archive"
	credentialsFileName   = "credentials.yaml"
	settingsFileMode      = 0o600
	defaultLogFileMaxSize = 10
)

// Settings is the full configuration of the agent.
type Settings struct {
	Wahoo    Source `yaml:"wahoo"`
	MyWhoosh Source `yaml:"mywhoosh"`

	Sync        Sync        `yaml:"sync"`
	Remote      Remote      `yaml:"remote"`
	Ledger      Ledger      `yaml:"ledger"`
	Credentials Credentials `yaml:"credentials"`
	Server      Server      `yaml:"server"`
	Backup      Backup      `yaml:"backup"`
	Watch       Watch       `yaml:"watch"`
	Logging     Logging     `yaml:"logging"`
}

// Source is one watched folder. An empty folder or a false Enabled means
// the source is not configured.
type Source struct {
	Folder  string `yaml:"folder"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true when the toggle was never set.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type Sync struct {
	Interval     time.Duration `yaml:"interval" env:"FIT_UPLOADER_SYNC_INTERVAL" env-description:"interval between sync cycles"`
	SettleWindow time.Duration `yaml:"settleWindow" env:"FIT_UPLOADER_SETTLE_WINDOW" env-description:"how long a file must stay unchanged before upload"`
	Extension    string        `yaml:"extension" env:"FIT_UPLOADER_EXTENSION" env-description:"activity file extension"`
	ArchiveDir   string        `yaml:"archiveDir" env:"FIT_UPLOADER_ARCHIVE_DIR" env-description:"subfolder receiving processed files"`
}

type Remote struct {
	BaseURL         string        `yaml:"baseURL" env:"FIT_UPLOADER_REMOTE_URL" env-description:"base url of the fitness service"`
	LoginPath       string        `yaml:"loginPath" env:"FIT_UPLOADER_LOGIN_PATH" env-description:"path of the authentication endpoint"`
	UploadPath      string        `yaml:"uploadPath" env:"FIT_UPLOADER_UPLOAD_PATH" env-description:"path of the upload endpoint"`
	Timeout         time.Duration `yaml:"timeout" env:"FIT_UPLOADER_REMOTE_TIMEOUT" env-description:"timeout of a single remote call"`
	SessionTTL      time.Duration `yaml:"sessionTTL" env:"FIT_UPLOADER_SESSION_TTL" env-description:"session lifetime when the token carries no expiry"`
	ActivityIDQuery string        `yaml:"activityIDQuery" env:"FIT_UPLOADER_ACTIVITY_ID_QUERY" env-description:"jq expression selecting the remote activity id"`
	RetryMax        int           `yaml:"retryMax" env:"FIT_UPLOADER_RETRY_MAX" env-description:"in-call http retries, 0 leaves retries to the next cycle"`
}

type Ledger struct {
	Backend string `yaml:"backend" env:"FIT_UPLOADER_LEDGER_BACKEND" env-description:"jsonl or sqlite"`
	Path    string `yaml:"path" env:"FIT_UPLOADER_LEDGER_PATH" env-description:"directory holding the ledger"`
}

type Credentials struct {
	File string `yaml:"file" env:"FIT_UPLOADER_CREDENTIALS_FILE" env-description:"credentials file written by the login command"`
}

type Server struct {
	Enabled bool `yaml:"enabled" env:"FIT_UPLOADER_SERVER_ENABLED" env-description:"serve the local status api"`
	Port    uint `yaml:"port" env:"FIT_UPLOADER_SERVER_PORT" env-description:"local status api port"`
}

type Backup struct {
	Enabled   bool   `yaml:"enabled" env:"FIT_UPLOADER_BACKUP_ENABLED" env-description:"mirror archived files to object storage"`
	Endpoint  string `yaml:"endpoint" env:"FIT_UPLOADER_BACKUP_ENDPOINT" env-description:"s3 compatible endpoint"`
	Bucket    string `yaml:"bucket" env:"FIT_UPLOADER_BACKUP_BUCKET" env-description:"bucket name"`
	AccessKey string `yaml:"accessKey" env:"FIT_UPLOADER_BACKUP_ACCESS_KEY" env-description:"access key id"`
	SecretKey string `yaml:"secretKey" env:"FIT_UPLOADER_BACKUP_SECRET_KEY" env-description:"secret access key"`
	UseSSL    bool   `yaml:"useSSL" env:"FIT_UPLOADER_BACKUP_USE_SSL" env-description:"use tls for the backup endpoint"`
}

type Watch struct {
	Enabled  bool          `yaml:"enabled" env:"FIT_UPLOADER_WATCH_ENABLED" env-description:"trigger a cycle when files appear"`
	Debounce time.Duration `yaml:"debounce" env:"FIT_UPLOADER_WATCH_DEBOUNCE" env-description:"quiet period before a triggered cycle"`
}

type Logging struct {
	Level        string `yaml:"level" env:"FIT_UPLOADER_LOG_LEVEL" env-description:"logging level such as debug, info, error"`
	File         string `yaml:"file" env:"FIT_UPLOADER_LOG_FILE" env-description:"optional rotating log file"`
	MaxSizeMB    int    `yaml:"maxSizeMB" env:"FIT_UPLOADER_LOG_MAX_SIZE" env-description:"rotate the log file after this many megabytes"`
	RecentEvents int    `yaml:"recentEvents" env:"FIT_UPLOADER_RECENT_EVENTS" env-description:"number of recent events kept for status"`
}

// Folder is a configured and enabled source.
type Folder struct {
	Source types.SourceKind
	Path   string
}

// NewSettings loads the given files in order and validates the result. Empty
// names are ignored so optional files can be passed through unchanged.
func NewSettings(configFiles ...string) (*Settings, error) {
	var cfg Settings

	if configFiles == nil {
		return nil, errors.New("the config files slice cannot be nil")
	}

	read := false
	for _, cfgFile := range configFiles {
		if cfgFile == "" {
			continue
		}

		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("no config %s", cfgFile)
		}

		if err := cleanenv.ReadConfig(cfgFile, &cfg); err != nil {
			return nil, fmt.Errorf("config read %s: %w", cfgFile, err)
		}
		read = true
	}

	if !read {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, errors.Wrap(err, "config read env")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "failed to validate settings")
	}

	return &cfg, nil
}

// Validate applies defaults and rejects values the engine cannot work with.
func (s *Settings) Validate() error {
	s.Wahoo.Folder = cleanPath(s.Wahoo.Folder)
	s.MyWhoosh.Folder = cleanPath(s.MyWhoosh.Folder)

	if err := s.Sync.Validate(); err != nil {
		return errors.Wrap(err, "sync validation")
	}
	if err := s.Remote.Validate(); err != nil {
		return errors.Wrap(err, "remote validation")
	}
	if err := s.Ledger.Validate(); err != nil {
		return errors.Wrap(err, "ledger validation")
	}
	if s.Credentials.File == "" {
		s.Credentials.File = filepath.Join(s.Ledger.Path, credentialsFileName)
	}
	s.Credentials.File = cleanPath(s.Credentials.File)
	if s.Server.Port == 0 {
		s.Server.Port = DefaultServerPort
	}
	if err := s.Backup.Validate(); err != nil {
		return errors.Wrap(err, "backup validation")
	}
	if s.Watch.Debounce <= 0 {
		s.Watch.Debounce = DefaultWatchDebounce
	}
	if s.Logging.Level == "" {
		s.Logging.Level = DefaultLogLevel
	}
	if s.Logging.RecentEvents <= 0 {
		s.Logging.RecentEvents = DefaultRecentEvents
	}
	if s.Logging.MaxSizeMB <= 0 {
		s.Logging.MaxSizeMB = defaultLogFileMaxSize
	}
	s.Logging.File = cleanPath(s.Logging.File)
	return nil
}

func (s *Sync) Validate() error {
	s.Interval = ClampInterval(s.Interval)
	if s.SettleWindow <= 0 {
		s.SettleWindow = DefaultSettleWindow
	}
	if s.Extension == "" {
		s.Extension = DefaultExtension
	}
	if !strings.HasPrefix(s.Extension, ".") {
		s.Extension = "." + s.Extension
	}
	s.Extension = strings.ToLower(s.Extension)
	if s.ArchiveDir == "" {
		s.ArchiveDir = DefaultArchiveDir
	}
	if strings.ContainsAny(s.ArchiveDir, `/\`) || s.ArchiveDir == "." || s.ArchiveDir == ".." {
		return fmt.Errorf("%w: archive dir %q must be a plain folder name", types.ErrInvalidSettings, s.ArchiveDir)
	}
	return nil
}

func (r *Remote) Validate() error {
	if r.BaseURL == "" {
		r.BaseURL = DefaultRemoteBaseURL
	}
	r.BaseURL = strings.TrimRight(r.BaseURL, "/")
	if !isValidURL(r.BaseURL) {
		return fmt.Errorf("%w: invalid remote url %q", types.ErrInvalidSettings, r.BaseURL)
	}
	if r.LoginPath == "" {
		r.LoginPath = DefaultRemoteLoginPath
	}
	if r.UploadPath == "" {
		r.UploadPath = DefaultRemoteUploadPath
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultRemoteTimeout
	}
	if r.SessionTTL <= 0 {
		r.SessionTTL = DefaultSessionTTL
	}
	if r.ActivityIDQuery == "" {
		r.ActivityIDQuery = DefaultActivityIDQuery
	}
	if r.RetryMax < 0 {
		r.RetryMax = 0
	}
	return nil
}

func (l *Ledger) Validate() error {
	if l.Backend == "" {
		l.Backend = LedgerBackendJSONL
	}
	if l.Backend != LedgerBackendJSONL && l.Backend != LedgerBackendSQLite {
		return fmt.Errorf("%w: unknown ledger backend %q", types.ErrInvalidSettings, l.Backend)
	}
	if l.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return errors.Wrap(err, "user config dir")
		}
		l.Path = filepath.Join(dir, DefaultLedgerDir)
	}
	l.Path = cleanPath(l.Path)
	return nil
}

func (b *Backup) Validate() error {
	if !b.Enabled {
		return nil
	}
	if b.Endpoint == "" {
		return fmt.Errorf("%w: backup endpoint is empty", types.ErrInvalidSettings)
	}
	if b.Bucket == "" {
		b.Bucket = DefaultBackupBucket
	}
	return nil
}

// ClampInterval applies the default and the allowed bounds to a sync
// interval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultSyncInterval
	case d < MinSyncInterval:
		return MinSyncInterval
	case d > MaxSyncInterval:
		return MaxSyncInterval
	}
	return d
}

// Folders returns the configured and enabled sources, Wahoo first.
func (s *Settings) Folders() []Folder {
	var out []Folder
	if s.Wahoo.Folder != "" && s.Wahoo.IsEnabled() {
		out = append(out, Folder{Source: types.SourceWahoo, Path: s.Wahoo.Folder})
	}
	if s.MyWhoosh.Folder != "" && s.MyWhoosh.IsEnabled() {
		out = append(out, Folder{Source: types.SourceMyWhoosh, Path: s.MyWhoosh.Folder})
	}
	return out
}

// LoginURL returns the absolute authentication endpoint.
func (s *Settings) LoginURL() string {
	return s.Remote.BaseURL + ensureSlash(s.Remote.LoginPath)
}

// UploadURL returns the absolute upload endpoint.
func (s *Settings) UploadURL() string {
	return s.Remote.BaseURL + ensureSlash(s.Remote.UploadPath)
}

// Save writes the settings to path with owner-only permissions.
func (s *Settings) Save(path string) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode into yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create settings dir")
	}
	if err := os.WriteFile(path, raw, settingsFileMode); err != nil {
		return errors.Wrap(err, "write settings")
	}
	return nil
}

func (s *Settings) ToYAML() ([]byte, error) {
	clone := *s
	if clone.Backup.SecretKey != "" {
		clone.Backup.SecretKey = "<redacted>"
	}
	raw, err := yaml.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("failed to encode into yaml: %w", err)
	}
	return raw, nil
}

func ensureSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}

func isValidURL(uri string) bool {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

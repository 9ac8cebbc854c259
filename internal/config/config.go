// Package config loads the inboxledger configuration from a TOML file and
// INBOXLEDGER_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/router"
	"github.com/teemow/inboxledger/internal/sheets"
	"github.com/teemow/inboxledger/internal/sheetsync"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "inboxledger.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INBOXLEDGER_"

// Workflows a config can be validated for.
const (
	WorkflowAttachments = "attachments"
	WorkflowDocuments   = "documents"
	WorkflowCombined    = "run"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full configuration surface.
type Config struct {
	Account         string `toml:"account"`
	CredentialsFile string `toml:"credentials_file"`
	TokenDir        string `toml:"token_dir"`

	Gmail           GmailConfig           `toml:"gmail"`
	Documents       DocumentsConfig       `toml:"documents"`
	State           StateConfig           `toml:"state"`
	Extraction      ExtractionConfig      `toml:"extraction"`
	Output          OutputConfig          `toml:"output"`
	Schedule        ScheduleConfig        `toml:"schedule"`
	Instrumentation InstrumentationConfig `toml:"instrumentation"`
}

// GmailConfig drives the attachment workflow.
type GmailConfig struct {
	Sender              string   `toml:"sender"`
	SearchTerm          string   `toml:"search_term"`
	DaysBack            int      `toml:"days_back"`
	MaxResults          int      `toml:"max_results"`
	DriveFolderID       string   `toml:"gdrive_folder_id"`
	FolderLayout        string   `toml:"folder_layout"`
	BaseFolder          string   `toml:"base_folder"`
	AllowedExtensions   []string `toml:"allowed_extensions"`
	AllowedMimeTypes    []string `toml:"allowed_mime_types"`
	MaxAttachmentBytes  int64    `toml:"max_attachment_bytes"`
	SkipSubjectPatterns []string `toml:"skip_subject_patterns"`
}

// DocumentsConfig drives the document workflow.
type DocumentsConfig struct {
	DriveFolderID string `toml:"drive_folder_id"`
	SpreadsheetID string `toml:"spreadsheet_id"`
	SheetRange    string `toml:"sheet_range"`
	DaysBack      int    `toml:"days_back"`
	MaxFiles      int    `toml:"max_files"`
	SkipExisting  bool   `toml:"skip_existing"`
	SheetStrategy string `toml:"sheet_strategy"`

	// WorkbookPath writes to a local .xlsx file instead of a spreadsheet.
	WorkbookPath string `toml:"workbook_path"`
}

// Tab is the tab name part of SheetRange.
func (d DocumentsConfig) Tab() string {
	return sheets.TabFromRange(d.SheetRange)
}

type StateConfig struct {
	DSN    string `toml:"dsn"`
	Strict bool   `toml:"strict"`
}

type ExtractionConfig struct {
	Endpoint   string   `toml:"endpoint"`
	APIKey     string   `toml:"api_key"`
	Agent      string   `toml:"agent"`
	SchemaFile string   `toml:"schema_file"`
	Attempts   uint     `toml:"attempts"`
	RetryDelay Duration `toml:"retry_delay"`
	Timeout    Duration `toml:"timeout"`
}

type OutputConfig struct {
	LogFormat string `toml:"log_format"`
	Debug     bool   `toml:"debug"`
	NoColor   bool   `toml:"no_color"`
}

// ScheduleConfig drives the long-running schedule command.
type ScheduleConfig struct {
	Interval   Duration `toml:"interval"`
	Workflow   string   `toml:"workflow"`
	ListenAddr string   `toml:"listen_addr"`
}

// InstrumentationConfig overrides instrumentation.DefaultConfig. Empty values
// keep the default.
type InstrumentationConfig struct {
	Enabled         *bool   `toml:"enabled,omitempty"`
	MetricsExporter string  `toml:"metrics_exporter"`
	TracingExporter string  `toml:"tracing_exporter"`
	OTLPEndpoint    string  `toml:"otlp_endpoint"`
	OTLPInsecure    bool    `toml:"otlp_insecure"`
	SamplingRate    float64 `toml:"sampling_rate"`
	DetailedLabels  bool    `toml:"detailed_labels"`
}

// Apply layers the file settings over base.
func (ic InstrumentationConfig) Apply(base instrumentation.Config) instrumentation.Config {
	if ic.Enabled != nil {
		base.Enabled = *ic.Enabled
	}
	if ic.MetricsExporter != "" {
		base.MetricsExporter = ic.MetricsExporter
	}
	if ic.TracingExporter != "" {
		base.TracingExporter = ic.TracingExporter
	}
	if ic.OTLPEndpoint != "" {
		base.OTLPEndpoint = ic.OTLPEndpoint
	}
	if ic.OTLPInsecure {
		base.OTLPInsecure = true
	}
	if ic.SamplingRate > 0 {
		base.TraceSamplingRate = ic.SamplingRate
	}
	if ic.DetailedLabels {
		base.DetailedLabels = true
	}
	return base
}

// Duration is a time.Duration written as a string such as "15m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Account:         "default",
		CredentialsFile: "credentials.json",
		Gmail: GmailConfig{
			DaysBack:     7,
			MaxResults:   1000,
			FolderLayout: router.LayoutKeywordType,
			BaseFolder:   router.DefaultBaseFolder,
		},
		Documents: DocumentsConfig{
			DaysBack:      1,
			MaxFiles:      50,
			SheetStrategy: sheetsync.StrategyReplace,
		},
		State: StateConfig{
			DSN: "processed_state.json",
		},
		Extraction: ExtractionConfig{
			Endpoint:   "https://api.cloud.llamaindex.ai",
			Attempts:   3,
			RetryDelay: Duration(2 * time.Second),
			Timeout:    Duration(2 * time.Minute),
		},
		Output: OutputConfig{
			LogFormat: "text",
		},
		Schedule: ScheduleConfig{
			Interval:   Duration(time.Hour),
			Workflow:   WorkflowCombined,
			ListenAddr: ":9090",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path reads DefaultPath when it exists.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func boolean(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func list(dst func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envBindings = []envBinding{
	{"ACCOUNT", str(func(c *Config) *string { return &c.Account })},
	{"CREDENTIALS_FILE", str(func(c *Config) *string { return &c.CredentialsFile })},
	{"TOKEN_DIR", str(func(c *Config) *string { return &c.TokenDir })},

	{"SENDER", str(func(c *Config) *string { return &c.Gmail.Sender })},
	{"SEARCH_TERM", str(func(c *Config) *string { return &c.Gmail.SearchTerm })},
	{"GMAIL_DAYS_BACK", integer(func(c *Config) *int { return &c.Gmail.DaysBack })},
	{"MAX_RESULTS", integer(func(c *Config) *int { return &c.Gmail.MaxResults })},
	{"GDRIVE_FOLDER_ID", str(func(c *Config) *string { return &c.Gmail.DriveFolderID })},
	{"FOLDER_LAYOUT", str(func(c *Config) *string { return &c.Gmail.FolderLayout })},
	{"ALLOWED_EXTENSIONS", list(func(c *Config) *[]string { return &c.Gmail.AllowedExtensions })},

	{"DRIVE_FOLDER_ID", str(func(c *Config) *string { return &c.Documents.DriveFolderID })},
	{"SPREADSHEET_ID", str(func(c *Config) *string { return &c.Documents.SpreadsheetID })},
	{"SHEET_RANGE", str(func(c *Config) *string { return &c.Documents.SheetRange })},
	{"DOCUMENTS_DAYS_BACK", integer(func(c *Config) *int { return &c.Documents.DaysBack })},
	{"MAX_FILES", integer(func(c *Config) *int { return &c.Documents.MaxFiles })},
	{"SKIP_EXISTING", boolean(func(c *Config) *bool { return &c.Documents.SkipExisting })},
	{"SHEET_STRATEGY", str(func(c *Config) *string { return &c.Documents.SheetStrategy })},
	{"WORKBOOK_PATH", str(func(c *Config) *string { return &c.Documents.WorkbookPath })},

	{"STATE_DSN", str(func(c *Config) *string { return &c.State.DSN })},
	{"STRICT_STATE", boolean(func(c *Config) *bool { return &c.State.Strict })},

	{"EXTRACTION_ENDPOINT", str(func(c *Config) *string { return &c.Extraction.Endpoint })},
	{"EXTRACTION_API_KEY", str(func(c *Config) *string { return &c.Extraction.APIKey })},
	{"EXTRACTION_AGENT", str(func(c *Config) *string { return &c.Extraction.Agent })},
	{"EXTRACTION_SCHEMA_FILE", str(func(c *Config) *string { return &c.Extraction.SchemaFile })},

	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Output.LogFormat })},
	{"DEBUG", boolean(func(c *Config) *bool { return &c.Output.Debug })},
	{"LISTEN_ADDR", str(func(c *Config) *string { return &c.Schedule.ListenAddr })},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate reports every problem that stops workflow from running.
func (c *Config) Validate(workflow string) error {
	var problems []string
	missing := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
		}
	}

	attachments := workflow == WorkflowAttachments || workflow == WorkflowCombined
	documents := workflow == WorkflowDocuments || workflow == WorkflowCombined
	if !attachments && !documents {
		return fmt.Errorf("%w: unknown workflow %q", ErrInvalid, workflow)
	}

	missing("credentials_file", c.CredentialsFile)
	if c.Output.LogFormat != "text" && c.Output.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("output.log_format must be text or json, got %q", c.Output.LogFormat))
	}

	if attachments {
		missing("gmail.gdrive_folder_id", c.Gmail.DriveFolderID)
		if c.Gmail.Sender == "" && c.Gmail.SearchTerm == "" {
			problems = append(problems, "gmail.sender or gmail.search_term is required")
		}
		if c.Gmail.MaxResults < 0 {
			problems = append(problems, "gmail.max_results must not be negative")
		}
		if c.Gmail.FolderLayout != router.LayoutKeywordType && c.Gmail.FolderLayout != router.LayoutSenderDate {
			problems = append(problems, fmt.Sprintf("gmail.folder_layout must be %s or %s, got %q",
				router.LayoutKeywordType, router.LayoutSenderDate, c.Gmail.FolderLayout))
		}
		for _, p := range c.Gmail.SkipSubjectPatterns {
			if _, err := regexp.Compile(p); err != nil {
				problems = append(problems, fmt.Sprintf("gmail.skip_subject_patterns: %v", err))
			}
		}
	}

	if documents {
		missing("documents.drive_folder_id", c.Documents.DriveFolderID)
		if c.Documents.SpreadsheetID == "" && c.Documents.WorkbookPath == "" {
			problems = append(problems, "documents.spreadsheet_id or documents.workbook_path is required")
		}
		missing("documents.sheet_range", c.Documents.Tab())
		if !sheetsync.ValidStrategy(c.Documents.SheetStrategy) {
			problems = append(problems, fmt.Sprintf("documents.sheet_strategy must be %s or %s, got %q",
				sheetsync.StrategyReplace, sheetsync.StrategyAppendOnly, c.Documents.SheetStrategy))
		}
		if c.Documents.MaxFiles < 0 {
			problems = append(problems, "documents.max_files must not be negative")
		}
		missing("extraction.endpoint", c.Extraction.Endpoint)
		missing("extraction.agent", c.Extraction.Agent)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// SkipSubjects compiles Gmail.SkipSubjectPatterns.
func (c *Config) SkipSubjects() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.Gmail.SkipSubjectPatterns))
	for _, p := range c.Gmail.SkipSubjectPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: skip subject pattern %q: %w", ErrInvalid, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/instrumentation"
	"github.com/teemow/inboxledger/internal/router"
	"github.com/teemow/inboxledger/internal/sheetsync"
)

const sampleConfig = `
account = "work"

[gmail]
sender = "billing@supplier.example"
search_term = "grn, invoice"
days_back = 3
gdrive_folder_id = "root-folder"
folder_layout = "sender-date"
allowed_extensions = [".pdf", ".xlsx"]
skip_subject_patterns = ['against Inv: \S+/\S+']

[documents]
drive_folder_id = "pdf-folder"
spreadsheet_id = "sheet-1"
sheet_range = "reliancegrn!A:Z"
skip_existing = true
sheet_strategy = "append-only"

[state]
dsn = "sqlite:///var/lib/inboxledger/state.db"

[extraction]
endpoint = "https://extract.example/v1"
agent = "grn-agent"
retry_delay = "500ms"

[schedule]
interval = "15m"

[instrumentation]
enabled = false
tracing_exporter = "stdout"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.Account)
	assert.Equal(t, "billing@supplier.example", cfg.Gmail.Sender)
	assert.Equal(t, 3, cfg.Gmail.DaysBack)
	assert.Equal(t, 1000, cfg.Gmail.MaxResults, "unset values keep their default")
	assert.Equal(t, router.LayoutSenderDate, cfg.Gmail.FolderLayout)
	assert.Equal(t, []string{".pdf", ".xlsx"}, cfg.Gmail.AllowedExtensions)

	assert.Equal(t, "reliancegrn", cfg.Documents.Tab())
	assert.True(t, cfg.Documents.SkipExisting)
	assert.Equal(t, sheetsync.StrategyAppendOnly, cfg.Documents.SheetStrategy)
	assert.Equal(t, 50, cfg.Documents.MaxFiles)

	assert.Equal(t, 500*time.Millisecond, cfg.Extraction.RetryDelay.Std())
	assert.Equal(t, uint(3), cfg.Extraction.Attempts)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.Interval.Std())

	require.NotNil(t, cfg.Instrumentation.Enabled)
	assert.False(t, *cfg.Instrumentation.Enabled)

	assert.NoError(t, cfg.Validate(WorkflowCombined))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown field", data: "[gmail]\nsendr = \"x\"\n"},
		{name: "bad duration", data: "[schedule]\ninterval = \"soon\"\n"},
		{name: "bad syntax", data: "[gmail\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inboxledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	t.Setenv("INBOXLEDGER_SPREADSHEET_ID", "from-env")
	t.Setenv("INBOXLEDGER_MAX_FILES", "5")
	t.Setenv("INBOXLEDGER_SKIP_EXISTING", "false")
	t.Setenv("INBOXLEDGER_ALLOWED_EXTENSIONS", ".pdf, .png ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Documents.SpreadsheetID)
	assert.Equal(t, 5, cfg.Documents.MaxFiles)
	assert.False(t, cfg.Documents.SkipExisting)
	assert.Equal(t, []string{".pdf", ".png"}, cfg.Gmail.AllowedExtensions)
	assert.Equal(t, "grn-agent", cfg.Extraction.Agent)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("INBOXLEDGER_MAX_FILES", "lots")
	t.Setenv("INBOXLEDGER_DEBUG", "sometimes")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err, "an explicit missing file is an error")

	t.Chdir(t.TempDir())
	_, err = Load("")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "INBOXLEDGER_MAX_FILES")
	assert.Contains(t, err.Error(), "INBOXLEDGER_DEBUG")
}

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte(sampleConfig))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name     string
		workflow string
		mutate   func(c *Config)
		want     []string
	}{
		{
			name:     "attachments without folder or filter",
			workflow: WorkflowAttachments,
			mutate: func(c *Config) {
				c.Gmail.DriveFolderID = ""
				c.Gmail.Sender = ""
				c.Gmail.SearchTerm = ""
			},
			want: []string{"gmail.gdrive_folder_id is required", "gmail.sender or gmail.search_term is required"},
		},
		{
			name:     "documents ignore gmail problems",
			workflow: WorkflowDocuments,
			mutate:   func(c *Config) { c.Gmail.DriveFolderID = "" },
		},
		{
			name:     "documents without sheet target",
			workflow: WorkflowDocuments,
			mutate: func(c *Config) {
				c.Documents.SpreadsheetID = ""
				c.Documents.SheetRange = ""
				c.Extraction.Agent = ""
			},
			want: []string{"documents.spreadsheet_id or documents.workbook_path", "documents.sheet_range is required", "extraction.agent is required"},
		},
		{
			name:     "workbook instead of spreadsheet",
			workflow: WorkflowDocuments,
			mutate: func(c *Config) {
				c.Documents.SpreadsheetID = ""
				c.Documents.WorkbookPath = "ledger.xlsx"
			},
		},
		{
			name:     "bad strategy and layout",
			workflow: WorkflowCombined,
			mutate: func(c *Config) {
				c.Documents.SheetStrategy = "upsert"
				c.Gmail.FolderLayout = "flat"
			},
			want: []string{"sheet_strategy", "folder_layout"},
		},
		{
			name:     "bad subject pattern",
			workflow: WorkflowAttachments,
			mutate:   func(c *Config) { c.Gmail.SkipSubjectPatterns = []string{"("} },
			want:     []string{"skip_subject_patterns"},
		},
		{
			name:     "bad log format",
			workflow: WorkflowAttachments,
			mutate:   func(c *Config) { c.Output.LogFormat = "xml" },
			want:     []string{"log_format"},
		},
		{
			name:     "unknown workflow",
			workflow: "cleanup",
			mutate:   func(*Config) {},
			want:     []string{"unknown workflow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate(tt.workflow)
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestSkipSubjects(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	res, err := cfg.SkipSubjects()
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].MatchString("GRN against Inv: 123/2024"))
	assert.False(t, res[0].MatchString("GRN 123"))

	cfg.Gmail.SkipSubjectPatterns = []string{"["}
	_, err = cfg.SkipSubjects()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestInstrumentationApply(t *testing.T) {
	base := instrumentation.Config{Enabled: true, MetricsExporter: instrumentation.ExporterPrometheus, TraceSamplingRate: 1}
	off := false

	got := InstrumentationConfig{Enabled: &off, TracingExporter: "stdout", SamplingRate: 0.25}.Apply(base)
	assert.False(t, got.Enabled)
	assert.Equal(t, instrumentation.ExporterPrometheus, got.MetricsExporter)
	assert.Equal(t, "stdout", got.TracingExporter)
	assert.Equal(t, 0.25, got.TraceSamplingRate)

	assert.Equal(t, base, InstrumentationConfig{}.Apply(base))
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	data, err := Marshal(cfg)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Gmail.SkipSubjectPatterns, again.Gmail.SkipSubjectPatterns)
	assert.Equal(t, cfg.Documents, again.Documents)
	assert.Equal(t, cfg.Schedule, again.Schedule)
	assert.Equal(t, cfg.Extraction, again.Extraction)
	require.NotNil(t, again.Instrumentation.Enabled)
	assert.False(t, *again.Instrumentation.Enabled)
}

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ghost"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage ghost configuration.

Values come from (highest first) GHOST_* environment variables, a .env
file in the working directory, ~/.config/ghost/config.yaml and built-in
defaults. Running bare 'ghost config' is the same as 'ghost config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# ghost configuration
# See: ghost config show (for effective values and sources)
# Every key can be overridden by GHOST_<KEY>, dots become underscores
# (e.g. GHOST_GEMINI_API_KEY).

# State/data directory (default: ~/.config/ghost)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/ghost/ghost.db)
# db_path: {{ .DBPath }}

server:
  host: "{{ .ServerHost }}"
  port: {{ .ServerPort }}
  # Access-Control-Allow-Origin for the web client
  cors_origin: "{{ .CORSOrigin }}"

log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"
  # json or console
  format: "{{ .LogFormat }}"

github:
  # Optional token; raises the API rate limit
  token: ""

ai:
  # gemini, anthropic or none (none uses built-in Ghost Log text)
  provider: "{{ .AIProvider }}"
  # Max generation requests per second
  rate_limit: {{ .AIRateLimit }}

gemini:
  api_key: ""
  model: "{{ .GeminiModel }}"

anthropic:
  api_key: ""
  model: "{{ .AnthropicModel }}"

# EmailJS delivers "haunt" and approval emails. Leave blank to skip email.
emailjs:
  service_id: ""
  interest_template_id: ""
  approval_template_id: ""
  public_key: ""
  private_key: ""

auth:
  # How long a sign-in stays valid
  session_ttl: "{{ .SessionTTL }}"
`

type configTemplateData struct {
	StateDir       string
	DBPath         string
	ServerHost     string
	ServerPort     int
	CORSOrigin     string
	LogLevel       string
	LogFormat      string
	AIProvider     string
	AIRateLimit    float64
	GeminiModel    string
	AnthropicModel string
	SessionTTL     string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		ServerHost:     viper.GetString("server.host"),
		ServerPort:     viper.GetInt("server.port"),
		CORSOrigin:     viper.GetString("server.cors_origin"),
		LogLevel:       viper.GetString("log.level"),
		LogFormat:      viper.GetString("log.format"),
		AIProvider:     viper.GetString("ai.provider"),
		AIRateLimit:    viper.GetFloat64("ai.rate_limit"),
		GeminiModel:    viper.GetString("gemini.model"),
		AnthropicModel: viper.GetString("anthropic.model"),
		SessionTTL:     viper.GetString("auth.session_ttl"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	Secret bool
}

// EnvVar is the environment variable that overrides the key.
func (k configKeyInfo) EnvVar() string {
	return "GHOST_" + strings.ToUpper(strings.ReplaceAll(k.Key, ".", "_"))
}

var configKeys = []configKeyInfo{
	{Key: "state_dir"},
	{Key: "db_path"},
	{Key: "server.host"},
	{Key: "server.port"},
	{Key: "server.cors_origin"},
	{Key: "log.level"},
	{Key: "log.format"},
	{Key: "github.token", Secret: true},
	{Key: "github.base_url"},
	{Key: "ai.provider"},
	{Key: "ai.rate_limit"},
	{Key: "gemini.api_key", Secret: true},
	{Key: "gemini.model"},
	{Key: "anthropic.api_key", Secret: true},
	{Key: "anthropic.model"},
	{Key: "emailjs.service_id"},
	{Key: "emailjs.interest_template_id"},
	{Key: "emailjs.approval_template_id"},
	{Key: "emailjs.public_key"},
	{Key: "emailjs.private_key", Secret: true},
	{Key: "emailjs.base_url"},
	{Key: "thumbnail.base_url"},
	{Key: "auth.session_ttl"},
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 4:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}

// configEntry is one row of 'config show'.
type configEntry struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Source string `json:"source"`
}

// effectiveConfig resolves every known key with its source. Secrets are masked.
func effectiveConfig(cfgPath string) []configEntry {
	fileValues := readConfigFileValues(cfgPath)
	entries := make([]configEntry, 0, len(configKeys))
	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		entries = append(entries, configEntry{Key: k.Key, Value: val, Source: detectSource(k.Key, k.EnvVar(), fileValues)})
	}
	return entries
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	entries := effectiveConfig(cfgPath)
	if asJSON {
		return ui.JSON(entries)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}

	section := "-"
	for _, e := range entries {
		if top, _, _ := strings.Cut(e.Key, "."); top != section {
			fmt.Fprintln(ui.Out)
			section = top
		}
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", e.Key, e.Value, e.Source)
	}
	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'ghost config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

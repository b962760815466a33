package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"locus/internal/config"
	locuserrors "locus/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage locus configuration",
	Long:  "View and edit the configuration stored in .locus/config.json.",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration: defaults, .locus/config.json,
locus.toml overrides and LOCUS_* environment variables, merged in that
order.

Examples:
  locus config list
  locus config list --format=human`,
	Args: cobra.NoArgs,
	Run:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read one configuration value",
	Long: `Read one value from the effective configuration by dotted key.

Examples:
  locus config get search.topK
  locus config get scan.maxDepth
  locus config get index.bm25.k1`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one configuration value",
	Long: `Set one value by dotted key and save .locus/config.json. The value is
parsed as JSON where possible, so numbers, booleans and arrays work:

  locus config set search.topK 25
  locus config set scan.respectGitignore false
  locus config set scan.extensions '[".py",".md"]'

Editing operates on defaults plus config.json. locus.toml and LOCUS_*
environment overrides are never written to the file; they still apply on
top at load time.`,
	Args: cobra.ExactArgs(2),
	Run:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// configMap converts a config to its JSON object form, the shape dotted
// keys address.
func configMap(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// lookupKey walks a dotted key through nested JSON objects.
func lookupKey(m map[string]interface{}, key string) (interface{}, bool) {
	var cur interface{} = m
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setKey replaces the value at a dotted key. Only existing keys may be set:
// a typo surfaces as an error instead of a silently ignored entry.
func setKey(m map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	cur := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("unknown config section %q", part)
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if _, ok := cur[last]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	cur[last] = value
	return nil
}

// flattenConfig renders nested config as sorted "a.b.c = value" lines.
func flattenConfig(prefix string, m map[string]interface{}, out *[]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]interface{}); ok {
			flattenConfig(full, nested, out)
			continue
		}
		value, _ := json.Marshal(m[k])
		*out = append(*out, fmt.Sprintf("%s = %s", full, value))
	}
}

func runConfigList(cmd *cobra.Command, args []string) {
	root := mustRepoRoot()
	cfg := mustLoadConfig(root)

	if OutputFormat(formatFlag) == FormatHuman {
		m, err := configMap(cfg)
		if err != nil {
			fail(err)
		}
		var lines []string
		flattenConfig("", m, &lines)
		fmt.Println(strings.Join(lines, "\n"))
		return
	}
	printResponse(cfg)
}

func runConfigGet(cmd *cobra.Command, args []string) {
	root := mustRepoRoot()
	cfg := mustLoadConfig(root)

	m, err := configMap(cfg)
	if err != nil {
		fail(err)
	}
	value, ok := lookupKey(m, args[0])
	if !ok {
		fail(locuserrors.New(locuserrors.ConfigInvalid,
			fmt.Sprintf("unknown config key %q", args[0]), nil))
	}
	rendered, err := json.Marshal(value)
	if err != nil {
		fail(err)
	}
	fmt.Println(string(rendered))
}

func runConfigSet(cmd *cobra.Command, args []string) {
	root := mustRepoRoot()
	key, raw := args[0], args[1]

	cfg, err := config.LoadLocal(root)
	if err != nil {
		fail(err)
	}
	m, err := configMap(cfg)
	if err != nil {
		fail(err)
	}

	// JSON literals become typed values; anything else stays a string.
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	if err := setKey(m, key, value); err != nil {
		fail(locuserrors.New(locuserrors.ConfigInvalid, err.Error(), nil))
	}

	// Round-trip through the typed config so bad types and bad values fail
	// validation before anything is written.
	data, err := json.Marshal(m)
	if err != nil {
		fail(err)
	}
	updated := config.DefaultConfig()
	if err := json.Unmarshal(data, updated); err != nil {
		fail(locuserrors.New(locuserrors.ConfigInvalid,
			fmt.Sprintf("value for %q has the wrong type", key), err))
	}
	if err := updated.Validate(); err != nil {
		fail(err)
	}
	if err := updated.Save(root); err != nil {
		fail(err)
	}
	fmt.Printf("%s = %s\n", key, raw)
}

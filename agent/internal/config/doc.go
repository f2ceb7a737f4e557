// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: piggyback_dir, output_dir, check_interval, cache_max_age,
//     mode, label_namespace, textfile, http_listen, time_settings [],
//     hosts []
//   - Host: hostname, address, cluster_nodes, always_expect_data,
//     time_settings []
//   - TimeSetting: origin_pattern, setting (max_cache_age | validity_period |
//     validity_state), threshold
//
// Load(path) reads the YAML file, applies defaults (60s interval, checking
// mode, "cmk" label namespace), then validates required fields, enums and
// origin patterns. The host table is never modified after Load; a reload
// produces a new Config.
//
// FetcherConfig and SummarizerConfig translate a Host into the parameters of
// the piggyback package, prepending the global time settings.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config

// Package config handles server-side configuration loading from YAML files,
// with environment overrides for the RetroQuest application keys.
package config

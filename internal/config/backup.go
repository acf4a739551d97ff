package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxBackups is the number of user config backups retained by
// BackupUserConfig; older backups are pruned on each new backup.
const (
	MaxBackups   = 3
	BackupSuffix = ".bak"
)

// BackupUserConfig writes a timestamped copy of the current user config
// file, returning its path. If no user config exists yet there is nothing
// to back up: it returns an empty path and a nil error.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, timestamp)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	_ = pruneOldBackups() // best effort; a failed prune doesn't invalidate the backup just taken
	return backupPath, nil
}

// ListUserConfigBackups returns every backup of the user config, newest
// first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	configDir := filepath.Dir(configPath)
	configBase := filepath.Base(configPath)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := configBase + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(configDir, entry.Name()))
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, errI := os.Stat(backups[i])
		infoJ, errJ := os.Stat(backups[j])
		if errI != nil || errJ != nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})
	return backups, nil
}

// pruneOldBackups removes backups beyond MaxBackups, keeping the newest.
func pruneOldBackups() error {
	backups, err := ListUserConfigBackups()
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, b := range backups[MaxBackups:] {
		if err := os.Remove(b); err != nil {
			continue // best effort
		}
	}
	return nil
}

// RestoreUserConfig restores the user config from a backup file, itself
// backing up whatever is currently in place first. No CLI subcommand
// calls it.
func RestoreUserConfig(backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}
	if UserConfigExists() {
		if _, err := BackupUserConfig(); err != nil {
			return fmt.Errorf("failed to back up current config before restore: %w", err)
		}
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	configDir := GetUserConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(GetUserConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}

// ResetUserConfig backs up and replaces the user config file with
// defaults, returning the backup path taken (empty if none existed).
func ResetUserConfig() (backupPath string, err error) {
	backupPath, err = BackupUserConfig()
	if err != nil {
		return "", err
	}
	if err := New().WriteYAML(GetUserConfigPath()); err != nil {
		return backupPath, fmt.Errorf("failed to write default config: %w", err)
	}
	return backupPath, nil
}

package main

import "go.uber.org/zap"

// LoadChecksums reads the slug->archive hash map from the backup state file.
// A missing or corrupt file yields an empty map, which forces a fresh upload.
func LoadChecksums(path string, logger *zap.Logger) map[string]string {
	m, err := loadJSON(path, map[string]string{})
	if err != nil {
		logger.Debug("no usable backup state", zap.String("path", path), zap.Error(err))
		return map[string]string{}
	}
	if m == nil {
		m = map[string]string{}
	}
	return m
}

// SaveChecksums writes the slug->archive hash map to the backup state file.
func SaveChecksums(path string, m map[string]string) error {
	return saveJSON(path, m)
}

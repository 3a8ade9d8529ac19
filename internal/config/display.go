package config

import (
	"fmt"
	"io"
)

// WriteValues writes every setting of cfg as "key = value", one per line
// in key order. Secrets are masked.
func WriteValues(w io.Writer, cfg *Config) error {
	values, err := ListValues(cfg, true)
	if err != nil {
		return err
	}
	for _, k := range SortedKeys(values) {
		if _, err := fmt.Fprintf(w, "%s = %v\n", k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// DisplayValue formats the value stored under key for output.
func DisplayValue(key string, v any) string {
	if IsSecretKey(key) {
		v = MaskSecrets(map[string]any{key: v})[key]
	}
	return fmt.Sprint(v)
}

// Check validates a raw value before Update stores it under Key.
type Check struct {
	Key      string
	Validate func(value string) error
}

// Update stores value under key in the file at path, creating the file with
// defaults first if needed. Checks registered for key run before anything
// is written. It returns the stored value formatted for output.
func Update(path, key, value string, checks ...Check) (string, error) {
	if _, err := Load(path); err != nil {
		return "", err
	}
	for _, c := range checks {
		if c.Key != key || c.Validate == nil {
			continue
		}
		if err := c.Validate(value); err != nil {
			return "", fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if err := SetValue(path, key, value); err != nil {
		return "", err
	}
	return DisplayValue(key, value), nil
}

package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	fileValuesLock sync.RWMutex
	fileValues     map[string]string
)

// loadFileValues reads a flat YAML mapping of environment variable names to values.
//
//	INVENTORY_API_URL: https://api.example.com
//	INVENTORY_MAX_RETRIES: 3
func loadFileValues(path string) error {
	if path == "" {
		fileValuesLock.Lock()
		fileValues = nil
		fileValuesLock.Unlock()
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "[loadFileValues] ReadFile")
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "[loadFileValues] Unmarshal")
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}

	fileValuesLock.Lock()
	fileValues = values
	fileValuesLock.Unlock()
	return nil
}

func fileValue(envVar string) (string, bool) {
	fileValuesLock.RLock()
	defer fileValuesLock.RUnlock()
	v, ok := fileValues[envVar]
	return v, ok && v != ""
}

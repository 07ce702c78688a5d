package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindCollector = "collector"
	KindClient    = "client"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindCollector:
		return collectorTemplate, nil
	case KindClient:
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const collectorTemplate = `name = "collector"
addr = ":8000"
cors_origins = ["http://localhost:3000"]
storage_dir = "local/sessions"
# json or cbor
storage_format = "json"
max_body_bytes = 67108864
`

const clientTemplate = `base_url = "http://localhost:8000"
ingest_path = "/upload/camera"
max_attempts = 3
attempt_timeout = "30s"
backoff_base = "1s"
backoff_multiplier = 2.0
backoff_jitter = false
backoff_disabled = false
user = ""
label = ""
`

/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config pkg/config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. LINERADAR_LISTEN_ADDR.
const EnvPrefix = "LINERADAR"

var envRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// LoadFile decodes the JSON file at path into dst. ${VAR} references are
// expanded from the environment first, and unknown fields are rejected.
func LoadFile(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	expanded := envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		if v, ok := os.LookupEnv(string(ref[2 : len(ref)-1])); ok {
			return []byte(v)
		}

		return ref
	})

	dec := json.NewDecoder(bytes.NewReader(expanded))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode '%s': %w", path, err)
	}

	return nil
}

// LoadAndValidate loads path into cfg, applies LINERADAR_* overrides when
// cfg supports them and validates the result when it is a Validator.
func LoadAndValidate(path string, cfg interface{}) error {
	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	if o, ok := cfg.(EnvOverrider); ok {
		o.LoadFromEnv(EnvPrefix)
	}

	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to load env file '%s': %w", p, err)
		}
	}

	return nil
}

// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package config

import (
	"fmt"

	"github.com/tomtom215/wayfarer/internal/validation"
)

// Validate checks struct tags on every section, then the pipeline's own
// cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Data.Synthetic && c.Data.HasPaths() {
		return fmt.Errorf("data.synthetic and data.paths are mutually exclusive")
	}
	return nil
}

// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package virtualswapchain

import (
	"strings"
	"time"

	"github.com/google/gapid/core/fault"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read by LoadConfig.
const EnvPrefix = "VIRTUAL_SWAPCHAIN"

// ErrInvalidConfig is the cause of every error returned by Config.Validate.
const ErrInvalidConfig = fault.Const("Invalid virtual swapchain configuration")

// Config holds the tunables of the layer.
type Config struct {
	// PendingTimeout bounds each idle wait of the copy-back worker.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	// DrainTimeout bounds the fence wait of each frame still pending when a
	// swapchain is destroyed. Zero waits forever.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// AlwaysGetAcquiredImage makes every swapchain hand out the image index
	// requested by the application instead of the oldest free one.
	AlwaysGetAcquiredImage bool `mapstructure:"always_get_acquired_image"`
	// ForwardPresent enables presentation to a chained native surface.
	ForwardPresent bool `mapstructure:"forward_present"`
	// DisableBaseSwapchain stops swapchain creation from opening the native
	// surface described by the virtual surface.
	DisableBaseSwapchain bool `mapstructure:"disable_base_swapchain"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		PendingTimeout: 10 * time.Millisecond,
		ForwardPresent: true,
	}
}

// NewViper returns a viper instance bound to the layer's environment
// variables, with the defaults of DefaultConfig.
func NewViper() *viper.Viper {
	def := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault("pending_timeout", def.PendingTimeout)
	v.SetDefault("drain_timeout", def.DrainTimeout)
	v.SetDefault("always_get_acquired_image", def.AlwaysGetAcquiredImage)
	v.SetDefault("forward_present", def.ForwardPresent)
	v.SetDefault("disable_base_swapchain", def.DisableBaseSwapchain)
	return v
}

// ConfigFrom reads and validates a Config from v.
func ConfigFrom(v *viper.Viper) (Config, error) {
	cfg := Config{
		PendingTimeout:         v.GetDuration("pending_timeout"),
		DrainTimeout:           v.GetDuration("drain_timeout"),
		AlwaysGetAcquiredImage: v.GetBool("always_get_acquired_image"),
		ForwardPresent:         v.GetBool("forward_present"),
		DisableBaseSwapchain:   v.GetBool("disable_base_swapchain"),
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads the configuration from the VIRTUAL_SWAPCHAIN_*
// environment variables.
func LoadConfig() (Config, error) {
	return ConfigFrom(NewViper())
}

// Validate checks the configuration for values the layer cannot run with.
func (c Config) Validate() error {
	if c.PendingTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "pending timeout %v is not positive", c.PendingTimeout)
	}
	if c.DrainTimeout < 0 {
		return errors.Wrapf(ErrInvalidConfig, "drain timeout %v is negative", c.DrainTimeout)
	}
	return nil
}

// withDefaults replaces the values Validate rejects with those of
// DefaultConfig, so a zero Config runs like the default one.
func (c Config) withDefaults() Config {
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = DefaultConfig().PendingTimeout
	}
	if c.DrainTimeout < 0 {
		c.DrainTimeout = 0
	}
	return c
}

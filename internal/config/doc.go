// Package config provides configuration structures and utilities for portalcapture.
// It defines the portal, captcha, render, storage and run settings and loads
// them from defaults, a YAML file, the environment and CLI flags.
package config

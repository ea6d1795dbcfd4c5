// Package kconfig loads the kernel's boot configuration: the timer
// frequency, whether a single named program image boots as pid 1, or the
// default four-image set boots as pids 1..4.
//
// Grounded on google-gvisor's cmd/gvisor-containerd-shim/config.go, which
// decodes a TOML file into a small struct via
// github.com/BurntSushi/toml.DecodeFile.
package kconfig

import "github.com/BurntSushi/toml"

// DefaultImages is the boot-time process set loaded when no image is
// named: four instances of the allocator demo program, pids 1..4.
var DefaultImages = []string{"allocator", "allocator2", "allocator3", "allocator4"}

// Config is the kernel's boot configuration.
type Config struct {
	// HZ is the timer interrupt frequency passed to init_timer.
	HZ int `toml:"hz"`
	// Image names a single program image to boot as pid 1. If empty,
	// DefaultImages boot as pids 1..4 instead.
	Image string `toml:"image"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{HZ: 100}
}

// Load decodes a TOML config file at path, starting from Default() so an
// omitted field keeps its default.
func Load(path string) (Config, error) {
	c := Default()
	_, err := toml.DecodeFile(path, &c)
	return c, err
}

// Images returns the set of program images to boot, applying the
// single-image-vs-default-four-images rule.
func (c Config) Images() []string {
	if c.Image == "" {
		return DefaultImages
	}
	return []string{c.Image}
}

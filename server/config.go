package server

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/voxeld/voxeld"
)

const (
	// DefaultHTTPAddress is the default bind address of the voxeld web server.
	DefaultHTTPAddress = "127.0.0.1:8080"

	// DefaultShutdownDelay is the number of seconds we wait for outstanding
	// requests when shutting down.
	DefaultShutdownDelay = 5

	// DefaultMaxConcurrentParses bounds how many background parses may run
	// at once, since each holds a whole file plus its grid in memory.
	DefaultMaxConcurrentParses = 4

	// DefaultTaskTTLMinutes is how long completed and abandoned tasks are
	// retained before the sweeper drops them.
	DefaultTaskTTLMinutes = 30

	// DefaultSweepMinutes is how often the task sweeper runs.
	DefaultSweepMinutes = 5
)

var (
	// DefaultHost is the default most understandable alias for this server.
	DefaultHost = "localhost"

	// the parsed TOML configuration data
	tc tomlConfig

	// the TOML config file location
	tcLocation string
)

func init() {
	// Set default Host name for understandability from user perspective.
	// Assumes Linux or Mac.
	cmd := exec.Command("/bin/hostname", "-f")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err == nil {
		DefaultHost = strings.TrimSpace(out.String())
	}
	tc.setDefaults()
}

type tomlConfig struct {
	Server  localConfig
	Logging voxeld.LogConfig
	Tasks   tasksConfig
}

type localConfig struct {
	Host          string
	HTTPAddress   string   `toml:"httpAddress"`
	ResourceDir   string   `toml:"resourceDir"`
	CorsOrigins   []string `toml:"corsOrigins"`
	ShutdownDelay int      `toml:"shutdownDelay"`
	Note          string
}

type tasksConfig struct {
	MaxConcurrentParses int `toml:"maxConcurrentParses"`
	TTLMinutes          int `toml:"ttlMinutes"`
	SweepMinutes        int `toml:"sweepMinutes"`
}

func (c *tomlConfig) setDefaults() {
	c.Server.HTTPAddress = DefaultHTTPAddress
	c.Server.ShutdownDelay = DefaultShutdownDelay
	c.Tasks.MaxConcurrentParses = DefaultMaxConcurrentParses
	c.Tasks.TTLMinutes = DefaultTaskTTLMinutes
	c.Tasks.SweepMinutes = DefaultSweepMinutes
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *tomlConfig) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [server].resourceDir
	if c.Server.ResourceDir != "" {
		c.Server.ResourceDir, err = voxeld.ConvertToAbsolute(c.Server.ResourceDir, configDir)
		if err != nil {
			return fmt.Errorf("error converting resourceDir to absolute path: %v", err)
		}
	}

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = voxeld.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
	}
	return nil
}

// LoadConfig loads voxeld server configuration from a TOML file.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("no server TOML configuration file provided")
	}
	tc.setDefaults()
	if _, err := toml.DecodeFile(filename, &tc); err != nil {
		return fmt.Errorf("could not decode TOML config: %v", err)
	}
	tcLocation = filename
	if err := tc.convertPathsToAbsolute(filename); err != nil {
		return fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	tc.Logging.SetLogger()
	return nil
}

// SetHTTPAddress overrides the configured bind address, typically from a
// command-line flag.  Empty strings are ignored.
func SetHTTPAddress(address string) {
	if address != "" {
		tc.Server.HTTPAddress = address
	}
}

// SetResourceDir overrides the configured resource directory, typically
// from a command-line flag.  Empty strings are ignored.
func SetResourceDir(dir string) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			voxeld.Errorf("Couldn't get absolute path of resource dir %q: %v\n", dir, err)
			abs = dir
		}
		tc.Server.ResourceDir = abs
	}
}

// Host returns the most understandable host alias + any port.
func Host() string {
	parts := strings.Split(tc.Server.HTTPAddress, ":")
	host := tc.Server.Host
	if host == "" {
		host = DefaultHost
	}
	if len(parts) > 1 {
		host = host + ":" + parts[len(parts)-1]
	}
	return host
}

func ConfigLocation() string {
	return tcLocation
}

func Note() string {
	return tc.Server.Note
}

func HTTPAddress() string {
	return tc.Server.HTTPAddress
}

// ResourceDir returns the directory grid files are served from.
func ResourceDir() string {
	return tc.Server.ResourceDir
}

func corsOrigins() []string {
	if len(tc.Server.CorsOrigins) == 0 {
		return []string{"*"}
	}
	return tc.Server.CorsOrigins
}

// checkResourceDir makes sure the configured resource directory exists and
// is a directory before we start serving from it.
func checkResourceDir() error {
	if tc.Server.ResourceDir == "" {
		return fmt.Errorf("no resource directory configured; set [server].resourceDir or use -resources")
	}
	info, err := os.Stat(tc.Server.ResourceDir)
	if err != nil {
		return fmt.Errorf("can't use resource directory %q: %v", tc.Server.ResourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("resource path %q is not a directory", tc.Server.ResourceDir)
	}
	return nil
}

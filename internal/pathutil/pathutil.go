// Package pathutil manages application file paths and locations
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"

	"github.com/lifetrack/lifetrack/internal/config"
	"github.com/lifetrack/lifetrack/internal/osutil"
)

// EnvVar selects an isolated set of files, so that a test or development
// instance does not touch the real session.
const EnvVar = "LIFETRACK_ENV"

// Paths holds all application path configurations.
type Paths struct {
	appDir         string
	configFileName string
	storageDirName string
	boltFileName   string
	remoteFileName string
	logFileName    string

	configFilePath string
	storageDir     string
	boltFilePath   string
	remoteFilePath string
	logFilePath    string
}

var (
	paths   *Paths
	once    sync.Once
	initErr error
)

// Initialize must be called once at program startup.
func Initialize() error {
	once.Do(func() {
		paths = &Paths{
			appDir:         "lifetrack",
			configFileName: "config.yml",
			storageDirName: "storage",
			boltFileName:   "storage.db",
			remoteFileName: "remote.db",
			logFileName:    "lifetrack.log",
		}

		paths.applyEnvironmentOverrides(os.Getenv(EnvVar))
		initErr = paths.computePaths()
	})

	return initErr
}

// Must panics if paths haven't been initialized.
func Must() *Paths {
	if paths == nil {
		panic("pathutil.Initialize() must be called before accessing paths")
	}

	return paths
}

func ConfigFilePath() string {
	return Must().configFilePath
}

func LogFilePath() string {
	return Must().logFilePath
}

// System returns the resolved locations in the form the config expects.
func (p *Paths) System() config.SystemConfig {
	return config.SystemConfig{
		ConfigPath:  p.configFilePath,
		StoragePath: p.storageDir,
		BoltPath:    p.boltFilePath,
		RemotePath:  p.remoteFilePath,
		LogPath:     p.logFilePath,
	}
}

func (p *Paths) applyEnvironmentOverrides(env string) {
	env = strings.TrimSpace(env)
	if env == "" {
		return
	}

	p.configFileName = fmt.Sprintf("config_%s.yml", env)
	p.storageDirName = fmt.Sprintf("storage_%s", env)
	p.boltFileName = fmt.Sprintf("storage_%s.db", env)
	p.remoteFileName = fmt.Sprintf("remote_%s.db", env)
	p.logFileName = fmt.Sprintf("lifetrack_%s.log", env)
}

func (p *Paths) computePaths() error {
	var err error

	p.configFilePath, err = xdg.ConfigFile(
		filepath.Join(p.appDir, p.configFileName),
	)
	if err != nil {
		return err
	}

	dataDir, err := xdg.DataFile(p.appDir)
	if err != nil {
		return err
	}

	err = os.MkdirAll(dataDir, osutil.DirPermission)
	if err != nil {
		return err
	}

	p.storageDir = filepath.Join(dataDir, p.storageDirName)
	p.boltFilePath = filepath.Join(dataDir, p.boltFileName)
	p.remoteFilePath = filepath.Join(dataDir, p.remoteFileName)
	p.logFilePath = filepath.Join(dataDir, "log", p.logFileName)

	return nil
}

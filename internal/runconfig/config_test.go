package runconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parcp/parcp/internal/walk"
)

func baseConfig() *Config {
	return &Config{
		Sources:   []string{"/src"},
		Target:    "/dst",
		Driver:    DriverParFile,
		Workers:   4,
		BlockSize: 1 << 20,
		Reflink:   ReflinkAuto,
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, baseConfig().Validate())
}

func TestValidate_NoSources(t *testing.T) {
	c := baseConfig()
	c.Sources = nil
	assert.Error(t, c.Validate())
}

func TestValidate_NoTarget(t *testing.T) {
	c := baseConfig()
	c.Target = ""
	assert.Error(t, c.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	c := baseConfig()
	c.Driver = Driver("bogus")
	assert.Error(t, c.Validate())
}

func TestValidate_NonPositiveWorkers(t *testing.T) {
	c := baseConfig()
	c.Workers = 0
	assert.Error(t, c.Validate())
}

func TestValidate_NonPositiveBlockSize(t *testing.T) {
	c := baseConfig()
	c.BlockSize = 0
	assert.Error(t, c.Validate())
}

func TestValidate_UnknownReflinkMode(t *testing.T) {
	c := baseConfig()
	c.Reflink = ReflinkMode("bogus")
	assert.Error(t, c.Validate())
}

func TestValidate_NoTargetDirectoryRequiresOneSource(t *testing.T) {
	c := baseConfig()
	c.Sources = []string{"/src1", "/src2"}
	c.NoTargetDirectory = true
	assert.Error(t, c.Validate())
}

func TestWalkerConfig_ProjectsFields(t *testing.T) {
	c := baseConfig()
	c.Recursive = true
	c.NoClobber = true
	c.Backup = walk.BackupNumbered
	c.Gitignore = true
	c.Glob = true
	c.Filter = nil

	wc := c.WalkerConfig()
	assert.Equal(t, c.Sources, wc.Sources)
	assert.Equal(t, c.Target, wc.Target)
	assert.True(t, wc.Recursive)
	assert.True(t, wc.NoClobber)
	assert.Equal(t, walk.BackupNumbered, wc.Backup)
	assert.True(t, wc.Gitignore)
	assert.True(t, wc.GlobExpand)
	assert.Equal(t, 2*c.Workers, wc.QueueCapacity)
}

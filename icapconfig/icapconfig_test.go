package icapconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, ":1344", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3600, cfg.OptionsTTL)
	assert.Equal(t, "", cfg.ISTag)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	os.Setenv("ICAP_ADDR", ":2344")
	defer os.Unsetenv("ICAP_ADDR")

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, ":2344", cfg.Addr)
}

func TestLoadToleratesMissingConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/icap.yaml")
	assert.NoError(t, err)
	assert.Equal(t, ":1344", cfg.Addr)
}

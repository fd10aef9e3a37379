package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FlagsOverride(t *testing.T) {
	t.Setenv("MOTOR_PORT", "/dev/ttyACM0")
	t.Setenv("MOTOR_FEED_RATE", "250")

	a := &app{}
	root := newRootCmd(a)
	cmd, _, err := root.Find([]string{"status"})
	require.NoError(t, err)

	env := filepath.Join(t.TempDir(), "missing.env")
	require.NoError(t, cmd.ParseFlags([]string{"--env", env, "--port", "/dev/ttyUSB3", "-v", "--id", "4"}))
	require.NoError(t, a.load(cmd))

	assert.Equal(t, "/dev/ttyUSB3", a.cfg.Serial.Device)
	assert.Equal(t, 250.0, a.cfg.Motor.FeedRate)
	assert.Equal(t, 4, a.cfg.Motor.ID)
	assert.Equal(t, "debug", a.log.GetLevel().String())

	opts := a.options(nil)
	assert.NotNil(t, opts.Store)
	assert.Equal(t, 4, opts.ID)
}

package winui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpawnRequiresExecutablePath(t *testing.T) {
	_, err := NewExecLauncher().Spawn(context.Background(), LaunchSpec{Args: "/v:srv01"})
	assert.Error(t, err)
}

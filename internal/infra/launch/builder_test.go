package launch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequiresHost(t *testing.T) {
	b := NewClientBuilder("mstsc.exe", "")

	_, err := b.Build(context.Background(), Connection{})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		conn Connection
		want string
	}{
		{
			name: "host and port",
			conn: Connection{Host: "srv01", Port: 3389},
			want: "/v:srv01:3389",
		},
		{
			name: "host without port",
			conn: Connection{Host: "srv01"},
			want: "/v:srv01",
		},
		{
			name: "all feature flags",
			conn: Connection{
				Host: "srv01", Port: 3389,
				Admin: true, RestrictedAdmin: true, Public: true, RemoteGuard: true,
				Fullscreen: true, Span: true, MultiMon: true,
				Width: 1920, Height: 1080,
			},
			want: "/v:srv01:3389 /admin /restrictedAdmin /public /remoteGuard /f /span /multimon /w:1920 /h:1080",
		},
		{
			name: "default params and extra args appended",
			conn: Connection{Host: "srv01", DefaultParams: "/prompt", ExtraArgs: "/custom:1"},
			want: "/v:srv01 /prompt /custom:1",
		},
		{
			name: "blank params are dropped",
			conn: Connection{Host: "srv01", DefaultParams: "   ", ExtraArgs: ""},
			want: "/v:srv01",
		},
	}

	b := NewClientBuilder("mstsc.exe", `C:\work`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := b.Build(context.Background(), tt.conn)
			require.NoError(t, err)
			assert.Equal(t, "mstsc.exe", cmd.Path)
			assert.Equal(t, `C:\work`, cmd.WorkDir)
			assert.Equal(t, tt.want, cmd.Args)
		})
	}
}

func TestBuildDescriptorIsFirstArgument(t *testing.T) {
	b := NewClientBuilder("mstsc.exe", "")

	cmd, err := b.Build(context.Background(), Connection{
		Host:           "srv01",
		Port:           3389,
		Fullscreen:     true,
		DescriptorPath: `C:\tmp\session.rdp`,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cmd.Args, `"C:\tmp\session.rdp" `))
	assert.Contains(t, cmd.Args, "/v:srv01:3389")
}

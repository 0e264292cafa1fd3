package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host          string
		containerized bool
		want          string
	}{
		{"localhost", true, dockerHostAlias},
		{"LOCALHOST", true, dockerHostAlias},
		{"127.0.0.1", true, dockerHostAlias},
		{"127.0.0.53", true, dockerHostAlias},
		{"::1", true, dockerHostAlias},
		{"[::1]", true, dockerHostAlias},
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
		{"lakehouse.internal", true, "lakehouse.internal"},
		{"10.0.0.7", true, "10.0.0.7"},
		{dockerHostAlias, true, dockerHostAlias},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveHost(tt.host, tt.containerized))
		})
	}
}

func TestResolveHostForDocker_LeavesRemoteHosts(t *testing.T) {
	assert.Equal(t, "reports.example.com", ResolveHostForDocker("reports.example.com"))
}

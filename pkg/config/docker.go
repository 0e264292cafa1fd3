package config

import (
	"net"
	"os"
	"strings"
	"sync"
)

// dockerHostAlias reaches services published on the Docker host.
const dockerHostAlias = "host.docker.internal"

var (
	inContainerOnce sync.Once
	inContainer     bool
)

// IsRunningInDocker reports whether the process runs in a container, based
// on /.dockerenv. The result is computed once.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inContainer = err == nil
	})
	return inContainer
}

// isLoopback matches "localhost" and any loopback IP literal.
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// ResolveHostForDocker rewrites a loopback lakehouse or report store host
// to the Docker host alias when running in a container.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerized bool) string {
	if containerized && isLoopback(host) {
		return dockerHostAlias
	}
	return host
}

// Package testutil holds helpers shared by integration tests: a Docker
// client for detector container tests, free ports, server readiness and
// the PostgreSQL DSN gate.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

// CleanupLabel marks detector containers started by tests.
const CleanupLabel = "relayout-test"

const maxNameLen = 30

// TestingT is the part of testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Helper()
	Skipf(format string, args ...any)
}

// DockerClient returns a Docker client and removes the test's labeled
// containers when it finishes. Skips when no daemon answers.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		removed, err := removeLabeled(ctx, cli, CleanupLabel+"="+t.Name())
		if err != nil {
			t.Logf("detector container cleanup: %v", err)
		}
		for _, name := range removed {
			t.Logf("removed detector container %s", name)
		}
		cli.Close()
	})

	return cli
}

// UniqueContainerName returns relayout-test-<prefix>-<test>-<suffix>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("relayout-test-%s-%s-%s", prefix, containerSafe(t.Name()), suffix)
}

// ContainerLabels tags a container for removal at the end of t.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

// removeLabeled force-removes every container matching label and returns
// the names it removed. It keeps going past individual failures.
func removeLabeled(ctx context.Context, cli *client.Client, label string) ([]string, error) {
	args := filters.NewArgs()
	args.Add("label", label)

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	var firstErr error
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove container %s: %w", name, err)
			}
			continue
		}
		removed = append(removed, name)
	}
	return removed, firstErr
}

// containerSafe keeps letters and digits, maps separators to '-' and
// truncates so names stay readable in `docker ps`.
func containerSafe(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '/', r == '_', r == '-':
			b.WriteByte('-')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	return b.String()
}

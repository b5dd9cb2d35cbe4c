// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor implements the build and destroy executors, components
// C5 and C6: clone, image build, container lifecycle, and the associated
// compensating teardown.
package executor

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Docker wraps the subset of the Docker Engine API the executors need.
type Docker struct {
	cli *client.Client
}

// NewDocker wraps an already-constructed engine client.
func NewDocker(cli *client.Client) *Docker {
	return &Docker{cli: cli}
}

// Ping confirms the engine is reachable.
func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("engine-unavailable: %w", err)
	}
	return nil
}

// BuildImage builds buildContextDir's contents into an image tagged tag,
// using the recipe at dockerfilePath (relative to the build context).
func (d *Docker) BuildImage(ctx context.Context, buildContextDir, dockerfilePath, tag string) error {
	tarball, err := tarDirectory(buildContextDir)
	if err != nil {
		return fmt.Errorf("failed to tar build context: %w", err)
	}

	resp, err := d.cli.ImageBuild(ctx, tarball, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfilePath,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to read image build output: %w", err)
	}
	return nil
}

func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// RemoveImage removes an image by reference, ignoring not-found errors.
func (d *Docker) RemoveImage(ctx context.Context, ref string) error {
	if _, err := d.cli.ImageRemove(ctx, ref, types.ImageRemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// RemoveImagesByPrefix removes every image whose reference starts with prefix.
func (d *Docker) RemoveImagesByPrefix(ctx context.Context, prefix string) error {
	f := filters.NewArgs()
	f.Add("reference", prefix+"*")
	images, err := d.cli.ImageList(ctx, types.ImageListOptions{Filters: f})
	if err != nil {
		return fmt.Errorf("failed to list images with prefix %s: %w", prefix, err)
	}
	for _, img := range images {
		if _, err := d.cli.ImageRemove(ctx, img.ID, types.ImageRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove image %s: %w", img.ID, err)
		}
	}
	return nil
}

// RunContainer creates and starts a detached container from image, named
// name, mapping hostPort to containerPort.
func (d *Docker) RunContainer(ctx context.Context, image, name string, hostPort, containerPort int) (string, error) {
	portKey := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:        image,
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", hostPort)}},
		},
	}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return resp.ID, nil
}

// ContainerHealthStatus returns the engine-reported health status, or ""
// if the image defines no healthcheck.
func (d *Docker) ContainerHealthStatus(ctx context.Context, containerID string) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	if info.State == nil || info.State.Health == nil {
		return "", nil
	}
	return info.State.Health.Status, nil
}

// ContainerImageRef returns the image reference a container was created from.
func (d *Docker) ContainerImageRef(ctx context.Context, containerID string) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container %s: %w", containerID, err)
	}
	return info.Config.Image, nil
}

// StopContainer gracefully stops containerID within timeoutSeconds.
func (d *Docker) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	timeout := timeoutSeconds
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	return nil
}

// RemoveContainer removes containerID, forcing removal if force is set.
func (d *Docker) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: force}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// ListContainersByName returns the ids of containers whose name matches
// exactly (Docker's name filter matches substrings, so the engine's results
// are narrowed here to exact names: preview-4 never matches preview-42).
func (d *Docker) ListContainersByName(ctx context.Context, name string) ([]string, error) {
	f := filters.NewArgs()
	f.Add("name", name)
	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers named %s: %w", name, err)
	}
	ids := make([]string, 0, len(containers))
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids, nil
}

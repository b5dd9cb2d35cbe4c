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

package executor

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestTarDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("failed to create fixture subdirectory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to write nested fixture file: %v", err)
	}

	r, err := tarDirectory(dir)
	if err != nil {
		t.Fatalf("tarDirectory: %v", err)
	}

	tr := tar.NewReader(r)
	var names []string
	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed reading tar entry: %v", err)
		}
		names = append(names, hdr.Name)
		b, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("failed reading tar entry body: %v", err)
		}
		contents[hdr.Name] = string(b)
	}
	sort.Strings(names)

	want := []string{"Dockerfile", filepath.Join("sub", "nested.txt")}
	sort.Strings(want)
	if len(names) != len(want) {
		t.Fatalf("tar entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tar entries = %v, want %v", names, want)
		}
	}

	if got, want := contents["Dockerfile"], "FROM scratch\n"; got != want {
		t.Errorf("Dockerfile contents = %q, want %q", got, want)
	}
	if got, want := contents[filepath.Join("sub", "nested.txt")], "hello"; got != want {
		t.Errorf("nested.txt contents = %q, want %q", got, want)
	}
}

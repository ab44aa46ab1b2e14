// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	origVersion, origCommit, origBranch, origDate := Version, GitCommit, GitBranch, BuildDate
	defer func() { Version, GitCommit, GitBranch, BuildDate = origVersion, origCommit, origBranch, origDate }()

	Version, GitCommit, GitBranch, BuildDate = "1.0.0", "", "", ""
	assert.Contains(t, String(), "1.0.0")

	Version, GitCommit, GitBranch, BuildDate = "1.0.0", "abcdef1234567890", "main", "2025-01-11"
	str := String()
	assert.Contains(t, str, "1.0.0")
	assert.Contains(t, str, "abcdef1")
	assert.Contains(t, str, "main")
}

func TestShort(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version, GitCommit = "1.0.0", ""
	assert.Equal(t, "1.0.0", Short())

	Version, GitCommit = "1.0.0", "abcdef1234567890"
	assert.Equal(t, "1.0.0-abcdef1", Short())
}

func TestUserAgent(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	Version, GitCommit = "1.0.0", ""
	assert.Equal(t, "petrelay-core/1.0.0", UserAgent())

	GitCommit = "abcdef1234567890"
	assert.Equal(t, "petrelay-core/1.0.0-abcdef1", UserAgent())
}

func TestGetModuleVersion(t *testing.T) {
	assert.NotEmpty(t, GetModuleVersion())
}

func TestPrintVersion(t *testing.T) {
	assert.NotPanics(t, PrintVersion)
}

func TestPrintVersionJSON(t *testing.T) {
	assert.NotPanics(t, PrintVersionJSON)
}

func TestVersionConstants(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, GoVersion)
	assert.True(t, len(GoVersion) >= 2 && GoVersion[:2] == "go")
}

func TestInfoStruct(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		GitCommit: "abc123",
		GitBranch: "main",
		BuildDate: "2025-01-11",
		GoVersion: "go1.23.0",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "abc123", info.GitCommit)
	assert.Equal(t, "main", info.GitBranch)
	assert.Equal(t, "2025-01-11", info.BuildDate)
	assert.Equal(t, "go1.23.0", info.GoVersion)
	assert.Equal(t, "linux/amd64", info.Platform)
}

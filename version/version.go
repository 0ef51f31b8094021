package version

import (
	"fmt"
	"strings"
)

// buildMetadataCharacters lists the characters allowed in appBuild.
const buildMetadataCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild may be set at link time with
// '-ldflags "-X github.com/blockkernel/blockkernel/version.appBuild=foo"'.
var appBuild string

var version = ""

// Version returns the semantic version of the binaries, with the build
// metadata appended when it is well formed.
func Version() string {
	if version == "" {
		version = format(appMajor, appMinor, appPatch, appBuild)
	}
	return version
}

func format(major, minor, patch uint, build string) string {
	formatted := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if validBuild(build) {
		formatted += "+" + build
	}
	return formatted
}

func validBuild(build string) bool {
	if build == "" || strings.HasPrefix(build, ".") || strings.HasSuffix(build, ".") {
		return false
	}
	for _, r := range build {
		if !strings.ContainsRune(buildMetadataCharacters, r) {
			return false
		}
	}
	return true
}

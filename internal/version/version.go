// Package version provides the current version of the service.
package version

import (
	"fmt"
	"strings"
)

// Version is the service version, following semantic versioning.
var Version = "0.4.1"

// DevVersion is the latest development version.
var DevVersion = "0.4.2"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func GetMinorVersion(version string) string {
	versionList := strings.Split(version, ".")
	if len(versionList) < 3 {
		return ""
	}
	return versionList[0] + "." + versionList[1]
}

func GetSchemaVersion(version string) string {
	minorVersion := GetMinorVersion(version)
	return fmt.Sprintf("%s.0", minorVersion)
}

package report

import (
	"fmt"
	"strings"
)

// ArtifactRoot is the top-level prefix under which reports are stored.
const ArtifactRoot = "artifacts"

const htmlExtension = ".html"

// Axis is the dimension a report is grouped by.
type Axis string

const (
	AxisInfrastructure Axis = "INFRASTRUCTURE"
	AxisDeployment     Axis = "DEPLOYMENT"
	AxisScenario       Axis = "SCENARIO"
)

// DefaultAxis is used when the caller does not choose one.
const DefaultAxis = AxisScenario

var axes = map[string]Axis{
	string(AxisInfrastructure): AxisInfrastructure,
	string(AxisDeployment):     AxisDeployment,
	string(AxisScenario):       AxisScenario,
}

// ParseAxis matches s case-insensitively against the known axes.
func ParseAxis(s string) (Axis, error) {
	a, ok := axes[strings.ToUpper(s)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAxis, s)
	}
	return a, nil
}

// Filename is the report file name, e.g. "wso2is-SCENARIO.html". Other tooling
// writes reports under this exact name.
func Filename(productName string, axis Axis) string {
	return productName + "-" + string(axis) + htmlExtension
}

// ResolveKey returns the object key of a product's report for axis:
//
//	artifacts/{productName}/{productName}-{AXIS}.html
//
// The name is used verbatim; nothing is cleaned or collapsed. Callers must
// reject names that are not a single key segment (see validKeySegment).
func ResolveKey(productName string, axis Axis) string {
	return ArtifactRoot + "/" + productName + "/" + Filename(productName, axis)
}

// validKeySegment reports whether name can stand as one component of an
// object key and a local path.
func validKeySegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

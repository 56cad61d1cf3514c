package core

import "strings"

// Environment is the deployment environment, driving logger setup.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string { return string(e) }

// ParseEnvironment maps an APP_ENV value to a known environment, accepting
// the common short forms. Anything unrecognized runs as development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "testing", "test":
		return Testing
	default:
		return Development
	}
}

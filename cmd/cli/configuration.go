package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/temirov/repofleet/internal/platform/github"
	"github.com/temirov/repofleet/internal/platform/gitlab"
)

const (
	unknownPlatformKindTemplateConstant = "unknown platform kind %q (expected %s or %s)"
)

// PlatformKind selects the hosting platform backend.
type PlatformKind string

// Supported platform kinds.
const (
	PlatformKindGitHub PlatformKind = PlatformKind(github.PlatformName)
	PlatformKindGitLab PlatformKind = PlatformKind(gitlab.PlatformName)
)

// UnmarshalText accepts a platform kind in any letter case.
func (kind *PlatformKind) UnmarshalText(text []byte) error {
	normalized := PlatformKind(strings.ToLower(strings.TrimSpace(string(text))))
	switch normalized {
	case PlatformKindGitHub, PlatformKindGitLab:
		*kind = normalized
		return nil
	default:
		return fmt.Errorf(unknownPlatformKindTemplateConstant, string(text), PlatformKindGitHub, PlatformKindGitLab)
	}
}

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration `mapstructure:"common"`
	Platform PlatformConfiguration          `mapstructure:"platform"`
	Transfer TransferConfiguration          `mapstructure:"transfer"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// PlatformConfiguration selects and authenticates the hosting platform.
type PlatformConfiguration struct {
	Kind                 PlatformKind  `mapstructure:"kind"`
	BaseURL              string        `mapstructure:"base_url"`
	GitBaseURL           string        `mapstructure:"git_base_url"`
	Organization         string        `mapstructure:"org"`
	TemplateOrganization string        `mapstructure:"template_org"`
	User                 string        `mapstructure:"user"`
	Token                string        `mapstructure:"token"`
	RequestInterval      time.Duration `mapstructure:"request_interval"`
	HTTPRetries          int           `mapstructure:"http_retries"`
}

// TransferConfiguration tunes bulk clones and pushes.
type TransferConfiguration struct {
	BatchSize            int           `mapstructure:"batch_size"`
	PushTries            int           `mapstructure:"push_tries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	Branch               string        `mapstructure:"branch"`
	WorkspaceDirectory   string        `mapstructure:"workspace_dir"`
	MetricsFile          string        `mapstructure:"metrics_file"`
}

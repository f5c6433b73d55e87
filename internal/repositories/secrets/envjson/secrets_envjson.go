// Package envjson resolves named secrets from the process environment, with
// an optional directory of JSON files as fallback for local development.
package envjson

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
)

// Provider reads SECRET_<NAME> environment variables holding JSON payloads.
// When Dir is set, <dir>/<name>.json is consulted for names with no matching
// variable.
type Provider struct {
	Dir string
}

func New(dir string) *Provider { return &Provider{Dir: dir} }

func envVarName(name string) string {
	up := strings.ToUpper(name)
	up = strings.NewReplacer("-", "_", ".", "_").Replace(up)
	return "SECRET_" + up
}

func (p *Provider) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	raw := os.Getenv(envVarName(name))
	if raw == "" && p.Dir != "" {
		b, err := os.ReadFile(filepath.Join(p.Dir, name+".json"))
		if err == nil {
			raw = string(b)
		}
	}
	if raw == "" {
		return nil, apperr.Upstream("secret %q not configured", name)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "secret %q is not a flat JSON object", name)
	}
	return payload, nil
}

// Package clientruntime renders the live-reload client that development
// builds embed between the metadata header and the bundled code.
//
// The block starts with StartMarker and ends with the first EndConstruct
// after it; the reload payload framing relies on exactly those two strings,
// so the template must not contain EndConstruct anywhere but its last line.
package clientruntime

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const (
	// StartMarker is the first line of the injected block.
	StartMarker = "// ==ScriptsmithLiveReload=="
	// EndConstruct closes the IIFE the block is wrapped in.
	EndConstruct = "})();"

	// ReconnectDelay is how long a disconnected client waits before dialing again.
	ReconnectDelay = 1000 * time.Millisecond
)

//go:embed client.js.tmpl
var clientSource string

var clientTemplate = template.Must(template.New("client.js").Parse(clientSource))

// Params are the values baked into the rendered client.
type Params struct {
	Host string
	Port int
}

// Render produces the client block for a live-reload channel at host:port.
func Render(p Params) (string, error) {
	if p.Port <= 0 || p.Port > 65535 {
		return "", fmt.Errorf("live-reload port %d is not in valid range 1-65535", p.Port)
	}
	host := p.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	var buf bytes.Buffer
	err := clientTemplate.Execute(&buf, struct {
		URL                  string
		ReconnectDelayMillis int64
	}{
		URL:                  strconv.Quote(fmt.Sprintf("ws://%s:%d/", host, p.Port)),
		ReconnectDelayMillis: ReconnectDelay.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering live-reload client: %w", err)
	}

	out := buf.String()
	if strings.Count(out, EndConstruct) != 1 || !strings.HasSuffix(strings.TrimSpace(out), EndConstruct) {
		return "", fmt.Errorf("live-reload client must end with its only %q", EndConstruct)
	}
	return out, nil
}

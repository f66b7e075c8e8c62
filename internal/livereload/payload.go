package livereload

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/conneroisu/scriptsmith/internal/clientruntime"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/metadata"
)

// MessageTypeReload is the only message type the channel sends.
const MessageTypeReload = "reload"

// Payload is the JSON message pushed to every open client.
type Payload struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// ExtractReloadCode returns the part of an artifact that is safe to
// re-execute in a page that already runs it.
//
// Stage one drops everything up to and including the metadata header end
// marker. Without a header the artifact is returned as is. Stage two drops
// the live-reload block, from its start marker to the first closing
// construct after it, so that applying a reload never opens a second
// connection. A closing construct that appears inside the block itself
// would end the match early.
func ExtractReloadCode(artifact string) string {
	idx := strings.Index(artifact, metadata.HeaderEnd)
	if idx < 0 {
		return artifact
	}
	code := strings.TrimLeft(artifact[idx+len(metadata.HeaderEnd):], " \t\r\n")

	start := strings.Index(code, clientruntime.StartMarker)
	if start < 0 {
		return code
	}
	end := strings.Index(code[start:], clientruntime.EndConstruct)
	if end < 0 {
		return code
	}
	return strings.TrimSpace(code[start+end+len(clientruntime.EndConstruct):])
}

// NewReloadPayload reads the artifact at path and frames it as a reload
// message. The file is read on every call.
func NewReloadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeArtifactRead, "cannot read artifact for reload").WithFile(path)
	}
	return &Payload{Type: MessageTypeReload, Code: ExtractReloadCode(string(data))}, nil
}

// Marshal encodes the payload in wire format.
func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

package orchestrator

import (
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"

	"github.com/familyassistant/core/internal/providers"
)

// largeToolResultThreshold is the point past which a JSON tool result gets
// summarized as a schema instead of being inlined whole into the transcript.
const largeToolResultThreshold = 4000

// summarizeLargeToolResult replaces an oversized JSON tool result with a
// compact structural summary (a JSON Schema reflected from the decoded
// value, which records only its top-level JSON type, not its fields) plus a
// byte count, so the model still knows what came back without the full
// payload eating the context window. Non-JSON or small results pass through
// unchanged.
func summarizeLargeToolResult(content string) string {
	if len(content) <= largeToolResultThreshold {
		return content
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return content
	}

	schema := jsonschema.Reflect(parsed)
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return content
	}

	return "[Tool result was " + strconv.Itoa(len(content)) + " bytes of JSON; showing its shape instead of the full payload]\n" + string(schemaJSON)
}

// attachImagesIfSupported attaches images to the last message in msgs when
// the active provider implements providers.MultimodalCapable and reports
// support for vision input. Providers that don't implement the interface,
// or report false, never see Images populated — avoiding a wasted payload
// the provider would reject or silently drop.
func attachImagesIfSupported(provider providers.Provider, msgs []providers.Message, images []providers.ImageContent) {
	if len(images) == 0 || len(msgs) == 0 {
		return
	}
	if mc, ok := provider.(providers.MultimodalCapable); !ok || !mc.SupportsImages() {
		return
	}
	msgs[len(msgs)-1].Images = images
}

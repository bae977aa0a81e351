package orchestrator

import (
	"strings"
	"testing"

	"github.com/familyassistant/core/internal/providers"
)

func TestSummarizeLargeToolResult_PassesThroughSmallContent(t *testing.T) {
	small := `{"ok":true}`
	if got := summarizeLargeToolResult(small); got != small {
		t.Errorf("small content was altered: %q", got)
	}
}

func TestSummarizeLargeToolResult_PassesThroughNonJSON(t *testing.T) {
	big := strings.Repeat("not json at all. ", 300)
	if got := summarizeLargeToolResult(big); got != big {
		t.Error("non-JSON content should pass through unchanged regardless of size")
	}
}

func TestSummarizeLargeToolResult_SummarizesLargeJSON(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"items":[`)
	for i := 0; i < 500; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"id":`)
		sb.WriteString("1")
		sb.WriteString(`,"name":"item"}`)
	}
	sb.WriteString(`]}`)
	big := sb.String()

	got := summarizeLargeToolResult(big)
	if got == big {
		t.Fatal("expected large JSON content to be summarized")
	}
	if !strings.Contains(got, "bytes of JSON") {
		t.Errorf("summary missing expected marker: %q", got)
	}
}

type fakeMultimodalProvider struct {
	stubProvider
	supportsImages bool
}

func (p *fakeMultimodalProvider) SupportsImages() bool { return p.supportsImages }

func TestAttachImagesIfSupported_OnlyAttachesWhenCapable(t *testing.T) {
	msgs := []providers.Message{{Role: "user", Content: "look at this"}}
	images := []providers.ImageContent{{MimeType: "image/png", Data: "abc"}}

	capable := &fakeMultimodalProvider{supportsImages: true}
	attachImagesIfSupported(capable, msgs, images)
	if len(msgs[len(msgs)-1].Images) != 1 {
		t.Error("expected images attached for a multimodal-capable provider")
	}

	msgs2 := []providers.Message{{Role: "user", Content: "look at this"}}
	incapable := &fakeMultimodalProvider{supportsImages: false}
	attachImagesIfSupported(incapable, msgs2, images)
	if len(msgs2[len(msgs2)-1].Images) != 0 {
		t.Error("expected no images attached when SupportsImages() is false")
	}

	msgs3 := []providers.Message{{Role: "user", Content: "look at this"}}
	plain := &stubProvider{}
	attachImagesIfSupported(plain, msgs3, images)
	if len(msgs3[len(msgs3)-1].Images) != 0 {
		t.Error("expected no images attached for a provider without MultimodalCapable")
	}
}

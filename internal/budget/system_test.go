package budget

import (
	"strings"
	"testing"
)

const sampleContext = `You are the ComfyUI assistant. Keep answers short.
# Workflow basics
Workflows are node graphs. Nodes have typed inputs and outputs.
Connections carry latents, images, conditioning, and models.
# Node catalogue
KSampler, CheckpointLoaderSimple, CLIPTextEncode, VAEDecode.
Each node exposes widgets for its parameters.
# Style
Prefer small incremental edits over full rebuilds.
`

func TestTruncateSystemContext_UnderBudgetUnchanged(t *testing.T) {
	got := TruncateSystemContext(sampleContext, len(sampleContext)+10)
	if got != sampleContext {
		t.Errorf("text under budget was modified")
	}
}

func TestTruncateSystemContext_CompressesFromEnd(t *testing.T) {
	budget := len(sampleContext) - 40
	got := TruncateSystemContext(sampleContext, budget)

	if len(got) > budget {
		t.Fatalf("result length %d exceeds budget %d", len(got), budget)
	}
	if !strings.Contains(got, "You are the ComfyUI assistant.") {
		t.Errorf("first section body was lost:\n%s", got)
	}
	if !strings.Contains(got, "# Style") {
		t.Errorf("compressed section lost its heading:\n%s", got)
	}
	if strings.Contains(got, "incremental edits") {
		t.Errorf("last section body should be compressed first:\n%s", got)
	}
	// Earlier sections survive while later ones are compressed.
	if !strings.Contains(got, "node graphs") {
		t.Errorf("earlier section body compressed too eagerly:\n%s", got)
	}
}

func TestTruncateSystemContext_DropsSectionsWhenCompressionInsufficient(t *testing.T) {
	// Budget fits the first section plus a little, forcing compressed
	// sections to be dropped entirely.
	budget := len("You are the ComfyUI assistant. Keep answers short.\n") + 20
	got := TruncateSystemContext(sampleContext, budget)

	if len(got) > budget {
		t.Fatalf("result length %d exceeds budget %d", len(got), budget)
	}
	if !strings.Contains(got, "You are the ComfyUI assistant.") {
		t.Errorf("first section must never be dropped:\n%s", got)
	}
	if strings.Contains(got, "# Style") {
		t.Errorf("expected trailing sections dropped:\n%s", got)
	}
}

func TestTruncateSystemContext_HardTruncationFallback(t *testing.T) {
	first := "You are the assistant. " + strings.Repeat("role detail. ", 50)
	budget := 100
	got := TruncateSystemContext(first, budget)

	if len(got) > budget {
		t.Fatalf("result length %d exceeds budget %d", len(got), budget)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("expected truncation marker, got %q", got)
	}
}

func TestTruncateSystemContext_Idempotent(t *testing.T) {
	budgets := []int{40, 80, 120, len(sampleContext) - 10}
	for _, budget := range budgets {
		once := TruncateSystemContext(sampleContext, budget)
		twice := TruncateSystemContext(once, budget)
		if once != twice {
			t.Errorf("budget %d: second application changed result\nonce:  %q\ntwice: %q", budget, once, twice)
		}
	}
}

package affinity

import "testing"

func TestPin_DoesNotError(t *testing.T) {
	if err := Pin(0); err != nil {
		t.Fatalf("Pin(0) returned error: %v", err)
	}
}

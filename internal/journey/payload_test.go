package journey

import "testing"

func TestNewPlayPostPayload_OmitsEmptyStateFields(t *testing.T) {
	payload := newPlayPostPayload(playPostFields{LoadToken: "tok", PlayState: 1})
	if _, ok := payload["primaryState"]; ok {
		t.Error("expected primaryState omitted when empty")
	}
	if _, ok := payload["secondaryState"]; ok {
		t.Error("expected secondaryState omitted when empty")
	}
}

func TestNewPlayPostPayload_IncludesStateFieldsWhenSet(t *testing.T) {
	payload := newPlayPostPayload(playPostFields{PrimaryState: "abc", SecondaryState: "111"})
	if payload["primaryState"] != "abc" {
		t.Errorf("expected primaryState abc, got %v", payload["primaryState"])
	}
	if payload["secondaryState"] != "111" {
		t.Errorf("expected secondaryState 111, got %v", payload["secondaryState"])
	}
}

func TestNewPlayPostPayload_FixedCountersAreZero(t *testing.T) {
	payload := newPlayPostPayload(playPostFields{})
	for _, field := range []string{
		"nClearClicks", "nExceptions", "nHelpClicks", "nPrints",
		"nPrintsEmpty", "nPrintsFilled", "nPrintsSol", "nResizes", "nSettingsClicks",
	} {
		if payload[field] != 0 {
			t.Errorf("expected %s to be 0, got %v", field, payload[field])
		}
	}
	if payload["updatePlayTable"] != true {
		t.Error("expected updatePlayTable true")
	}
	if payload["updateLoadTable"] != false {
		t.Error("expected updateLoadTable false")
	}
}

func TestGjsonGetInt_MissingFieldReturnsNegativeOne(t *testing.T) {
	if got := gjsonGetInt([]byte(`{}`), "status"); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestGjsonGetInt_ReadsPresentField(t *testing.T) {
	if got := gjsonGetInt([]byte(`{"status":0}`), "status"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

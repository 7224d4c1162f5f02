package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProcessingState
		want     bool
	}{
		{StateNone, StateAcceptBundle, true},
		{StateAcceptBundle, StateDisposition, true},
		{StateDisposition, StateForward, true},
		{StateForward, StateComplete, true},
		{StateForward, StateFail, true},
		{StateFail, StateForward, true},
		{StateNone, StateDisposition, false},
		{StateAcceptBundle, StateForward, false},
		{StateDisposition, StateFail, false},
		{StateComplete, StateForward, false},
		{StateForward, StateDisposition, false},
		{StateComplete, StateFail, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsReplayEdge(t *testing.T) {
	if !IsReplayEdge(StateFail, StateForward) {
		t.Error("FAIL -> FORWARD should be the replay edge")
	}
	if IsReplayEdge(StateDisposition, StateForward) {
		t.Error("DISPOSITION -> FORWARD is not a replay edge")
	}
}

func TestProcessingState_Valid(t *testing.T) {
	for _, s := range []ProcessingState{StateNone, StateAcceptBundle, StateDisposition, StateForward, StateComplete, StateFail} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if ProcessingState("ACCEPT_FHIR_BUNDLE").Valid() {
		t.Error("unknown state reported valid")
	}
	if !StateComplete.IsTerminal() || !StateFail.IsTerminal() || StateForward.IsTerminal() {
		t.Error("terminal states misreported")
	}
}

func TestValidatePath(t *testing.T) {
	happy := []Transition{
		{StateNone, StateAcceptBundle},
		{StateAcceptBundle, StateDisposition},
		{StateDisposition, StateForward},
		{StateForward, StateFail},
		{StateFail, StateForward},
		{StateForward, StateComplete},
	}
	if err := ValidatePath(happy); err != nil {
		t.Fatalf("expected valid path with replay, got %v", err)
	}

	skipping := []Transition{
		{StateNone, StateAcceptBundle},
		{StateAcceptBundle, StateForward},
	}
	if err := ValidatePath(skipping); err == nil {
		t.Error("expected error for path that skips DISPOSITION")
	}

	disjoint := []Transition{
		{StateNone, StateAcceptBundle},
		{StateDisposition, StateForward},
	}
	if err := ValidatePath(disjoint); err == nil {
		t.Error("expected error for non-contiguous path")
	}

	headless := []Transition{
		{StateForward, StateComplete},
	}
	if err := ValidatePath(headless); err == nil {
		t.Error("expected error for path that does not start at NONE")
	}

	resumed := []Transition{
		{StateFail, StateForward},
		{StateForward, StateComplete},
	}
	if err := ValidatePath(resumed); err == nil {
		t.Error("expected error for replay edges without the original intake")
	}

	if err := ValidatePath(nil); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestNatureSelection(t *testing.T) {
	if ForwardNature(true) != NatureForwardRequestReplay || ForwardNature(false) != NatureForwardRequest {
		t.Error("ForwardNature mismatch")
	}
	if CompleteNature(true) != NatureForwardResponseReplay || CompleteNature(false) != NatureForwardResponse {
		t.Error("CompleteNature mismatch")
	}
	if FailNature(true) != NatureForwardResponseReplayErr || FailNature(false) != NatureForwardResponseError {
		t.Error("FailNature mismatch")
	}
	if !NatureForwardResponseReplayErr.IsReplay() || NatureForwardResponseError.IsReplay() {
		t.Error("IsReplay mismatch")
	}
	if got := NatureDisposition.Description(); got != "techByDesignDisposition" {
		t.Errorf("Description() = %q", got)
	}
}

func TestParseSourceType(t *testing.T) {
	tests := map[string]SourceType{
		"":       SourceFHIR,
		"fhir":   SourceFHIR,
		"csv":    SourceCSV,
		" CCDA ": SourceCCDA,
		"hl7v2":  SourceHL7V2,
		"bogus":  SourceFHIR,
	}
	for in, want := range tests {
		if got := ParseSourceType(in); got != want {
			t.Errorf("ParseSourceType(%q) = %s, want %s", in, got, want)
		}
	}
	if SourceFHIR.IsConverted() || !SourceCSV.IsConverted() {
		t.Error("IsConverted mismatch")
	}
}

func TestInteraction_LedgerSubject(t *testing.T) {
	i := Interaction{InteractionID: "I1"}
	if got := i.LedgerSubject(); got != "I1" {
		t.Errorf("LedgerSubject() = %q, want I1", got)
	}
	i.BundleID = "B1"
	if got := i.LedgerSubject(); got != "B1" {
		t.Errorf("LedgerSubject() = %q, want B1", got)
	}
}

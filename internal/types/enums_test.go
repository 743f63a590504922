package types

import "testing"

func TestPhaseIsValid(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		want  bool
	}{
		{"init", PhaseInit, true},
		{"create newcase", PhaseCreateNewcase, true},
		{"xml", PhaseXML, true},
		{"setup", PhaseSetup, true},
		{"namelist", PhaseNamelist, true},
		{"build", PhaseBuild, true},
		{"run", PhaseRun, true},
		{"unknown", Phase("TEARDOWN"), false},
		{"empty", Phase(""), false},
		{"wrong case", Phase("build"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.phase.IsValid(); got != tt.want {
				t.Errorf("Phase(%q).IsValid() = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestAllPhasesOrder(t *testing.T) {
	phases := AllPhases()
	if len(phases) != 7 {
		t.Fatalf("Expected 7 phases, got %d", len(phases))
	}
	if phases[0] != PhaseInit {
		t.Errorf("Expected INIT first, got %s", phases[0])
	}
	if phases[len(phases)-1] != PhaseRun {
		t.Errorf("Expected RUN last, got %s", phases[len(phases)-1])
	}
}

func TestStatusIsValid(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"pass", StatusPass, true},
		{"fail", StatusFail, true},
		{"pending", StatusPending, true},
		{"namelist fail", StatusNamelistFail, true},
		{"unknown", Status("SKIPPED"), false},
		{"empty", Status(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("Status(%q).IsValid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatusCanContinue(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPass, true},
		{StatusNamelistFail, true},
		{StatusFail, false},
		{StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.CanContinue(); got != tt.want {
				t.Errorf("Status(%q).CanContinue() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

package application

import "testing"

func TestAllowedTargets(t *testing.T) {
	cases := []struct {
		from    Status
		targets []Status
	}{
		{StatusPending, []Status{StatusAccepted, StatusRejected}},
		{StatusAccepted, []Status{StatusInProgress}},
		{StatusInProgress, []Status{StatusSubmitted}},
		{StatusSubmitted, []Status{StatusApproved, StatusRevisionRequested}},
		{StatusRevisionRequested, []Status{StatusSubmitted}},
		{StatusApproved, []Status{StatusCompleted}},
		{StatusRejected, []Status{}},
		{StatusCompleted, []Status{}},
	}

	for _, tc := range cases {
		got := tc.from.AllowedTargets()
		if len(got) != len(tc.targets) {
			t.Fatalf("%s: expected %v, got %v", tc.from, tc.targets, got)
		}
		for i := range got {
			if got[i] != tc.targets[i] {
				t.Fatalf("%s: expected %v, got %v", tc.from, tc.targets, got)
			}
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	if !StatusPending.CanTransitionTo(StatusAccepted) {
		t.Fatal("pending -> accepted should be legal")
	}
	if StatusPending.CanTransitionTo(StatusSubmitted) {
		t.Fatal("pending -> submitted should be illegal")
	}
	if StatusRejected.CanTransitionTo(StatusAccepted) {
		t.Fatal("rejected is terminal")
	}
	if StatusCompleted.CanTransitionTo(StatusPending) {
		t.Fatal("completed is terminal")
	}
	if !StatusRevisionRequested.CanTransitionTo(StatusSubmitted) {
		t.Fatal("revision cycle must be legal")
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusCompleted} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusInProgress, StatusSubmitted, StatusRevisionRequested, StatusApproved} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestRoleGatingSets(t *testing.T) {
	owner := []Status{StatusAccepted, StatusRejected, StatusApproved, StatusRevisionRequested, StatusCompleted}
	for _, s := range owner {
		if !s.RequiresOwner() || s.RequiresApplicant() {
			t.Fatalf("%s should be owner-gated", s)
		}
	}
	applicant := []Status{StatusInProgress, StatusSubmitted}
	for _, s := range applicant {
		if !s.RequiresApplicant() || s.RequiresOwner() {
			t.Fatalf("%s should be applicant-gated", s)
		}
	}
}

func TestAllowedTargetsCopyIsIsolated(t *testing.T) {
	got := StatusPending.AllowedTargets()
	got[0] = StatusCompleted
	if !StatusPending.CanTransitionTo(StatusAccepted) {
		t.Fatal("mutating the returned slice must not affect the table")
	}
}

func TestStatusValid(t *testing.T) {
	if Status("open").Valid() {
		t.Fatal("unknown status must not validate")
	}
	if !StatusRevisionRequested.Valid() {
		t.Fatal("revision_requested must validate")
	}
}

package errors

import "testing"

func TestIsRace(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"race lost", ErrRaceLost, true},
		{"already claimed", ErrAlreadyClaimed, true},
		{"wrapped race", Wrap(ErrRaceLost, "claim intake item"), true},
		{"not found", ErrItemNotFound, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRace(tt.err); got != tt.want {
				t.Errorf("IsRace(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(ErrPublishFailed) {
		t.Error("publish failure should be transient")
	}
	if !IsTransient(Wrap(ErrClassifierUnavailable, "classify")) {
		t.Error("classifier unavailability should be transient")
	}
	if IsTransient(ErrCorruptTracking) {
		t.Error("corruption is not transient")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Wrapf(ErrCorruptTracking, "load %s", "tracking.jsonl")) {
		t.Error("corrupt tracking should be fatal")
	}
	if IsFatal(ErrPublishFailed) {
		t.Error("publish failure is not fatal")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestWrapMessage(t *testing.T) {
	err := Wrapf(ErrItemNotFound, "read %s", "email-20260101T000000-hello")
	want := "read email-20260101T000000-hello: work item not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

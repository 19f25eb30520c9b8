package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSentinelMatching(t *testing.T) {
	cases := []struct {
		err    error
		check  func(error) bool
		status int
	}{
		{NewValidation("title must not be empty"), IsValidation, http.StatusBadRequest},
		{NewInvalidEnumValue("status", "bogus"), IsInvalidEnumValue, http.StatusUnprocessableEntity},
		{NewNotFound("project"), IsNotFound, http.StatusNotFound},
		{NewForbidden("project"), IsForbidden, http.StatusForbidden},
		{NewConflict("protocol is locked"), IsConflict, http.StatusConflict},
	}
	for _, c := range cases {
		if !c.check(c.err) {
			t.Errorf("%v does not match its sentinel", c.err)
		}
		var apiErr *ApiErr
		if !errors.As(c.err, &apiErr) {
			t.Fatalf("%v is not an ApiErr", c.err)
		}
		if apiErr.StatusCode != c.status {
			t.Errorf("%v: status %d, want %d", c.err, apiErr.StatusCode, c.status)
		}
	}
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	err := fmt.Errorf("while deleting: %w", NewNotFound("study"))
	if !IsNotFound(err) {
		t.Error("wrapped not-found no longer matches")
	}
	if IsForbidden(err) {
		t.Error("not-found matches forbidden")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := NewInvalidEnumValue("study_status", "done").Error(); got != `invalid enum value: "done" is not a registered value for study_status` {
		t.Errorf("unexpected message: %q", got)
	}
	if got := NewNotFound("project").Error(); got != "project not found" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestDatabaseErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabaseError("create", "project", cause)
	if !errors.Is(err, ErrDatabaseQuery) {
		t.Error("database error does not match sentinel")
	}
	if err.Cause != cause {
		t.Error("cause not retained")
	}
}

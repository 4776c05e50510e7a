package taxonomy

import (
	"testing"

	"google.golang.org/grpc/codes"
)

func TestWireCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want codes.Code
	}{
		{InvalidRequest, codes.InvalidArgument},
		{NotFound, codes.NotFound},
		{PolicyViolation, codes.PermissionDenied},
		{Sandbox, codes.FailedPrecondition},
		{Execution, codes.Internal},
		{Internal, codes.Internal},
		{Temporary, codes.Unavailable},
		{ExternalService, codes.Unavailable},
	}
	for _, c := range cases {
		err := New(c.kind, "boom")
		if got := err.WireCode(); got != c.want {
			t.Errorf("kind %s: WireCode() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestCodeRefinement(t *testing.T) {
	if got := New(PolicyViolation, "Command 'rm' is forbidden").Code(); got != PolicyCommandNotAllowed {
		t.Errorf("got %d, want %d", got, PolicyCommandNotAllowed)
	}
	if got := New(PolicyViolation, "Access to path '/etc/passwd' is forbidden").Code(); got != PolicyFileAccessDenied {
		t.Errorf("got %d, want %d", got, PolicyFileAccessDenied)
	}
	if got := New(InvalidRequest, "missing required field").Code(); got != InputMissingRequired {
		t.Errorf("got %d, want %d", got, InputMissingRequired)
	}
}

func TestCountersRecord(t *testing.T) {
	c := NewCounters()
	err := New(Auth, "bad credentials: invalid signature")
	c.Record(err)
	c.Record(err)
	if got := c.Count(string(Auth)); got != 2 {
		t.Errorf("auth counter = %d, want 2", got)
	}
	codeKey := "code_1001"
	if got := c.Count(codeKey); got != 2 {
		t.Errorf("%s counter = %d, want 2", codeKey, got)
	}
}

func TestToResponse(t *testing.T) {
	err := New(PolicyViolation, "denied").WithDetails(map[string]any{"reasons": []string{"dangerous"}})
	resp := err.ToResponse()
	if resp.Code != PolicyCommandNotAllowed || resp.Message != "denied" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

package session

import (
	"context"
	"testing"

	"hisab/internal/core"
)

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a session")
	}

	s := Session{UserID: 7, Role: core.UserRoleParent, Mode: ModePersonal}
	got, ok := FromContext(NewContext(context.Background(), s))
	if !ok || got.UserID != 7 || !got.IsParent() {
		t.Fatalf("FromContext = %+v, %v", got, ok)
	}

	g := got.InGroup(3)
	if g.Mode != ModeGroup || g.GroupID != 3 || got.GroupID != 0 {
		t.Errorf("InGroup changed the wrong copy: %+v / %+v", g, got)
	}
}

func TestZeroUserIsNotASession(t *testing.T) {
	if _, ok := FromContext(NewContext(context.Background(), Session{})); ok {
		t.Error("anonymous session accepted")
	}
}

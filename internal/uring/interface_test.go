package uring

import "testing"

func TestUserDataRoundTrip(t *testing.T) {
	ud := UserData(KindReceive, 42)
	kind, fd := SplitUserData(ud)
	if kind != KindReceive || fd != 42 {
		t.Fatalf("got kind=%v fd=%d", kind, fd)
	}
}

func TestCompletionHelpers(t *testing.T) {
	c := Completion{
		UserData: UserData(KindReceive, 7),
		Res:      128,
		Flags:    FlagBuffer | FlagMore | (uint32(3) << 16),
	}
	if c.Kind() != KindReceive {
		t.Fatalf("expected KindReceive, got %v", c.Kind())
	}
	if c.FD() != 7 {
		t.Fatalf("expected fd 7, got %d", c.FD())
	}
	if c.BufferID() != 3 {
		t.Fatalf("expected buffer id 3, got %d", c.BufferID())
	}
	if !c.MoreToCome() {
		t.Fatalf("expected MoreToCome true")
	}
	if c.BufferNotDone() {
		t.Fatalf("expected BufferNotDone false")
	}
}

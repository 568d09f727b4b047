package store

import (
	"strings"
	"testing"
	"time"
)

type stubStore struct{ Store }

func stubFactory(Config) (Store, error) { return stubStore{}, nil }

func TestRegisterAndBuild(t *testing.T) {
	Register("stub-tag", stubFactory)

	b, err := Build("stub-tag", Config{DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := b.(stubStore); !ok {
		t.Fatalf("unexpected concrete type %T", b)
	}

	found := false
	for _, tag := range Tags() {
		if tag == "stub-tag" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Tags() missing registered tag: %v", Tags())
	}
}

func TestBuildUnknownTagListsRegistered(t *testing.T) {
	Register("stub-known", stubFactory)

	_, err := Build("does-not-exist", Config{})
	if err == nil {
		t.Fatal("unknown tag must error")
	}
	if !strings.Contains(err.Error(), "stub-known") {
		t.Fatalf("error should list registered tags, got %q", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("stub-dup", stubFactory)
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Register must panic")
		}
	}()
	Register("stub-dup", stubFactory)
}

func TestRegisterEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("empty tag must panic")
		}
	}()
	Register("", stubFactory)
}

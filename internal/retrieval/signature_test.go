package retrieval

import (
	"testing"
	"time"
)

func Test_Signature_OrderIndependent(t *testing.T) {
	t.Parallel()
	a := newFakeDoc("a.txt", "aaa", baseTime)
	b := newFakeDoc("b.txt", "bbb", baseTime)

	if Signature([]Document{a, b}) != Signature([]Document{b, a}) {
		t.Errorf("signature depends on listing order")
	}
}

func Test_Signature_SensitiveToMetadata(t *testing.T) {
	t.Parallel()
	doc := newFakeDoc("a.txt", "aaa", baseTime)
	base := Signature([]Document{doc})

	touched := newFakeDoc("a.txt", "aaa", baseTime.Add(time.Second))
	if Signature([]Document{touched}) == base {
		t.Errorf("mtime change did not change the signature")
	}

	grown := newFakeDoc("a.txt", "aaaa", baseTime)
	if Signature([]Document{grown}) == base {
		t.Errorf("size change did not change the signature")
	}

	extra := newFakeDoc("b.txt", "bbb", baseTime)
	if Signature([]Document{doc, extra}) == base {
		t.Errorf("added document did not change the signature")
	}
}

func Test_Scope_Key(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scope Scope
		want  string
	}{
		{Scope{CourseID: "c1"}, "c1/all"},
		{Scope{CourseID: "c1", BookID: "b2"}, "c1/b2"},
	}
	for _, tc := range cases {
		if got := tc.scope.Key(); got != tc.want {
			t.Errorf("Key(%+v) = %q, want %q", tc.scope, got, tc.want)
		}
	}
}

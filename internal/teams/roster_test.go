package teams

import (
	"slices"
	"testing"
)

const chat = int64(-1001)

func sample() *Roster {
	return New([]Team{
		{Chat: chat, Name: "Red", Members: []int64{1, 2}},
		{Chat: chat, Name: "Blue", Members: []int64{3}},
		{Chat: chat, Name: "Green", Members: []int64{4, 1}},
		{Chat: chat, Name: "blue", Members: []int64{5}},
		{Chat: -2002, Name: "Red", Members: []int64{9}},
	})
}

func TestResolveGroupAffinity(t *testing.T) {
	t.Parallel()
	r := sample()
	cases := []struct {
		name   string
		tenant int64
		user   int64
		want   string
		res    Resolution
		all    []string
	}{
		{"single team", chat, 2, "Red", Resolved, []string{"Red"}},
		{"merged duplicate name", chat, 5, "Blue", Resolved, []string{"Blue"}},
		{"two teams", chat, 1, "", Ambiguous, []string{"Green", "Red"}},
		{"no team", chat, 42, "", None, nil},
		{"other chat", -2002, 2, "", None, nil},
		{"unknown chat", 7, 1, "", None, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, res, all := r.ResolveGroupAffinity(tc.tenant, tc.user)
			if got != tc.want || res != tc.res || !slices.Equal(all, tc.all) {
				t.Fatalf("got (%q, %v, %v), want (%q, %v, %v)", got, res, all, tc.want, tc.res, tc.all)
			}
		})
	}
}

func TestMembersAndLookup(t *testing.T) {
	t.Parallel()
	r := sample()
	if got := r.Members(chat, "blue"); !slices.Equal(got, []int64{3, 5}) {
		t.Fatalf("Members(blue) = %v", got)
	}
	if got := r.Members(chat, "purple"); got != nil {
		t.Fatalf("Members(purple) = %v", got)
	}
	if name, ok := r.Lookup(chat, " GREEN "); !ok || name != "Green" {
		t.Fatalf("Lookup = %q, %v", name, ok)
	}
	if got := r.Names(chat); !slices.Equal(got, []string{"Red", "Blue", "Green"}) {
		t.Fatalf("Names = %v", got)
	}
}

func TestApplyReplacesRoster(t *testing.T) {
	t.Parallel()
	r := sample()
	r.Apply([]Team{{Chat: chat, Name: "Solo", Members: []int64{1}}, {Chat: chat, Name: " "}})
	name, res, _ := r.ResolveGroupAffinity(chat, 1)
	if res != Resolved || name != "Solo" {
		t.Fatalf("after Apply: %q %v", name, res)
	}
	if _, res, _ := r.ResolveGroupAffinity(chat, 3); res != None {
		t.Fatalf("old team still resolves: %v", res)
	}
	if got := r.Names(chat); len(got) != 1 {
		t.Fatalf("blank team kept: %v", got)
	}
}

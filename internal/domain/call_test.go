package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want error
	}{
		{name: "empty", id: "", want: ErrIdentityEmpty},
		{name: "normal", id: "alice", want: nil},
		{name: "max length", id: Identity(strings.Repeat("a", MaxIdentityLen)), want: nil},
		{name: "too long", id: Identity(strings.Repeat("a", MaxIdentityLen+1)), want: ErrIdentityTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Validate())
		})
	}
}

func TestLinkKeyIsDirectionFree(t *testing.T) {
	assert.Equal(t, NewLinkKey("alice", "bob"), NewLinkKey("bob", "alice"))
}

func TestCallSessionLinks(t *testing.T) {
	s := NewCallSession(NewCallID(), "alice", "bob")
	s.AddLink("alice", "carol")

	assert.True(t, s.HasLink("bob", "alice"))
	assert.True(t, s.Has("carol"))
	assert.False(t, s.Has("dave"))
	assert.ElementsMatch(t, []Identity{"bob", "carol"}, s.PeersOf("alice"))

	assert.True(t, s.RemoveLink("alice", "bob"))
	assert.False(t, s.RemoveLink("carol", "alice"), "no links left")
}

func TestCallSessionDropParticipant(t *testing.T) {
	s := NewCallSession(NewCallID(), "alice", "bob")
	s.AddLink("bob", "carol")

	assert.True(t, s.DropParticipant("alice"), "bob-carol link survives")
	assert.False(t, s.Has("alice"))
	assert.False(t, s.DropParticipant("bob"))
}

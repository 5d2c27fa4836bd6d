package querykey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeysAreValueEqual(t *testing.T) {
	assert.True(t, ConversationList("u1").Equal(ConversationList("u1")))
	assert.True(t, MessagePages("u1", "c1").Equal(MessagePages("u1", "c1")))
	assert.Equal(t, ConversationDetail("u1", "c1").String(), ConversationDetail("u1", "c1").String())
}

func TestDistinctResourcesDoNotCollide(t *testing.T) {
	keys := []Key{
		ConversationList("u1"),
		ConversationList("u2"),
		ConversationListPages("u1"),
		ConversationListPage("u1", 1, 20),
		ConversationListPage("u1", 2, 20),
		ConversationListPage("u1", 1, 50),
		ConversationDetail("u1", "c1"),
		ConversationDetail("u1", "c2"),
		MessagePages("u1", "c1"),
		OwnerMessages("u1"),
		Gallery("u1"),
		// separators inside ids must not forge other keys
		ConversationDetail("u1/detail", "c1"),
		ConversationDetail("u1", "detail/c1"),
	}

	seen := map[string]Key{}
	for _, k := range keys {
		s := k.String()
		if prev, ok := seen[s]; ok {
			t.Fatalf("key %v collides with %v as %q", k, prev, s)
		}
		seen[s] = k
	}
}

func TestHierarchy(t *testing.T) {
	list := ConversationList("u1")

	assert.True(t, ConversationDetail("u1", "c1").HasPrefix(list))
	assert.True(t, ConversationListPage("u1", 3, 20).HasPrefix(list))
	assert.True(t, ConversationListPage("u1", 3, 20).HasPrefix(ConversationListPages("u1")))
	assert.False(t, ConversationDetail("u1", "c1").HasPrefix(ConversationListPages("u1")))
	assert.False(t, ConversationDetail("u2", "c1").HasPrefix(list))
	assert.False(t, MessagePages("u1", "c1").HasPrefix(list))
	assert.True(t, MessagePages("u1", "c1").HasPrefix(OwnerMessages("u1")))
	assert.False(t, list.HasPrefix(ConversationDetail("u1", "c1")))
}

func TestPageOf(t *testing.T) {
	page, size, ok := PageOf(ConversationListPage("u1", 4, 25))
	assert.True(t, ok)
	assert.Equal(t, 4, page)
	assert.Equal(t, 25, size)

	_, _, ok = PageOf(ConversationDetail("u1", "c1"))
	assert.False(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	k := ConversationDetail("u1", "c1")
	c := k.Clone()
	c[3] = "other"
	assert.Equal(t, "c1", k[3])
}

// Package querykey maps logical resources onto hierarchical cache keys.
//
// Keys are ordered segment lists. A list key is a prefix of every page and
// detail key below it, so invalidating the list reaches them without
// enumerating conversations.
package querykey

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	conversationsRoot = "conversations"
	messagesRoot      = "messages"
	galleryRoot       = "gallery"

	pagesSegment  = "pages"
	detailSegment = "detail"
)

// Key identifies one cached resource or, used as a prefix, a family of them.
type Key []string

// String is a collision-free encoding: segments are path-escaped so no
// segment can contain the separator.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, s := range k {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading run of k's segments.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

// Clone returns an independent copy.
func (k Key) Clone() Key {
	return append(Key(nil), k...)
}

// ConversationList is the root of an owner's conversation list, its pages
// and its details.
func ConversationList(ownerID string) Key {
	return Key{conversationsRoot, ownerID}
}

// ConversationListPage addresses one page of the owner's list.
func ConversationListPage(ownerID string, page, pageSize int) Key {
	return Key{conversationsRoot, ownerID, pagesSegment, strconv.Itoa(page), strconv.Itoa(pageSize)}
}

// ConversationListPages is the prefix of every cached page of the owner's list.
func ConversationListPages(ownerID string) Key {
	return Key{conversationsRoot, ownerID, pagesSegment}
}

// ConversationDetail addresses a single conversation.
func ConversationDetail(ownerID, conversationID string) Key {
	return Key{conversationsRoot, ownerID, detailSegment, conversationID}
}

// MessagePages addresses the paginated history of a conversation.
func MessagePages(ownerID, conversationID string) Key {
	return Key{messagesRoot, ownerID, conversationID}
}

// OwnerMessages is the prefix of every message history of an owner.
func OwnerMessages(ownerID string) Key {
	return Key{messagesRoot, ownerID}
}

// Gallery addresses the owner's image gallery.
func Gallery(ownerID string) Key {
	return Key{galleryRoot, ownerID}
}

// Owner returns every prefix that holds state of the owner.
func Owner(ownerID string) []Key {
	return []Key{ConversationList(ownerID), OwnerMessages(ownerID), Gallery(ownerID)}
}

// PageOf extracts page and size from a ConversationListPage key.
func PageOf(k Key) (page, pageSize int, ok bool) {
	if len(k) != 5 || k[0] != conversationsRoot || k[2] != pagesSegment {
		return 0, 0, false
	}
	page, err := strconv.Atoi(k[3])
	if err != nil {
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(k[4])
	if err != nil {
		return 0, 0, false
	}
	return page, pageSize, true
}

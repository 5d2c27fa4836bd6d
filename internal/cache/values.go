package cache

import (
	"time"

	"imagine-chat/internal/repository/db"
)

// Kind tags the resource a cached Value holds.
type Kind int

const (
	KindConversationList Kind = iota + 1
	KindConversationDetail
	KindMessagePages
	KindGallery
)

func (k Kind) String() string {
	switch k {
	case KindConversationList:
		return "conversation_list"
	case KindConversationDetail:
		return "conversation_detail"
	case KindMessagePages:
		return "message_pages"
	case KindGallery:
		return "gallery"
	default:
		return "unknown"
	}
}

// Value is a cached resource. The set of implementations is closed so callers
// can switch over them exhaustively.
type Value interface {
	Kind() Kind
	clone() Value
}

// ConversationList is one page of an owner's conversations.
type ConversationList struct {
	Conversations []db.Conversation
	Count         int
	Page          int
	PageSize      int
}

func (ConversationList) Kind() Kind { return KindConversationList }

func (v ConversationList) clone() Value {
	if v.Conversations != nil {
		out := make([]db.Conversation, len(v.Conversations))
		for i, c := range v.Conversations {
			out[i] = cloneConversation(c)
		}
		v.Conversations = out
	}
	return v
}

// Replace swaps the row with id for c. It reports whether the row was present.
func (v *ConversationList) Replace(id string, c db.Conversation) bool {
	for i := range v.Conversations {
		if v.Conversations[i].ID == id {
			v.Conversations[i] = c
			return true
		}
	}
	return false
}

// Drop removes the row with id and adjusts Count.
func (v *ConversationList) Drop(id string) bool {
	for i := range v.Conversations {
		if v.Conversations[i].ID == id {
			v.Conversations = append(v.Conversations[:i:i], v.Conversations[i+1:]...)
			if v.Count > 0 {
				v.Count--
			}
			return true
		}
	}
	return false
}

// ConversationDetail is a single conversation.
type ConversationDetail struct {
	Conversation db.Conversation
}

func (ConversationDetail) Kind() Kind { return KindConversationDetail }

func (v ConversationDetail) clone() Value {
	v.Conversation = cloneConversation(v.Conversation)
	return v
}

// MessagePages holds the loaded history of a conversation. Pages[0] is the
// newest page; each page lists its messages newest first.
type MessagePages struct {
	Pages []db.MessagePage
	// LoadMoreErr records why the last attempt to load the next page failed.
	LoadMoreErr string
}

func (MessagePages) Kind() Kind { return KindMessagePages }

func (v MessagePages) clone() Value {
	pages := make([]db.MessagePage, len(v.Pages))
	for i, p := range v.Pages {
		if p.Messages != nil {
			messages := make([]db.Message, len(p.Messages))
			for j, m := range p.Messages {
				m.ImageID = cloneString(m.ImageID)
				m.DeletedAt = cloneTime(m.DeletedAt)
				messages[j] = m
			}
			p.Messages = messages
		}
		p.NextCursor = cloneCursor(p.NextCursor)
		pages[i] = p
	}
	v.Pages = pages
	return v
}

// Last returns the oldest loaded page.
func (v MessagePages) Last() (db.MessagePage, bool) {
	if len(v.Pages) == 0 {
		return db.MessagePage{}, false
	}
	return v.Pages[len(v.Pages)-1], true
}

// Prepend adds msg as the newest message of the newest page.
func (v *MessagePages) Prepend(msg db.Message) {
	if len(v.Pages) == 0 {
		v.Pages = []db.MessagePage{{}}
	}
	first := &v.Pages[0]
	first.Messages = append([]db.Message{msg}, first.Messages...)
}

// ReplaceMessage swaps the message with id for msg in whichever page holds it.
func (v *MessagePages) ReplaceMessage(id string, msg db.Message) bool {
	for p := range v.Pages {
		for i := range v.Pages[p].Messages {
			if v.Pages[p].Messages[i].ID == id {
				v.Pages[p].Messages[i] = msg
				return true
			}
		}
	}
	return false
}

// GalleryList is an owner's images, newest first.
type GalleryList struct {
	Images []db.Image
}

func (GalleryList) Kind() Kind { return KindGallery }

func (v GalleryList) clone() Value {
	if v.Images != nil {
		images := make([]db.Image, len(v.Images))
		for i, img := range v.Images {
			img.MessageID = cloneString(img.MessageID)
			img.DeletedAt = cloneTime(img.DeletedAt)
			images[i] = img
		}
		v.Images = images
	}
	return v
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	if v == nil {
		return nil
	}
	return v.clone()
}

func cloneConversation(c db.Conversation) db.Conversation {
	c.DeletedAt = cloneTime(c.DeletedAt)
	return c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneCursor(p *db.Cursor) *db.Cursor {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

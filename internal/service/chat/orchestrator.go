package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imagine-chat/internal/logger"
	"imagine-chat/internal/metrics"
	"imagine-chat/internal/repository/db"
	"imagine-chat/internal/service/llm"

	"github.com/sirupsen/logrus"
)

// Outcome is the result of one orchestration
type Outcome struct {
	Intent   Intent
	Message  *db.Message
	Image    *db.Image
	Fallback bool
}

// Orchestrator turns a persisted user message into exactly one assistant
// message: a generated image, a completion, or an apology naming the failure
type Orchestrator struct {
	db        db.Database
	completer llm.TextCompleter
	images    llm.ImageGenerator
	log       *logrus.Entry
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(database db.Database, completer llm.TextCompleter, images llm.ImageGenerator) *Orchestrator {
	return &Orchestrator{
		db:        database,
		completer: completer,
		images:    images,
		log:       logger.Component("orchestrator"),
	}
}

// Respond classifies userMsg and runs the matching branch. Generation failures
// are persisted as an apology; the error is non-nil only when no assistant
// message could be stored at all.
func (o *Orchestrator) Respond(ctx context.Context, ownerID string, userMsg db.Message) (*Outcome, error) {
	if Classify(userMsg.Content) == IntentText {
		return o.RespondText(ctx, userMsg)
	}
	return o.RespondImage(ctx, ownerID, userMsg, userMsg.Content)
}

// RespondImage generates one image for prompt and links it from an assistant
// image message
func (o *Orchestrator) RespondImage(ctx context.Context, ownerID string, userMsg db.Message, prompt string) (*Outcome, error) {
	prompt = strings.TrimSpace(prompt)
	log := o.log.WithFields(logrus.Fields{
		"conversation_id": userMsg.ConversationID,
		"branch":          IntentImage.String(),
	})

	start := time.Now()
	generated, err := o.images.Generate(ctx, prompt)
	metrics.GenerationDuration.WithLabelValues(IntentImage.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Warn("Image generation failed")
		return o.fallback(ctx, userMsg.ConversationID, IntentImage, fmt.Sprintf("Sorry, I couldn't generate that image: %v", err))
	}

	// the rest must land even if the caller has gone away
	persistCtx := context.WithoutCancel(ctx)
	messageID := userMsg.ID
	image, err := o.db.CreateImage(persistCtx, db.NewImage{
		OwnerID:        ownerID,
		MessageID:      &messageID,
		Prompt:         prompt,
		ImageURL:       generated.URL,
		Model:          generated.Model,
		Size:           generated.Size,
		Quality:        generated.Quality,
		GenerationTime: int(generated.Duration.Milliseconds()),
	})
	if err != nil {
		log.WithError(err).Error("Failed to save generated image")
		return o.fallback(ctx, userMsg.ConversationID, IntentImage, fmt.Sprintf("Sorry, the image was generated but could not be saved: %v", err))
	}

	msg, err := o.db.CreateMessage(persistCtx, db.NewMessage{
		ConversationID: userMsg.ConversationID,
		Role:           db.RoleAssistant,
		Content:        image.ImageURL,
		MessageType:    db.MessageTypeImage,
		ImageID:        &image.ID,
	})
	if err != nil {
		log.WithError(err).Error("Failed to save image message")
		return o.fallback(ctx, userMsg.ConversationID, IntentImage, fmt.Sprintf("Sorry, the image was generated but could not be saved: %v", err))
	}

	o.touch(persistCtx, userMsg.ConversationID)
	metrics.AssistantMessagesTotal.WithLabelValues(IntentImage.String(), metrics.OutcomeSuccess).Inc()
	log.WithFields(logrus.Fields{"image_id": image.ID, "message_id": msg.ID}).Info("Image response saved")

	return &Outcome{Intent: IntentImage, Message: msg, Image: image}, nil
}

// RespondText completes the conversation's full active history
func (o *Orchestrator) RespondText(ctx context.Context, userMsg db.Message) (*Outcome, error) {
	log := o.log.WithFields(logrus.Fields{
		"conversation_id": userMsg.ConversationID,
		"branch":          IntentText.String(),
	})

	history, err := o.db.ListAllMessages(ctx, userMsg.ConversationID)
	if err != nil {
		log.WithError(err).Warn("Failed to load history")
		return o.fallback(ctx, userMsg.ConversationID, IntentText, fmt.Sprintf("Sorry, I couldn't generate a response: %v", err))
	}

	start := time.Now()
	reply, err := o.completer.Complete(ctx, toLLMHistory(history))
	metrics.GenerationDuration.WithLabelValues(IntentText.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WithError(err).Warn("Completion failed")
		return o.fallback(ctx, userMsg.ConversationID, IntentText, fmt.Sprintf("Sorry, I couldn't generate a response: %v", err))
	}

	persistCtx := context.WithoutCancel(ctx)
	msg, err := o.db.CreateMessage(persistCtx, db.NewMessage{
		ConversationID: userMsg.ConversationID,
		Role:           db.RoleAssistant,
		Content:        reply,
		MessageType:    db.MessageTypeText,
	})
	if err != nil {
		log.WithError(err).Error("Failed to save assistant message")
		return o.fallback(ctx, userMsg.ConversationID, IntentText, fmt.Sprintf("Sorry, I couldn't save the response: %v", err))
	}

	o.touch(persistCtx, userMsg.ConversationID)
	metrics.AssistantMessagesTotal.WithLabelValues(IntentText.String(), metrics.OutcomeSuccess).Inc()
	log.WithField("message_id", msg.ID).Info("Text response saved")

	return &Outcome{Intent: IntentText, Message: msg}, nil
}

func (o *Orchestrator) fallback(ctx context.Context, conversationID string, intent Intent, text string) (*Outcome, error) {
	persistCtx := context.WithoutCancel(ctx)

	msg, err := o.db.CreateMessage(persistCtx, db.NewMessage{
		ConversationID: conversationID,
		Role:           db.RoleAssistant,
		Content:        text,
		MessageType:    db.MessageTypeText,
	})
	if err != nil {
		metrics.AssistantMessagesTotal.WithLabelValues(intent.String(), metrics.OutcomeError).Inc()
		o.log.WithError(err).WithField("conversation_id", conversationID).Error("Failed to save fallback message")
		o.touch(persistCtx, conversationID)
		return &Outcome{Intent: intent, Fallback: true}, fmt.Errorf("failed to save assistant message: %w", err)
	}

	o.touch(persistCtx, conversationID)
	metrics.AssistantMessagesTotal.WithLabelValues(intent.String(), metrics.OutcomeFallback).Inc()
	return &Outcome{Intent: intent, Message: msg, Fallback: true}, nil
}

func (o *Orchestrator) touch(ctx context.Context, conversationID string) {
	if err := o.db.TouchConversation(ctx, conversationID); err != nil {
		o.log.WithError(err).WithField("conversation_id", conversationID).Warn("Failed to update conversation timestamp")
	}
}

func toLLMHistory(messages []db.Message) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		content := m.Content
		if m.MessageType == db.MessageTypeImage {
			content = "[generated image: " + m.Content + "]"
		}
		history = append(history, llm.Message{Role: m.Role, Content: content})
	}
	return history
}

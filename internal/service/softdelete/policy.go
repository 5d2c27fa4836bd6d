// Package softdelete implements deletion as a marker plus a cascade over
// child records.
//
// The parent marker is written first and is the only step whose failure is
// reported to the caller. Child steps that fail are logged and left for Sweep,
// which finds deleted parents that still own live children and re-applies
// the cascade. Reads never depend on the children being marked: the store
// hides every row whose parent is deleted.
package softdelete

import (
	"context"
	"fmt"
	"time"

	"imagine-chat/internal/logger"
	"imagine-chat/internal/metrics"
	"imagine-chat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// Report summarizes one cascade
type Report struct {
	Conversations int
	Messages      int64
	Images        int64
	FailedSteps   int
}

func (r *Report) add(o Report) {
	r.Conversations += o.Conversations
	r.Messages += o.Messages
	r.Images += o.Images
	r.FailedSteps += o.FailedSteps
}

// Policy runs soft-delete cascades against the Entity Store
type Policy struct {
	db    db.Database
	batch int
	now   func() time.Time
	log   *logrus.Entry
}

// NewPolicy creates a Policy. batch bounds the parents handled per Sweep.
func NewPolicy(database db.Database, batch int) *Policy {
	if batch <= 0 {
		batch = 100
	}
	return &Policy{
		db:    database,
		batch: batch,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Component("softdelete"),
	}
}

// IsActive reports whether a row and all of its ancestors are live
func IsActive(deletedAt *time.Time, ancestors ...*time.Time) bool {
	if deletedAt != nil {
		return false
	}
	for _, a := range ancestors {
		if a != nil {
			return false
		}
	}
	return true
}

// DeleteConversation marks the conversation deleted, then its messages
func (p *Policy) DeleteConversation(ctx context.Context, id string) (*db.Conversation, Report, error) {
	at := p.now()

	conv, err := p.db.SoftDeleteConversation(ctx, id, at)
	if err != nil {
		metrics.CascadeStepsTotal.WithLabelValues("conversation", metrics.OutcomeError).Inc()
		return nil, Report{}, fmt.Errorf("failed to delete conversation: %w", err)
	}
	metrics.CascadeStepsTotal.WithLabelValues("conversation", metrics.OutcomeSuccess).Inc()

	report := Report{Conversations: 1}
	report.add(p.cascadeConversation(ctx, id, at))
	return conv, report, nil
}

// DeleteProfile marks the profile deleted, then its conversations, their
// messages and its images
func (p *Policy) DeleteProfile(ctx context.Context, id string) (Report, error) {
	at := p.now()

	if err := p.db.SoftDeleteProfile(ctx, id, at); err != nil {
		metrics.CascadeStepsTotal.WithLabelValues("profile", metrics.OutcomeError).Inc()
		return Report{}, fmt.Errorf("failed to delete profile: %w", err)
	}
	metrics.CascadeStepsTotal.WithLabelValues("profile", metrics.OutcomeSuccess).Inc()

	report := p.cascadeProfile(ctx, id, at)
	p.log.WithFields(logrus.Fields{
		"profile_id":    id,
		"conversations": report.Conversations,
		"messages":      report.Messages,
		"images":        report.Images,
		"failed_steps":  report.FailedSteps,
	}).Info("Profile deleted")
	return report, nil
}

// Sweep re-applies the child steps of cascades that did not complete. It is
// idempotent; the returned report covers the rows it marked on this run.
func (p *Policy) Sweep(ctx context.Context) (Report, error) {
	var report Report
	at := p.now()

	profiles, err := p.db.ListOrphanedProfiles(ctx, p.batch)
	if err != nil {
		return report, fmt.Errorf("failed to list orphaned profiles: %w", err)
	}
	for _, id := range profiles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(p.cascadeProfile(ctx, id, at))
	}

	conversations, err := p.db.ListOrphanedConversations(ctx, p.batch)
	if err != nil {
		return report, fmt.Errorf("failed to list orphaned conversations: %w", err)
	}
	for _, id := range conversations {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(p.cascadeConversation(ctx, id, at))
	}

	if len(profiles) > 0 || len(conversations) > 0 {
		p.log.WithFields(logrus.Fields{
			"profiles":      len(profiles),
			"conversations": len(conversations),
			"messages":      report.Messages,
			"images":        report.Images,
			"failed_steps":  report.FailedSteps,
		}).Info("Cascade sweep completed")
	}
	return report, nil
}

func (p *Policy) cascadeProfile(ctx context.Context, id string, at time.Time) Report {
	var report Report

	ids, err := p.db.SoftDeleteConversationsByOwner(ctx, id, at)
	if err != nil {
		p.stepFailed("conversation", id, err)
		report.FailedSteps++
	} else {
		metrics.CascadeStepsTotal.WithLabelValues("conversation", metrics.OutcomeSuccess).Inc()
		report.Conversations = len(ids)
		for _, convID := range ids {
			report.add(p.cascadeConversation(ctx, convID, at))
		}
	}

	n, err := p.db.SoftDeleteImagesByOwner(ctx, id, at)
	if err != nil {
		p.stepFailed("image", id, err)
		report.FailedSteps++
	} else {
		metrics.CascadeStepsTotal.WithLabelValues("image", metrics.OutcomeSuccess).Inc()
		report.Images = n
	}
	return report
}

func (p *Policy) cascadeConversation(ctx context.Context, id string, at time.Time) Report {
	n, err := p.db.SoftDeleteMessagesByConversation(ctx, id, at)
	if err != nil {
		p.stepFailed("message", id, err)
		return Report{FailedSteps: 1}
	}
	metrics.CascadeStepsTotal.WithLabelValues("message", metrics.OutcomeSuccess).Inc()
	return Report{Messages: n}
}

func (p *Policy) stepFailed(entity, parentID string, err error) {
	metrics.CascadeStepsTotal.WithLabelValues(entity, metrics.OutcomeError).Inc()
	p.log.WithError(err).WithFields(logrus.Fields{
		"entity":    entity,
		"parent_id": parentID,
	}).Error("Cascade step failed, leaving it to the sweeper")
}

package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/spec-kit/incident-service/internal/domain"
	"github.com/spec-kit/incident-service/internal/events"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

const (
	commentMaxLen     = 10000
	commentPreviewLen = 140
)

// AddComment appends a note to the ticket thread.
func (s *TicketService) AddComment(ctx context.Context, ref, author, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	if utf8.RuneCountInString(body) > commentMaxLen {
		return nil, apperrors.NewValidationError("comment too long", map[string]any{"max": commentMaxLen})
	}
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Author:    actorOrSystem(author),
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.New(events.EventCommentAdded, ticket, comment.Author, comment.CreatedAt,
		events.CommentAddedPayload{
			CommentID:   comment.ID,
			Author:      comment.Author,
			BodyPreview: stringPreview(body, commentPreviewLen),
		}))
	return comment, nil
}

// ListComments returns the thread oldest first.
func (s *TicketService) ListComments(ctx context.Context, ref string) ([]domain.Comment, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return comments, nil
}

// DeleteComment removes one comment of the ticket.
func (s *TicketService) DeleteComment(ctx context.Context, ref, commentID string) error {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	if !isUUID(commentID) {
		return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}
	if err := s.comments.Delete(ctx, ticket.ID, commentID); err != nil {
		return mapStoreError(err, "comment", commentID)
	}
	return nil
}

// ListHistory returns the audit trail oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ref string) ([]domain.TicketHistory, error) {
	ticket, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

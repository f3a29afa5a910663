package postgres

import (
	"context"
	"errors"
	"fmt"

	"fieldDispatch/domain"

	"gorm.io/gorm"
)

type TicketRepository struct {
	DB *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{DB: db}
}

func (r *TicketRepository) GetByID(ctx context.Context, ticketID string) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, fmt.Errorf("context error: %w", err)
	}

	var ticket domain.Ticket
	err := r.DB.WithContext(ctx).First(&ticket, "ticket_id = ?", ticketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to query ticket: %w", err)
	}

	return ticket, nil
}

func (r *TicketRepository) FindCurrent(ctx context.Context, technicianID, customer string, statuses ...domain.TicketStatus) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, fmt.Errorf("context error: %w", err)
	}

	// tickets are scoped to their technician: a voice update can only
	// touch tickets assigned to the speaker
	q := r.DB.WithContext(ctx).
		Where("technician_id = ?", technicianID).
		Where("status IN ?", statuses)
	if customer != "" {
		q = q.Where("customer = ?", customer)
	}

	var ticket domain.Ticket
	err := q.Order("updated_at DESC").First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to resolve current ticket: %w", err)
	}

	return ticket, nil
}

func (r *TicketRepository) MarkError(ctx context.Context, ticketID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := r.DB.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("ticket_id = ?", ticketID).
		Update("status", domain.TicketError)
	if row.Error != nil {
		return fmt.Errorf("failed to mark ticket error: %w", row.Error)
	}
	if row.RowsAffected == 0 {
		return domain.ErrTicketNotFound
	}

	return nil
}

func (r *TicketRepository) Create(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, fmt.Errorf("context error: %w", err)
	}

	ticket.Version = 1
	if err := r.DB.WithContext(ctx).Create(&ticket).Error; err != nil {
		return domain.Ticket{}, fmt.Errorf("failed to create ticket: %w", err)
	}

	return ticket, nil
}

func (r *TicketRepository) List(ctx context.Context, statuses []domain.TicketStatus, limit int) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var tickets []domain.Ticket
	if err := q.Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	return tickets, nil
}

package service

import (
	"context"
	"log/slog"

	"github.com/justlegal/servetrack/internal/docstore"
	"github.com/justlegal/servetrack/internal/domain"
)

// Client directory wire field names.
const (
	clientFieldName             = "name"
	clientFieldEmail            = "email"
	clientFieldAdditionalEmails = "additional_emails"
	clientFieldPhone            = "phone"
	clientFieldAddress          = "address"
	clientFieldNotes            = "notes"
)

// ClientService defines the interface for client directory lookups.
type ClientService interface {
	// GetByID retrieves a client by ID.
	// Returns domain.ENOTFOUND if the client does not exist.
	GetByID(ctx context.Context, id string) (*domain.Client, error)
}

// clientService implements the ClientService interface over the remote
// document store.
type clientService struct {
	docs       docstore.Store
	collection string
	logger     *slog.Logger
}

// NewClientService creates a new ClientService.
func NewClientService(docs docstore.Store, collection string, logger *slog.Logger) ClientService {
	return &clientService{
		docs:       docs,
		collection: collection,
		logger:     logger,
	}
}

func (s *clientService) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	const op = "service.client.get"

	if id == "" {
		return nil, domain.Invalid(op, "client id is required")
	}

	doc, err := s.docs.Get(ctx, s.collection, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, domain.NotFound(op, "client", id)
		}
		return nil, domain.Unavailable(err, op, "document store get failed")
	}
	return clientFromWire(doc.ID, doc.Fields), nil
}

// clientFromWire adapts a raw directory document into the canonical type.
func clientFromWire(id string, fields map[string]any) *domain.Client {
	client := &domain.Client{ID: id}

	if v, ok := fields[clientFieldName].(string); ok {
		client.Name = v
	}
	if v, ok := fields[clientFieldEmail].(string); ok {
		client.Email = v
	}
	if v, ok := fields[clientFieldPhone].(string); ok {
		client.Phone = v
	}
	if v, ok := fields[clientFieldAddress].(string); ok {
		client.Address = v
	}
	if v, ok := fields[clientFieldNotes].(string); ok {
		client.Notes = v
	}
	if raw, ok := fields[clientFieldAdditionalEmails].([]any); ok {
		for _, entry := range raw {
			if addr, ok := entry.(string); ok && addr != "" {
				client.AdditionalEmails = append(client.AdditionalEmails, addr)
			}
		}
	}
	return client
}

// Compile-time interface check
var _ ClientService = (*clientService)(nil)

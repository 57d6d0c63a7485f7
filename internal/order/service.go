package order

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPlaced   Status = "placed"
	StatusCanceled Status = "canceled"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrAlreadyCanceled = errors.New("order already canceled")
)

type Order struct {
	ID        string    `json:"id"`
	Item      string    `json:"item"`
	Quantity  int       `json:"quantity"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateInput struct {
	Item     string
	Quantity int
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	Cancel(ctx context.Context, id string) (Order, error)
}

type InMemoryService struct {
	mu    sync.RWMutex
	items map[string]Order
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{items: make(map[string]Order)}
}

func (s *InMemoryService) Create(_ context.Context, input CreateInput) (Order, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return Order{}, err
	}
	created := Order{
		ID:        newOrderID(),
		Item:      input.Item,
		Quantity:  input.Quantity,
		Status:    StatusPlaced,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.items[created.ID] = created
	s.mu.Unlock()

	return created, nil
}

func (s *InMemoryService) Get(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return item, nil
}

func (s *InMemoryService) Cancel(_ context.Context, id string) (Order, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if item.Status == StatusCanceled {
		return item, ErrAlreadyCanceled
	}
	item.Status = StatusCanceled
	s.items[id] = item
	return item, nil
}

func normalizeInput(input CreateInput) (CreateInput, error) {
	input.Item = strings.TrimSpace(input.Item)
	if input.Item == "" {
		return CreateInput{}, errors.New("item is required")
	}
	if input.Quantity < 1 {
		return CreateInput{}, errors.New("quantity must be at least 1")
	}
	return input, nil
}

func newOrderID() string {
	return "ord_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

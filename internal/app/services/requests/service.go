// Package requests implements the registration request workflow.
package requests

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/metrics"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/corpulate/platform/internal/errors"
	"github.com/corpulate/platform/pkg/logger"
)

// Service manages registration requests.
type Service struct {
	store    storage.RequestStore
	packages storage.PackageStore
	addOns   storage.AddOnStore
	log      *logger.Logger
}

// New constructs a request service.
func New(store storage.RequestStore, packages storage.PackageStore, addOns storage.AddOnStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("requests")
	}
	return &Service{store: store, packages: packages, addOns: addOns, log: log}
}

// CreateInput carries the fields accepted when submitting a request.
type CreateInput struct {
	Name        string  `json:"name"`
	CompanyName string  `json:"company_name"`
	PackageID   int64   `json:"package_id"`
	AddOnIDs    []int64 `json:"ad_ids"`
}

// Create validates references and stores a pending request for the user.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (registration.Request, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if in.Name == "" || in.CompanyName == "" {
		return registration.Request{}, errors.BadRequest("Name and company name are required")
	}
	if in.PackageID <= 0 {
		return registration.Request{}, errors.BadRequest("A package is required")
	}

	if _, err := s.packages.GetPackage(ctx, in.PackageID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return registration.Request{}, errors.BadRequest("Selected package does not exist")
		}
		return registration.Request{}, errors.Internal("failed to load package", err)
	}

	ids := dedupe(in.AddOnIDs)
	if len(ids) > 0 {
		found, err := s.addOns.GetAddOns(ctx, ids)
		if err != nil {
			return registration.Request{}, errors.Internal("failed to load add-ons", err)
		}
		if len(found) != len(ids) {
			return registration.Request{}, errors.BadRequest("One or more selected add-ons do not exist")
		}
	}

	created, err := s.store.CreateRequest(ctx, registration.Request{
		Name:        in.Name,
		CompanyName: in.CompanyName,
		Status:      registration.StatusPending,
		UserID:      userID,
		PackageID:   in.PackageID,
		AddOnIDs:    ids,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return registration.Request{}, errors.BadRequest("One or more selected items do not exist")
		}
		return registration.Request{}, errors.Internal("failed to create request", err)
	}
	metrics.RecordRequestSubmitted()
	s.log.WithFields(map[string]interface{}{"request_id": created.ID, "user_id": userID}).Info("request created")
	return created, nil
}

// List returns the user's requests, optionally narrowed by status.
func (s *Service) List(ctx context.Context, userID int64, status string) ([]registration.Request, error) {
	filter := storage.RequestFilter{UserID: userID}
	if status != "" {
		st := registration.Status(status)
		if !st.Valid() {
			return nil, errors.BadRequest("Invalid status; must be one of pending, completed, rejected")
		}
		filter.Status = st
	}
	items, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, errors.Internal("failed to list requests", err)
	}
	return items, nil
}

// Get loads one of the user's requests. Requests belonging to other users are
// reported as absent.
func (s *Service) Get(ctx context.Context, userID, id int64) (registration.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return registration.Request{}, errors.NotFound("Request not found")
		}
		return registration.Request{}, errors.Internal("failed to load request", err)
	}
	if req.UserID != userID {
		return registration.Request{}, errors.NotFound("Request not found")
	}
	return req, nil
}

// UpdateStatus moves one of the user's requests to a new status.
func (s *Service) UpdateStatus(ctx context.Context, userID, id int64, status registration.Status) (registration.Request, error) {
	if !status.Valid() {
		return registration.Request{}, errors.BadRequest("Invalid status; must be one of pending, completed, rejected")
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return registration.Request{}, err
	}

	updated, err := s.store.UpdateRequestStatus(ctx, id, status)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return registration.Request{}, errors.NotFound("Request not found")
		}
		return registration.Request{}, errors.Internal("failed to update request", err)
	}
	s.log.WithFields(map[string]interface{}{"request_id": id, "status": status}).Info("request status updated")
	return updated, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

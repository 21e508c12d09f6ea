package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/datatypes"
)

// DirectoryService manages identities and the client and therapist
// profiles hanging off them. Every write goes through the store so
// profile changes reach the event feed and the usual cascades apply.
type DirectoryService struct {
	store *store.Store
}

func NewDirectoryService(st *store.Store) *DirectoryService {
	return &DirectoryService{store: st}
}

// RegisterClient creates the identity and the care profile in one
// transaction; a failure on either side leaves nothing behind.
func (s *DirectoryService) RegisterClient(ctx context.Context, req *dto.RegisterClientRequest) (*dto.ClientAccountResponse, error) {
	if req.TherapistID != nil {
		if _, err := s.store.GetTherapist(ctx, *req.TherapistID); err != nil {
			return nil, err
		}
	}
	profile := req.ProfileData
	if profile == nil {
		profile = datatypes.JSON([]byte(`{}`))
	}

	user := &models.User{
		Email:     strings.TrimSpace(req.Email),
		Role:      models.RoleClient,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	client := &models.Client{
		TherapistID: req.TherapistID,
		ProfileData: profile,
	}
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		client.UserID = user.ID
		return tx.CreateClient(ctx, client)
	})
	if err != nil {
		return nil, err
	}
	return &dto.ClientAccountResponse{User: *user, Client: *client}, nil
}

// RegisterTherapist creates the identity and the provider profile in
// one transaction.
func (s *DirectoryService) RegisterTherapist(ctx context.Context, req *dto.RegisterTherapistRequest) (*dto.TherapistAccountResponse, error) {
	credentials := req.Credentials
	if credentials == nil {
		credentials = datatypes.JSON([]byte(`{}`))
	}
	availability := req.Availability
	if availability == nil {
		availability = datatypes.JSON([]byte(`{}`))
	}

	user := &models.User{
		Email:     strings.TrimSpace(req.Email),
		Role:      models.RoleTherapist,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	therapist := &models.Therapist{
		Specialties:  datatypes.NewJSONSlice(req.Specialties),
		Credentials:  credentials,
		Availability: availability,
	}
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		therapist.UserID = user.ID
		return tx.CreateTherapist(ctx, therapist)
	})
	if err != nil {
		return nil, err
	}
	return &dto.TherapistAccountResponse{User: *user, Therapist: *therapist}, nil
}

// GetClientAccount returns the client profile joined with its identity.
func (s *DirectoryService) GetClientAccount(ctx context.Context, clientID uuid.UUID) (*dto.ClientAccountResponse, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, client.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.ClientAccountResponse{User: *user, Client: *client}, nil
}

// GetTherapistAccount returns the therapist profile joined with its
// identity.
func (s *DirectoryService) GetTherapistAccount(ctx context.Context, therapistID uuid.UUID) (*dto.TherapistAccountResponse, error) {
	therapist, err := s.store.GetTherapist(ctx, therapistID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, therapist.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.TherapistAccountResponse{User: *user, Therapist: *therapist}, nil
}

// UpdateUser applies the provided fields, leaving the rest untouched.
func (s *DirectoryService) UpdateUser(ctx context.Context, id uuid.UUID, req *dto.UpdateUserRequest) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateClient applies the provided fields. A therapist change is
// validated against the directory first.
func (s *DirectoryService) UpdateClient(ctx context.Context, id uuid.UUID, req *dto.UpdateClientRequest) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.TherapistID != nil {
		if _, err := s.store.GetTherapist(ctx, *req.TherapistID); err != nil {
			return nil, err
		}
		client.TherapistID = req.TherapistID
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	if req.IntakeCompleted != nil {
		client.IntakeCompleted = *req.IntakeCompleted
	}
	if req.ProfileData != nil {
		client.ProfileData = req.ProfileData
	}
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// UpdateTherapist applies the provided fields.
func (s *DirectoryService) UpdateTherapist(ctx context.Context, id uuid.UUID, req *dto.UpdateTherapistRequest) (*models.Therapist, error) {
	therapist, err := s.store.GetTherapist(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		therapist.Status = *req.Status
	}
	if req.Specialties != nil {
		therapist.Specialties = datatypes.NewJSONSlice(req.Specialties)
	}
	if req.Credentials != nil {
		therapist.Credentials = req.Credentials
	}
	if req.Availability != nil {
		therapist.Availability = req.Availability
	}
	if err := s.store.UpdateTherapist(ctx, therapist); err != nil {
		return nil, err
	}
	return therapist, nil
}

// AssignTherapist matches a client with a therapist; nil detaches the
// current one.
func (s *DirectoryService) AssignTherapist(ctx context.Context, clientID uuid.UUID, therapistID *uuid.UUID) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if therapistID != nil {
		if _, err := s.store.GetTherapist(ctx, *therapistID); err != nil {
			return nil, err
		}
	}
	client.TherapistID = therapistID
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Counts reports account totals by role for the admin dashboard.
func (s *DirectoryService) Counts(ctx context.Context) (*dto.UserCountsResponse, error) {
	clients, err := s.store.CountUsers(ctx, models.RoleClient)
	if err != nil {
		return nil, err
	}
	therapists, err := s.store.CountUsers(ctx, models.RoleTherapist)
	if err != nil {
		return nil, err
	}
	admins, err := s.store.CountUsers(ctx, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &dto.UserCountsResponse{
		Clients:    clients,
		Therapists: therapists,
		Admins:     admins,
		Total:      clients + therapists + admins,
	}, nil
}

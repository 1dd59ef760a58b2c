package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockRepo struct {
	upsertTokenFn  func(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error)
	activeTokensFn func(ctx context.Context, userID int64) ([]*DeviceToken, error)
	getPrefsFn     func(ctx context.Context, userID int64) (*Preference, error)
	upsertPrefsFn  func(ctx context.Context, userID int64, params UpdatePreferenceParams) (*Preference, error)
	createFn       func(ctx context.Context, params CreateNotificationParams) (*Notification, error)

	storedNotifications []CreateNotificationParams
}

func (m *mockRepo) UpsertDeviceToken(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if m.upsertTokenFn != nil {
		return m.upsertTokenFn(ctx, params)
	}
	return &DeviceToken{ID: "tok-1", UserID: params.UserID, Token: params.Token, DeviceType: params.DeviceType, IsActive: true}, nil
}

func (m *mockRepo) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*DeviceToken, error) {
	if m.activeTokensFn != nil {
		return m.activeTokensFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockRepo) DeactivateToken(ctx context.Context, token string) error { return nil }

func (m *mockRepo) GetPreferences(ctx context.Context, userID int64) (*Preference, error) {
	if m.getPrefsFn != nil {
		return m.getPrefsFn(ctx, userID)
	}
	return nil, errors.New("no preferences")
}

func (m *mockRepo) UpsertPreferences(ctx context.Context, userID int64, params UpdatePreferenceParams) (*Preference, error) {
	if m.upsertPrefsFn != nil {
		return m.upsertPrefsFn(ctx, userID, params)
	}
	return &Preference{UserID: userID}, nil
}

func (m *mockRepo) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	m.storedNotifications = append(m.storedNotifications, params)
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &Notification{ID: "n-1", UserID: params.UserID, Title: params.Title, Message: params.Message, Category: params.Category}, nil
}

func (m *mockRepo) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	return nil, 0, nil
}

func (m *mockRepo) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	return nil
}

type mockMessenger struct {
	sent []sentPush
}

type sentPush struct {
	tokens []string
	title  string
	body   string
	data   map[string]string
}

func (m *mockMessenger) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentPush{tokens: []string{token}, title: title, body: body, data: data})
	return nil
}

func (m *mockMessenger) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentPush{tokens: tokens, title: title, body: body, data: data})
	return nil
}

func activeToken(userID int64) []*DeviceToken {
	return []*DeviceToken{{ID: "tok-1", UserID: userID, Token: "fcm-token", IsActive: true}}
}

func TestRegisterDeviceValidation(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, nil)

	tests := []struct {
		name    string
		params  CreateDeviceTokenParams
		wantErr error
	}{
		{"missing token", CreateDeviceTokenParams{UserID: 1, DeviceType: "ios"}, ErrInvalidToken},
		{"bad device type", CreateDeviceTokenParams{UserID: 1, Token: "t", DeviceType: "windows"}, ErrInvalidDeviceType},
		{"valid ios", CreateDeviceTokenParams{UserID: 1, Token: "t", DeviceType: "ios"}, nil},
		{"valid android", CreateDeviceTokenParams{UserID: 1, Token: "t", DeviceType: "android"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterDevice(context.Background(), tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RegisterDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterDeviceCreatesDefaultPreferences(t *testing.T) {
	var upserted bool
	repo := &mockRepo{
		getPrefsFn: func(ctx context.Context, userID int64) (*Preference, error) {
			return nil, errors.New("not found")
		},
		upsertPrefsFn: func(ctx context.Context, userID int64, params UpdatePreferenceParams) (*Preference, error) {
			upserted = true
			return &Preference{UserID: userID}, nil
		},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterDevice(context.Background(), CreateDeviceTokenParams{UserID: 1, Token: "t", DeviceType: "ios"})
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	if !upserted {
		t.Error("expected default preferences to be created")
	}
}

func TestGetPreferencesDefaultsWhenMissing(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, nil)

	prefs, err := svc.GetPreferences(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	for _, category := range []string{CategoryConnections, CategoryGeneral, CategorySubscriptions, CategorySync} {
		if !prefs.IsCategoryEnabled(category) {
			t.Errorf("default preferences should enable %q", category)
		}
	}
}

func TestSendToUserSkipsDisabledCategory(t *testing.T) {
	repo := &mockRepo{
		getPrefsFn: func(ctx context.Context, userID int64) (*Preference, error) {
			return &Preference{UserID: userID, SyncEnabled: false, ConnectionsEnabled: true}, nil
		},
		activeTokensFn: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return activeToken(userID), nil
		},
	}
	messenger := &mockMessenger{}
	svc := NewService(repo, messenger, nil)

	if err := svc.SendToUser(context.Background(), 1, "T", "B", CategorySync, nil); err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}
	if len(messenger.sent) != 0 {
		t.Errorf("expected no push for disabled category, got %d", len(messenger.sent))
	}
	if len(repo.storedNotifications) != 0 {
		t.Errorf("expected no stored notification for disabled category, got %d", len(repo.storedNotifications))
	}
}

func TestSendToUserDeliversAndStores(t *testing.T) {
	repo := &mockRepo{
		activeTokensFn: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return activeToken(userID), nil
		},
	}
	messenger := &mockMessenger{}
	svc := NewService(repo, messenger, nil)

	if err := svc.SendToUser(context.Background(), 1, "Title", "Body", CategoryConnections, nil); err != nil {
		t.Fatalf("SendToUser() error = %v", err)
	}

	if len(messenger.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(messenger.sent))
	}
	push := messenger.sent[0]
	if push.data["route"] != CategoryConnections {
		t.Errorf("route = %q, want %q", push.data["route"], CategoryConnections)
	}
	if len(repo.storedNotifications) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(repo.storedNotifications))
	}
	if repo.storedNotifications[0].Category != CategoryConnections {
		t.Errorf("stored category = %q", repo.storedNotifications[0].Category)
	}
}

func TestSendToUserRejectsUnknownCategory(t *testing.T) {
	svc := NewService(&mockRepo{}, nil, nil)
	if err := svc.SendToUser(context.Background(), 1, "T", "B", "marketing", nil); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("SendToUser() error = %v, want ErrInvalidCategory", err)
	}
}

func TestSendReconnectionNeededNamesInstitution(t *testing.T) {
	repo := &mockRepo{
		activeTokensFn: func(ctx context.Context, userID int64) ([]*DeviceToken, error) {
			return activeToken(userID), nil
		},
	}
	messenger := &mockMessenger{}
	svc := NewService(repo, messenger, nil)

	if err := svc.SendReconnectionNeeded(context.Background(), 1, "Questrade"); err != nil {
		t.Fatalf("SendReconnectionNeeded() error = %v", err)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(messenger.sent))
	}
	if !strings.Contains(messenger.sent[0].body, "Questrade") {
		t.Errorf("body %q should name the institution", messenger.sent[0].body)
	}
	if messenger.sent[0].data["route"] != CategoryConnections {
		t.Errorf("route = %q, want %q", messenger.sent[0].data["route"], CategoryConnections)
	}
}

package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/notification"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

const (
	testPhone    = "+15550001111"
	testNewPhone = "+15550002222"
	testCode     = "123456"
)

type appliedChange struct {
	userID string
	kind   string
	digest zk.Digest
}

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[zk.Digest]string
	applied []appliedChange
}

func (d *fakeDirectory) FindUserIDByIdentifier(_ context.Context, identifier zk.Digest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.users[identifier]
	if !ok {
		return "", ErrUserNotFound
	}
	return id, nil
}

func (d *fakeDirectory) ApplyIdentifierChange(_ context.Context, userID, kind string, newIdentifier zk.Digest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applied = append(d.applied, appliedChange{userID: userID, kind: kind, digest: newIdentifier})
	return nil
}

type captureNotifier struct {
	last notification.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	return nil
}

func digestOf(t *testing.T, phone string) zk.Digest {
	t.Helper()
	fd, err := zk.DigestFactor(zk.FactorPhone, phone)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	return fd.Digest
}

func newTestService(t *testing.T) (*Service, *fakeDirectory, *captureNotifier, string) {
	t.Helper()
	userID := uuid.NewString()
	directory := &fakeDirectory{users: map[zk.Digest]string{digestOf(t, testPhone): userID}}
	notifier := &captureNotifier{}
	svc := NewService(NewMemoryRepository(), directory, Options{Notifier: notifier})
	svc.generateCode = func() (string, error) { return testCode, nil }
	return svc, directory, notifier, userID
}

func TestPhoneChangeHappyPath(t *testing.T) {
	svc, directory, _, userID := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if request.Status != StatusPending || request.MaxAttempts != DefaultPhoneChangePolicy.MaxAttempts {
		t.Fatalf("unexpected request: %+v", request)
	}

	for i := 1; i <= 2; i++ {
		request, err = svc.Attempt(ctx, request.ID, "000000")
		if !errors.Is(err, ErrCodeRejected) {
			t.Fatalf("attempt %d: expected rejection, got %v", i, err)
		}
		if request.Status != StatusPending || request.Attempts != i {
			t.Fatalf("attempt %d: unexpected request: %+v", i, request)
		}
	}

	request, err = svc.Attempt(ctx, request.ID, testCode)
	if err != nil {
		t.Fatalf("correct attempt: %v", err)
	}
	if request.Status != StatusVerified || request.Attempts != 3 {
		t.Fatalf("expected verified after 3 attempts, got %s after %d", request.Status, request.Attempts)
	}

	request, err = svc.Complete(ctx, request.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if request.Status != StatusCompleted || request.CompletedAt == nil {
		t.Fatalf("completion not recorded: %+v", request)
	}

	if len(directory.applied) != 1 {
		t.Fatalf("expected one applied change, got %d", len(directory.applied))
	}
	change := directory.applied[0]
	if change.userID != userID || change.kind != KindPhoneChange || change.digest != digestOf(t, testNewPhone) {
		t.Fatalf("unexpected applied change: %+v", change)
	}
}

func TestCorrectCodeAfterExpiryExpires(t *testing.T) {
	svc, directory, _, userID := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	request, err := svc.Create(ctx, CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.now = func() time.Time { return base.Add(DefaultPhoneChangePolicy.Window + time.Minute) }

	request, err = svc.Attempt(ctx, request.ID, testCode)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if request.Status != StatusExpired || request.Attempts != 0 {
		t.Fatalf("expected expired with no attempts consumed, got %s after %d", request.Status, request.Attempts)
	}
	if len(directory.applied) != 0 {
		t.Fatalf("identifier changed on an expired request")
	}

	// Later attempts report expiry without reviving the request.
	if _, err := svc.Attempt(ctx, request.ID, testCode); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expiry to stick, got %v", err)
	}
}

func TestAccountRecoveryExhaustsAttempts(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, CreateInput{
		Kind:              KindAccountRecovery,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if request.MaxAttempts != DefaultAccountRecoveryPolicy.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultAccountRecoveryPolicy.MaxAttempts, request.MaxAttempts)
	}

	for i := 1; i < request.MaxAttempts; i++ {
		if _, err := svc.Attempt(ctx, request.ID, "000000"); !errors.Is(err, ErrCodeRejected) {
			t.Fatalf("attempt %d: expected rejection, got %v", i, err)
		}
	}
	request, err = svc.Attempt(ctx, request.ID, "000000")
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("final attempt: expected exhaustion, got %v", err)
	}
	if request.Status != StatusFailed || request.Attempts != request.MaxAttempts {
		t.Fatalf("expected failed at the cap, got %s after %d", request.Status, request.Attempts)
	}

	// The correct code no longer helps and the counter stays put.
	request2, err := svc.Attempt(ctx, request.ID, testCode)
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected exhaustion to stick, got %v", err)
	}
	if request2.Attempts != request.MaxAttempts {
		t.Fatalf("counter moved after failure: %d", request2.Attempts)
	}
}

func TestCompleteRequiresVerified(t *testing.T) {
	svc, directory, _, userID := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var stateErr InvalidStateError
	if _, err := svc.Complete(ctx, request.ID); !errors.As(err, &stateErr) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if stateErr.Status != StatusPending {
		t.Fatalf("unexpected status in error: %s", stateErr.Status)
	}
	if len(directory.applied) != 0 {
		t.Fatalf("identifier changed without verification")
	}
}

func TestCreateResolvesUserFromIdentifier(t *testing.T) {
	svc, _, _, userID := newTestService(t)

	request, err := svc.Create(context.Background(), CreateInput{
		Kind:              KindAccountRecovery,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if request.UserID != userID {
		t.Fatalf("expected resolution to %s, got %s", userID, request.UserID)
	}
}

func TestCreateRejectsUnknownIdentifier(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Kind:              KindAccountRecovery,
		CurrentIdentifier: "+15550009999",
		NewIdentifier:     testNewPhone,
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestCreateRejectsForeignIdentifier(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Kind:              KindPhoneChange,
		UserID:            uuid.NewString(),
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsUnchangedIdentifier(t *testing.T) {
	svc, _, _, userID := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testPhone,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExplicitExpire(t *testing.T) {
	svc, _, _, userID := newTestService(t)
	ctx := context.Background()

	request, err := svc.Create(ctx, CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	request, err = svc.Expire(ctx, request.ID)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if request.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", request.Status)
	}
	if _, err := svc.Attempt(ctx, request.ID, testCode); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestCodeIsDeliveredNotStored(t *testing.T) {
	svc, _, notifier, userID := newTestService(t)

	request, err := svc.Create(context.Background(), CreateInput{
		Kind:              KindPhoneChange,
		UserID:            userID,
		CurrentIdentifier: testPhone,
		NewIdentifier:     testNewPhone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if notifier.last.Kind != notification.KindPhoneChangeCode {
		t.Fatalf("unexpected notification kind %q", notifier.last.Kind)
	}
	if notifier.last.Destination != testNewPhone {
		t.Fatalf("code sent to %q, expected the new identifier", notifier.last.Destination)
	}
	if !strings.Contains(notifier.last.Body, testCode) {
		t.Fatalf("notification body does not carry the code: %q", notifier.last.Body)
	}
	if strings.Contains(string(request.CodeHash), testCode) {
		t.Fatalf("code persisted in clear")
	}
}

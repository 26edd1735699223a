package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corpulate/platform/internal/app/auth"
	"github.com/corpulate/platform/internal/app/storage/memory"
	"github.com/corpulate/platform/internal/errors"
)

type recordingMailer struct {
	mu       sync.Mutex
	welcomes []string
}

func (m *recordingMailer) SendWelcome(ctx context.Context, to, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, to)
	return nil
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error { return nil }

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.welcomes)
}

func newService(mail *recordingMailer) *Service {
	if mail == nil {
		return New(memory.New(), auth.NewTokenManager("test-secret"), nil, nil)
	}
	return New(memory.New(), auth.NewTokenManager("test-secret"), mail, nil)
}

func validSignup() SignupInput {
	return SignupInput{
		Email:     "jordan@example.com",
		Password:  "hunter22",
		FirstName: "Jordan",
		LastName:  "Doe",
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*SignupInput)
	}{
		{"missing email", func(in *SignupInput) { in.Email = "" }},
		{"missing first name", func(in *SignupInput) { in.FirstName = " " }},
		{"bad email", func(in *SignupInput) { in.Email = "not-an-email" }},
		{"email with spaces", func(in *SignupInput) { in.Email = "a b@c.com" }},
		{"short password", func(in *SignupInput) { in.Password = "12345" }},
	}
	for _, tc := range cases {
		in := validSignup()
		tc.mut(&in)
		if _, err := svc.Signup(ctx, in); errStatus(err) != 400 {
			t.Fatalf("%s: want 400, got %v", tc.name, err)
		}
	}
}

func TestSignupIssuesTokenAndSendsWelcome(t *testing.T) {
	mail := &recordingMailer{}
	svc := newService(mail)

	session, err := svc.Signup(context.Background(), validSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected session token")
	}
	if session.User.Email != "jordan@example.com" {
		t.Fatalf("user = %+v", session.User)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mail.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("welcome email never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, validSignup()); err != nil {
		t.Fatalf("signup: %v", err)
	}

	dup := validSignup()
	dup.Email = "JORDAN@example.com"
	if _, err := svc.Signup(ctx, dup); errStatus(err) != 409 {
		t.Fatalf("duplicate email: want 409, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, validSignup()); err != nil {
		t.Fatalf("signup: %v", err)
	}

	session, err := svc.Login(ctx, LoginInput{Email: "Jordan@Example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected session token")
	}

	// Unknown account and wrong password must be indistinguishable.
	_, unknownErr := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "hunter22"})
	_, wrongErr := svc.Login(ctx, LoginInput{Email: "jordan@example.com", Password: "wrong-pass"})
	if errStatus(unknownErr) != 401 || errStatus(wrongErr) != 401 {
		t.Fatalf("want 401/401, got %v / %v", unknownErr, wrongErr)
	}
	if errMessage(unknownErr) != errMessage(wrongErr) {
		t.Fatalf("login errors differ: %q vs %q", errMessage(unknownErr), errMessage(wrongErr))
	}
}

func errStatus(err error) int {
	if se := errors.GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return 0
}

func errMessage(err error) string {
	if se := errors.GetServiceError(err); se != nil {
		return se.Message
	}
	return ""
}

// Package contact validates contact form submissions, checks the Turnstile challenge,
// and sends the admin notification and the sender confirmation.
package contact

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var mailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.gohtml"))

const (
	adminSubjectPrefix = "[Contact Form] "
	defaultLang        = "en"

	maxNameRunes    = 200
	maxEmailRunes   = 254
	maxSubjectRunes = 200
	maxMessageRunes = 10000
)

type confirmation struct {
	template string
	subject  string
}

// confirmations holds the sender confirmation per locale.
var confirmations = map[string]confirmation{
	"en": {template: "confirmation_en.gohtml", subject: "Thank you for contacting Rox"},
	"ja": {template: "confirmation_ja.gohtml", subject: "Rox へのお問い合わせありがとうございます"},
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Submission errors. The HTTP layer maps each one to a status code and message.
var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrFieldTooLong  = errors.New("field too long")
	ErrInvalidToken  = errors.New("invalid security token")
	ErrSend          = errors.New("failed to send email")
)

// Submission is one contact form post. Lang selects the confirmation language;
// unknown values get English.
type Submission struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	TurnstileToken string `json:"turnstileToken"`
	Lang           string `json:"lang,omitempty"`
}

// Validate trims every field and checks presence, length and email shape.
func (s *Submission) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Subject = strings.TrimSpace(s.Subject)
	s.Message = strings.TrimSpace(s.Message)
	s.TurnstileToken = strings.TrimSpace(s.TurnstileToken)
	s.Lang = strings.ToLower(strings.TrimSpace(s.Lang))

	if s.Name == "" || s.Email == "" || s.Subject == "" || s.Message == "" || s.TurnstileToken == "" {
		return ErrMissingFields
	}
	if utf8.RuneCountInString(s.Name) > maxNameRunes ||
		utf8.RuneCountInString(s.Email) > maxEmailRunes ||
		utf8.RuneCountInString(s.Subject) > maxSubjectRunes ||
		utf8.RuneCountInString(s.Message) > maxMessageRunes {
		return ErrFieldTooLong
	}
	if !emailPattern.MatchString(s.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Verifier checks a bot-challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an HTML email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Service processes submissions.
type Service struct {
	verifier Verifier
	mailer   Mailer
	logger   *slog.Logger
	from     string
	adminTo  string
}

// NewService wires a verifier and mailer. from is the sender address of both emails and
// adminTo receives notifications.
func NewService(verifier Verifier, mailer Mailer, from, adminTo string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier: verifier,
		mailer:   mailer,
		from:     from,
		adminTo:  adminTo,
		logger:   logger.With("component", "contact"),
	}
}

// Submit validates sub, verifies its token and sends both emails concurrently.
func (s *Service) Submit(ctx context.Context, sub Submission, remoteIP string) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	ok, err := s.verifier.Verify(ctx, sub.TurnstileToken, remoteIP)
	if err != nil {
		s.logger.ErrorContext(ctx, "turnstile verification error", slog.Any("err", err))
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !ok {
		return ErrInvalidToken
	}

	admin, confirm, err := s.messages(sub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, msg := range []Message{admin, confirm} {
		g.Go(func() error {
			if err := s.mailer.Send(gctx, msg); err != nil {
				return fmt.Errorf("send to %s: %w", msg.To, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "contact email failed", slog.Any("err", err))
		return fmt.Errorf("%w: %w", ErrSend, err)
	}

	s.logger.InfoContext(ctx, "contact form delivered", slog.String("subject", sub.Subject))
	return nil
}

func (s *Service) messages(sub Submission) (Message, Message, error) {
	adminHTML, err := render("admin.gohtml", sub)
	if err != nil {
		return Message{}, Message{}, err
	}
	c, ok := confirmations[sub.Lang]
	if !ok {
		c = confirmations[defaultLang]
	}
	confirmHTML, err := render(c.template, sub)
	if err != nil {
		return Message{}, Message{}, err
	}
	admin := Message{
		From:    s.from,
		To:      s.adminTo,
		ReplyTo: sub.Email,
		Subject: adminSubjectPrefix + sub.Subject,
		HTML:    adminHTML,
	}
	confirm := Message{
		From:    s.from,
		To:      sub.Email,
		Subject: c.subject,
		HTML:    confirmHTML,
	}
	return admin, confirm, nil
}

func render(name string, sub Submission) (string, error) {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, sub); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

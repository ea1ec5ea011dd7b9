package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification tells the administrator about one booking request.
type Notification struct {
	BookingID     int64
	Role          string
	StudentNumber string
	Company       string
	Name          string
	Phone         string
	Email         string
	Field         string
	Date          string
	Slots         []string
	Participants  *int
	Reason        string
	Invoice       string
	ApproveURL    string
	RejectURL     string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

var bodyTemplate = template.Must(template.New("booking").Parse(`<h2>New studio booking request</h2>
<table cellpadding="4">
<tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
<tr><td><b>Slots</b></td><td>{{range $i, $s := .Slots}}{{if $i}}, {{end}}{{$s}}{{end}}</td></tr>
<tr><td><b>Role</b></td><td>{{.Role}}</td></tr>
{{if .StudentNumber}}<tr><td><b>Student number</b></td><td>{{.StudentNumber}}</td></tr>
{{end}}{{if .Company}}<tr><td><b>Company</b></td><td>{{.Company}}</td></tr>
{{end}}<tr><td><b>Name</b></td><td>{{.Name}}</td></tr>
<tr><td><b>Phone</b></td><td>{{.Phone}}</td></tr>
<tr><td><b>Email</b></td><td>{{.Email}}</td></tr>
{{if .Field}}<tr><td><b>Field of study</b></td><td>{{.Field}}</td></tr>
{{end}}{{if .Participants}}<tr><td><b>Participants</b></td><td>{{.Participants}}</td></tr>
{{end}}{{if .Reason}}<tr><td><b>Reason</b></td><td>{{.Reason}}</td></tr>
{{end}}{{if .Invoice}}<tr><td><b>Invoice</b></td><td><pre>{{.Invoice}}</pre></td></tr>
{{end}}</table>
<p>
<a href="{{.ApproveURL}}">Approve</a> &nbsp;|&nbsp; <a href="{{.RejectURL}}">Reject</a>
</p>
`))

type view struct {
	Notification
	Participants string
}

// Render builds the email sent to the administrator.
func Render(to string, n Notification) (Message, error) {
	v := view{Notification: n}
	if n.Participants != nil {
		v.Participants = fmt.Sprint(*n.Participants)
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render notification: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Booking request %s %s (%s)", n.Date, strings.Join(n.Slots, ", "), n.Name),
		HTML:    buf.String(),
	}, nil
}

// MailNotifier renders the notification and hands it to a Sender.
type MailNotifier struct {
	To     string
	Sender Sender
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := Render(m.To, n)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, msg)
}

// NopNotifier is used when no mail transport or admin address is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// Gateway runs a Notifier on a best-effort basis: every attempt is bounded
// by Timeout and its outcome is only logged.
type Gateway struct {
	notifier Notifier
	timeout  time.Duration
	log      *zerolog.Logger
	observe  func(err error)
}

func NewGateway(n Notifier, timeout time.Duration, log *zerolog.Logger) *Gateway {
	if n == nil {
		n = NopNotifier{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Gateway{notifier: n, timeout: timeout, log: log}
}

// OnResult registers a callback invoked with the result of each attempt.
func (g *Gateway) OnResult(fn func(err error)) {
	g.observe = fn
}

// Send never returns an error and never panics. It is detached from the
// caller's cancellation so a finished HTTP request does not abort delivery.
func (g *Gateway) Send(ctx context.Context, n Notification) {
	if _, off := g.notifier.(NopNotifier); off {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
		if g.observe != nil {
			g.observe(err)
		}
		if err != nil {
			g.log.Warn().Err(err).Int64("booking_id", n.BookingID).Msg("failed to send booking notification")
			return
		}
		g.log.Info().Int64("booking_id", n.BookingID).Msg("booking notification sent")
	}()

	err = g.notifier.Notify(ctx, n)
}

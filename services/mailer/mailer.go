package mailer

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"stockalert/models"
)

const (
	workerCount  = 2
	queueSize    = 64
	drainTimeout = 10 * time.Second
)

// Mailer sends notification emails through SMTP. Sends happen on a small
// worker pool off the caller's path: Enqueue never blocks, transport
// failures are logged and dropped, and a send failure never rolls back the
// state change that triggered it.
type Mailer struct {
	dialer *gomail.Dialer
	sender string
	admin  string
	log    *zap.Logger

	jobs      chan *gomail.Message
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Mailer and starts its workers.
func New(host string, port int, username, password, admin string, log *zap.Logger) *Mailer {
	sender := username
	if sender == "" {
		sender = admin
	}
	m := &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		sender: sender,
		admin:  admin,
		log:    log,
		jobs:   make(chan *gomail.Message, queueSize),
	}
	for i := 0; i < workerCount; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

func (m *Mailer) worker() {
	defer m.wg.Done()
	for msg := range m.jobs {
		if err := m.dialer.DialAndSend(msg); err != nil {
			m.log.Warn("failed to send email",
				zap.Strings("to", msg.GetHeader("To")),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting new mail and waits for in-flight sends to drain,
// up to a timeout.
func (m *Mailer) Close() {
	m.closeOnce.Do(func() { close(m.jobs) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		m.log.Warn("timed out waiting for mail queue to drain")
	}
}

func (m *Mailer) enqueue(subject string, recipients []string, textBody, htmlBody string) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.sender)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	select {
	case m.jobs <- msg:
	default:
		m.log.Warn("mail queue full, dropping message", zap.String("subject", subject))
	}
}

// SendAlertTriggered emails the user that their price alert has fired.
func (m *Mailer) SendAlertTriggered(user models.User, stock models.Stock, alert models.Alert) {
	text, html, err := renderAlertTriggered(user, stock, alert)
	if err != nil {
		m.log.Error("failed to render alert email", zap.Error(err))
		return
	}
	m.enqueue("[StockAlert] Alert Notification", []string{user.Email}, text, html)
}

// SendPriceFeedIssue notifies the administrator that the price provider
// returned no usable data for a stock.
func (m *Mailer) SendPriceFeedIssue(stock models.Stock) {
	text, html, err := renderPriceFeedIssue(stock)
	if err != nil {
		m.log.Error("failed to render issue email", zap.Error(err))
		return
	}
	m.enqueue("[StockAlert] Issue with price provider", []string{m.admin}, text, html)
}

// SendPasswordReset emails the user a password reset link token.
func (m *Mailer) SendPasswordReset(user models.User, token string) {
	text, html, err := renderPasswordReset(user, token)
	if err != nil {
		m.log.Error("failed to render reset email", zap.Error(err))
		return
	}
	m.enqueue("[StockAlert] Reset Your Password", []string{user.Email}, text, html)
}

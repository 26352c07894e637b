package mailer

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"

	"stockalert/models"
)

var alertTriggeredText = template.Must(template.New("alert_text").Parse(
	`Dear {{.User.Username}},

Your alert for {{.Stock.Symbol}} ({{.Stock.Name}}) has been triggered.

Target price: ${{.Alert.DesiredPrice}}
Price when the alert was set: ${{.Alert.PriceAtCreation}}
Current price: ${{.Stock.LastPrice}}

This alert is now complete and will not fire again.

StockAlert
`))

var alertTriggeredHTML = htmltemplate.Must(htmltemplate.New("alert_html").Parse(
	`<p>Dear {{.User.Username}},</p>
<p>Your alert for <b>{{.Stock.Symbol}}</b> ({{.Stock.Name}}) has been triggered.</p>
<ul>
<li>Target price: ${{.Alert.DesiredPrice}}</li>
<li>Price when the alert was set: ${{.Alert.PriceAtCreation}}</li>
<li>Current price: ${{.Stock.LastPrice}}</li>
</ul>
<p>This alert is now complete and will not fire again.</p>
<p>StockAlert</p>
`))

var priceFeedIssueText = template.Must(template.New("issue_text").Parse(
	`The price provider returned no usable data for {{.Stock.Symbol}} ({{.Stock.Name}}).

Alerts referencing this symbol are skipped until data is available again.

StockAlert
`))

var priceFeedIssueHTML = htmltemplate.Must(htmltemplate.New("issue_html").Parse(
	`<p>The price provider returned no usable data for <b>{{.Stock.Symbol}}</b> ({{.Stock.Name}}).</p>
<p>Alerts referencing this symbol are skipped until data is available again.</p>
<p>StockAlert</p>
`))

var passwordResetText = template.Must(template.New("reset_text").Parse(
	`Dear {{.User.Username}},

To reset your password submit the following token to the password reset endpoint:

{{.Token}}

If you have not requested a password reset simply ignore this message.

StockAlert
`))

var passwordResetHTML = htmltemplate.Must(htmltemplate.New("reset_html").Parse(
	`<p>Dear {{.User.Username}},</p>
<p>To reset your password submit the following token to the password reset endpoint:</p>
<p><code>{{.Token}}</code></p>
<p>If you have not requested a password reset simply ignore this message.</p>
<p>StockAlert</p>
`))

type alertContext struct {
	User  models.User
	Stock models.Stock
	Alert models.Alert
}

type issueContext struct {
	Stock models.Stock
}

type resetContext struct {
	User  models.User
	Token string
}

func renderAlertTriggered(user models.User, stock models.Stock, alert models.Alert) (string, string, error) {
	ctx := alertContext{User: user, Stock: stock, Alert: alert}
	return renderPair(func(buf *bytes.Buffer) error {
		return alertTriggeredText.Execute(buf, ctx)
	}, func(buf *bytes.Buffer) error {
		return alertTriggeredHTML.Execute(buf, ctx)
	})
}

func renderPriceFeedIssue(stock models.Stock) (string, string, error) {
	ctx := issueContext{Stock: stock}
	return renderPair(func(buf *bytes.Buffer) error {
		return priceFeedIssueText.Execute(buf, ctx)
	}, func(buf *bytes.Buffer) error {
		return priceFeedIssueHTML.Execute(buf, ctx)
	})
}

func renderPasswordReset(user models.User, token string) (string, string, error) {
	ctx := resetContext{User: user, Token: token}
	return renderPair(func(buf *bytes.Buffer) error {
		return passwordResetText.Execute(buf, ctx)
	}, func(buf *bytes.Buffer) error {
		return passwordResetHTML.Execute(buf, ctx)
	})
}

func renderPair(text, html func(*bytes.Buffer) error) (string, string, error) {
	var textBuf bytes.Buffer
	if err := text(&textBuf); err != nil {
		return "", "", err
	}
	var htmlBuf bytes.Buffer
	if err := html(&htmlBuf); err != nil {
		return "", "", err
	}
	return textBuf.String(), htmlBuf.String(), nil
}

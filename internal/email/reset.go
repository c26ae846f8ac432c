package email

import (
	"bytes"
	"context"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"
)

const resetSubject = "Restablecer contraseña"

const resetText = `Hola {{.Name}},

Recibimos una solicitud para restablecer tu contraseña. Usa este enlace:

{{.Link}}

El enlace vence en {{.TTL}}. Si no fuiste tú, ignora este correo.
`

const resetHTML = `<p>Hola {{.Name}},</p>
<p>Recibimos una solicitud para restablecer tu contraseña.</p>
<p><a href="{{.Link}}">Restablecer contraseña</a></p>
<p>El enlace vence en {{.TTL}}. Si no fuiste tú, ignora este correo.</p>
`

var (
	resetTextTpl = texttpl.Must(texttpl.New("reset_txt").Parse(resetText))
	resetHTMLTpl = htmltpl.Must(htmltpl.New("reset_html").Parse(resetHTML))
)

// ResetVars son las variables del template de reseteo.
type ResetVars struct {
	Name string
	Link string
	TTL  string
}

// ResetNotifier renderiza y envía el correo de reseteo.
type ResetNotifier struct {
	sender Sender
	now    func() time.Time
}

func NewResetNotifier(s Sender) *ResetNotifier {
	if s == nil {
		s = LogSender{}
	}
	return &ResetNotifier{sender: s, now: time.Now}
}

// SendPasswordReset envía el link de reseteo a to.
func (n *ResetNotifier) SendPasswordReset(ctx context.Context, to, fullName, link string, expiresAt time.Time) error {
	name := fullName
	if name == "" {
		name = to
	}
	vars := ResetVars{
		Name: name,
		Link: link,
		TTL:  expiresAt.Sub(n.now()).Round(time.Minute).String(),
	}

	var txt, html bytes.Buffer
	if err := resetTextTpl.Execute(&txt, vars); err != nil {
		return fmt.Errorf("render reset text: %w", err)
	}
	if err := resetHTMLTpl.Execute(&html, vars); err != nil {
		return fmt.Errorf("render reset html: %w", err)
	}
	return n.sender.Send(ctx, to, resetSubject, html.String(), txt.String())
}
